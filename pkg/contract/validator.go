package contract

import (
	"strings"
	"unicode"
)

// 校验库函数（纯函数，无 I/O）：
// - ValidRecord: 仅按数据类型判定单行是否为合法记录
// - Accept:      类型 + 相对上一条已接受行的非严格顺序
//
// "上一条已接受行" 由调用方持有并显式传入；本包不保存任何状态。

// ValidRecord 判定 line 在 t 下是否为合法记录。
// Integer: 形如 -?[0-9]+；String: 不含任何空白字符（空行合法）。
func ValidRecord(t DataType, line string) bool {
	if t == Integer {
		return isInteger(line)
	}
	return strings.IndexFunc(line, unicode.IsSpace) < 0
}

// Accept 判定 next 是否可接在 prev 之后。
// hasPrev=false（首行或此前无任何接受行）时仅做类型校验，不做顺序校验。
// 顺序为非严格：相等总是接受。
func Accept(m Mode, next, prev string, hasPrev bool) bool {
	if !ValidRecord(m.Type, next) {
		return false
	}
	if !hasPrev {
		return true
	}
	return Compare(m, prev, next) <= 0
}

func isInteger(s string) bool {
	if s != "" && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
