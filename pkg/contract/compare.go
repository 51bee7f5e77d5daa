package contract

import "strings"

// Compare 为按 Mode 的三路比较：x 排在 y 之前返回 <0，相等返回 0，之后返回 >0。
// Descending 为 Ascending 的镜像：Compare(x, y, desc) == Compare(y, x, asc)。
// Integer 为任意精度数值比较（-0 与 0 相等）；String 为按字节的字典序。
func Compare(m Mode, x, y string) int {
	if m.Direction == Descending {
		x, y = y, x
	}
	if m.Type == Integer {
		return compareIntegers(x, y)
	}
	return strings.Compare(x, y)
}

// compareIntegers 比较两个十进制整数文本，不做溢出受限的解析。
// 非法文本（不应出现在已校验流中）退化为字节序比较，以保持全序。
func compareIntegers(x, y string) int {
	if !isInteger(x) || !isInteger(y) {
		return strings.Compare(x, y)
	}
	xn, xd := splitSign(x)
	yn, yd := splitSign(y)
	switch {
	case xn && !yn:
		return -1
	case !xn && yn:
		return 1
	case xn && yn:
		// 均为负：绝对值大者更小
		return compareMagnitude(yd, xd)
	default:
		return compareMagnitude(xd, yd)
	}
}

// splitSign 返回（是否为负, 去前导零后的数字串）；"-0" 视为非负零。
func splitSign(s string) (bool, string) {
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return false, "0"
	}
	return neg, s
}

func compareMagnitude(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
