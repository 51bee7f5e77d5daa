package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 将输入路径规范化为日志/报告用的 FileID。
// 规则：反斜杠统一为正斜杠；path.Clean 清理 "."、".." 与多余分隔符；
// 保留相对/绝对语义，不做隐式绝对化。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, `\`, "/")))
}
