package contract

import "io"

// LineScanner: 逐行拉取，语义同 bufio.Scanner（*bufio.Scanner 即满足）。
type LineScanner interface {
	Scan() bool
	Text() string
	Err() error
}

// Splitter: 将字节流切分为行序列。
// 约束：
// 1) 流式，O(单行) 额外内存；
// 2) 去除行尾 "\n" 与紧邻的 "\r"，不做其他归一；
// 3) 超过行长上限时 Err 返回 ErrLineTooLong。
type Splitter interface {
	Lines(r io.Reader) LineScanner
}
