package contract

import "io"

// TempFile: 新建的空临时文件句柄。
type TempFile interface {
	io.Writer
	io.Closer
	Name() string
}

// TempStore: 临时文件介质（本地文件系统/内存）。
// 约束：
//  1. Create 每次返回一个全新的空文件，名称带可识别前缀，且不引用任何用户输入路径；
//  2. 临时文件归创建者所有，直到被 Remove 或经 Promote 成为最终输出；
//  3. Promote 以替换语义将临时文件移动到 dest（dest 已存在则覆盖）；
//  4. 错误直接上抛（不做重试）。
type TempStore interface {
	Create() (TempFile, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
	Size(path string) (int64, error)
	Promote(tmp, dest string) error
}

// MergeOrder: 决定下一步合并哪两条路径。
// 返回的 a 视为 TwoWayMerge 的 A 流（相等时优先输出），rest 为剩余队列；
// 合并产物总是追加在 rest 末尾。
type MergeOrder interface {
	Next(queue []string) (a, b string, rest []string)
}
