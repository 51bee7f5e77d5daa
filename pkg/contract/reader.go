package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/目录）。
// 约束：
// 1) Expand 仅展开目录根，顺序稳定；不存在的路径原样保留，由调用方按文件处理；
// 2) Open 返回字节流与源大小，调用方负责 Close；
// 3) 不做解码/业务解析；
// 4) 不在内部起并发。
type Reader interface {
	Expand(ctx context.Context, roots []string) ([]string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
}
