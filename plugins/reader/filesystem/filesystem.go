package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Rhythmeen/merge/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 展开目录根时跳过这些目录名（基名完全匹配，大小写不敏感）。
	// 仅影响目录递归，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
}

// FileSystem 实现基于本地文件系统的 Reader。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ex := make(map[string]struct{})
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	return &FileSystem{bufSize: b, excludeDir: ex}
}

var _ contract.Reader = (*FileSystem)(nil)

// Expand 将 roots 展开为文件路径列表，保持 roots 的给定顺序。
// - 常规文件与指向常规文件的符号链接：原样保留；
// - 目录：递归展开（字典序，先子目录后文件；目录符号链接不跟随）；
// - 不存在或无法 Lstat 的路径：原样保留，交由 Open 失败并按损坏文件处理；
// - 其他非常规文件（设备、FIFO 等）：原样保留，Open 时拒绝。
func (r *FileSystem) Expand(ctx context.Context, roots []string) ([]string, error) {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			out = append(out, root)
			continue
		}
		if li, lerr := os.Lstat(root); lerr == nil && li.Mode()&os.ModeSymlink != 0 {
			// 显式给出的目录符号链接：忽略
			continue
		}
		files, err := r.walkDir(ctx, root)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func (r *FileSystem) walkDir(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []string
	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		sub, err := r.walkDir(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	// 再文件（允许指向常规文件的符号链接）
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		t, err := os.Stat(p)
		if err != nil {
			// 悬空链接等：保留，交由 Open 报告
			out = append(out, p)
			continue
		}
		if !t.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Open 打开常规文件并返回带缓冲的 ReadCloser 与文件大小。
func (r *FileSystem) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, &os.PathError{Op: "open", Path: path, Err: fmt.Errorf("not a regular file (%s)", st.Mode().Type())}
	}
	return newBufferedCloser(f, r.bufSize), st.Size(), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
