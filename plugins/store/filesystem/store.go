package filesystem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Rhythmeen/merge/pkg/contract"
)

// DefaultPrefix 为临时文件的可识别前缀。
const DefaultPrefix = "sort_"

// Options: 最小必要选项。
type Options struct {
	// Dir: 临时文件目录；空表示平台默认临时目录。
	Dir string `json:"dir"`
	// Prefix: 临时文件名前缀；空表示 "sort_"。
	Prefix string `json:"prefix"`
	// PermFile: 最终输出文件权限；为 0 表示 0644。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	// BufSize: 跨介质复制时的缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// Store 基于 afero.Fs 的临时文件介质。
// tmp 为临时文件所在介质；out 为最终输出所在介质（通常为本地文件系统）。
type Store struct {
	tmp     afero.Fs
	out     afero.Fs
	same    bool
	dir     string
	prefix  string
	permF   os.FileMode
	bufSize int
}

// New 创建临时文件介质。out 为 nil 时输出与临时文件同介质。
func New(opts *Options, tmp, out afero.Fs) (*Store, error) {
	if tmp == nil {
		return nil, os.ErrInvalid
	}
	if opts == nil {
		opts = &Options{}
	}
	s := &Store{tmp: tmp, out: out, same: out == nil, dir: strings.TrimSpace(opts.Dir), prefix: opts.Prefix, permF: opts.PermFile, bufSize: opts.BufSize}
	if s.same {
		s.out = tmp
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if strings.ContainsAny(s.prefix, `/\*`) {
		return nil, fmt.Errorf("%w: temp prefix %q", contract.ErrPathInvalid, s.prefix)
	}
	if s.permF == 0 {
		s.permF = 0o644
	}
	if s.bufSize <= 0 {
		s.bufSize = 64 * 1024
	}
	if s.dir == "" {
		s.dir = os.TempDir()
	}
	if err := s.tmp.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrTempUnavailable, err)
	}
	return s, nil
}

var _ contract.TempStore = (*Store)(nil)

// Dir 返回临时目录。
func (s *Store) Dir() string { return s.dir }

// Create 新建一个空临时文件。任何失败均视为临时空间不可用。
func (s *Store) Create() (contract.TempFile, error) {
	f, err := afero.TempFile(s.tmp, s.dir, s.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrTempUnavailable, err)
	}
	return f, nil
}

func (s *Store) Open(path string) (io.ReadCloser, error) { return s.tmp.Open(path) }

func (s *Store) Remove(path string) error { return s.tmp.Remove(path) }

func (s *Store) Size(path string) (int64, error) {
	st, err := s.tmp.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Promote 将临时文件以替换语义移动到 dest。
// 同介质时优先 rename（平台原子替换）；rename 失败（例如跨设备）或跨介质时，
// 回退为：复制到 dest 同目录的临时文件 + 原子替换 + 删除源。
// 结果已就位但删除源失败时返回 ErrCleanupFailed。
func (s *Store) Promote(tmp, dest string) error {
	if strings.TrimSpace(dest) == "" {
		return contract.ErrPathInvalid
	}
	if st, err := s.out.Stat(dest); err == nil && st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", contract.ErrPathInvalid, dest)
	}
	dir := filepath.Dir(dest)
	if err := s.out.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if s.same {
		_ = s.tmp.Chmod(tmp, s.permF)
		if err := s.replace(tmp, dest); err == nil {
			s.syncDir(dir)
			return nil
		}
	}
	if err := s.copyReplace(tmp, dest); err != nil {
		return err
	}
	s.syncDir(dir)
	if err := s.tmp.Remove(tmp); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrCleanupFailed, err)
	}
	return nil
}

func (s *Store) copyReplace(tmp, dest string) error {
	src, err := s.tmp.Open(tmp)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := afero.TempFile(s.out, filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	dstPath := dst.Name()
	fail := func(err error) error {
		_ = dst.Close()
		_ = s.out.Remove(dstPath)
		return err
	}
	bw := bufio.NewWriterSize(dst, s.bufSize)
	if _, err := io.Copy(bw, src); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := dst.Sync(); err != nil {
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		_ = s.out.Remove(dstPath)
		return err
	}
	_ = s.out.Chmod(dstPath, s.permF)
	if err := s.replace(dstPath, dest); err != nil {
		_ = s.out.Remove(dstPath)
		return err
	}
	return nil
}

// replace 在输出介质上执行替换式重命名；本地文件系统使用平台原子替换。
func (s *Store) replace(from, to string) error {
	if _, ok := s.out.(*afero.OsFs); ok {
		return osReplace(from, to)
	}
	return s.out.Rename(from, to)
}

// syncDir 最佳努力：仅本地文件系统同步父目录。
func (s *Store) syncDir(dir string) {
	if _, ok := s.out.(*afero.OsFs); ok {
		_ = syncDir(dir)
	}
}

// IsCleanup 报告 err 是否仅为清理失败。
func IsCleanup(err error) bool { return errors.Is(err, contract.ErrCleanupFailed) }
