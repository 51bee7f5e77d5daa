package lines

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/Rhythmeen/merge/pkg/contract"
)

const (
	defaultBufSize      = 64 * 1024
	defaultMaxLineBytes = 1024 * 1024
)

// Options 为行切分器的可选配置（最小必要）。
type Options struct {
	// BufSize: 初始读缓冲大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// MaxLineBytes: 单行最大字节数（不含换行）。默认 1MiB；超出视为 I/O 失败。
	MaxLineBytes int `json:"max_line_bytes"`
}

// Splitter 按 "\n" 切分，去除紧邻的 "\r"；末行可无换行。
type Splitter struct {
	bufSize int
	maxLine int
}

// New 创建行切分器。
func New(opts *Options) *Splitter {
	s := &Splitter{bufSize: defaultBufSize, maxLine: defaultMaxLineBytes}
	if opts != nil && opts.BufSize > 0 {
		s.bufSize = opts.BufSize
	}
	if opts != nil && opts.MaxLineBytes > 0 {
		s.maxLine = opts.MaxLineBytes
	}
	if s.bufSize > s.maxLine {
		s.bufSize = s.maxLine
	}
	return s
}

var _ contract.Splitter = (*Splitter)(nil)

// Lines 返回 r 上的流式行扫描器。
func (s *Splitter) Lines(r io.Reader) contract.LineScanner {
	sc := bufio.NewScanner(r)
	// 缓冲上限需容纳行尾 "\r\n"
	sc.Buffer(make([]byte, 0, s.bufSize), s.maxLine+2)
	sc.Split(bufio.ScanLines)
	return &scanner{Scanner: sc, maxLine: s.maxLine}
}

type scanner struct {
	*bufio.Scanner
	maxLine int
}

// Err 将 bufio.ErrTooLong 映射为 contract.ErrLineTooLong。
func (s *scanner) Err() error {
	err := s.Scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		return fmt.Errorf("%w: limit %d bytes", contract.ErrLineTooLong, s.maxLine)
	}
	return err
}
