// Package merge 实现有序流的两路归并与多文件归约。
package merge

import (
	"bufio"
	"context"
	"io"

	"github.com/Rhythmeen/merge/plugins/splitter/lines"
	"github.com/Rhythmeen/merge/pkg/contract"
)

// Two 以默认行切分器归并两个有序流，写出到 w，返回写出的行数。
func Two(ctx context.Context, a, b io.Reader, w io.Writer, m contract.Mode) (int64, error) {
	s := lines.New(nil)
	return TwoScan(ctx, s.Lines(a), s.Lines(b), w, m)
}

// TwoScan 归并两个已按 m 有序的行流。
// 相等时先输出 A 流（稳定）；一侧耗尽后原样输出另一侧剩余行。每行以 "\n" 结尾。
func TwoScan(ctx context.Context, a, b contract.LineScanner, w io.Writer, m contract.Mode) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	emit := func(s string) error {
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return bw.WriteByte('\n')
	}

	okA, okB := a.Scan(), b.Scan()
	for okA && okB {
		x, y := a.Text(), b.Text()
		if contract.Compare(m, x, y) <= 0 {
			if err := emit(x); err != nil {
				return n, err
			}
			okA = a.Scan()
		} else {
			if err := emit(y); err != nil {
				return n, err
			}
			okB = b.Scan()
		}
	}
	for ; okA; okA = a.Scan() {
		if err := emit(a.Text()); err != nil {
			return n, err
		}
	}
	for ; okB; okB = b.Scan() {
		if err := emit(b.Text()); err != nil {
			return n, err
		}
	}
	if err := a.Err(); err != nil {
		return n, err
	}
	if err := b.Err(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}
