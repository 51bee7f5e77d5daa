package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/pkg/contract"
)

const checkEvery = 1024

// Engine 将多个有序临时文件归约为一个。
//
// 所有权：MergeAll 接管传入的全部路径，并在消费后删除它们（无论成败）。
// 调用方只应传入由 TempStore 创建的临时副本。
type Engine struct {
	store  contract.TempStore
	split  contract.Splitter
	order  contract.MergeOrder
	mode   contract.Mode
	logger *diag.Logger
}

// NewEngine 组装归并引擎；logger 可为 nil。
func NewEngine(store contract.TempStore, split contract.Splitter, order contract.MergeOrder, mode contract.Mode, logger *diag.Logger) *Engine {
	return &Engine{store: store, split: split, order: order, mode: mode, logger: logger}
}

// MergeAll 按合并顺序反复两两归并，直至只剩一条路径。
// output 非空时将最终结果提升为 output 并返回 output；否则返回最终临时文件路径。
// 出错时已删除剩余队列中的临时文件；若仅提升失败，返回最终临时文件路径与错误，该文件保留。
func (e *Engine) MergeAll(ctx context.Context, paths []string, output string) (string, error) {
	if len(paths) == 0 {
		return "", contract.ErrEmptyQueue
	}
	timer := e.logger.StartWithKV("merge", "merge all", output, map[string]string{"inputs": fmt.Sprint(len(paths))})
	queue := append([]string(nil), paths...)
	total := len(queue) - 1
	for step := 1; len(queue) > 1; step++ {
		a, b, rest := e.order.Next(queue)
		merged, err := e.pair(ctx, a, b)
		if err != nil {
			e.discard(rest)
			diag.Record(e.logger, "merge", "merge step failed", "", err)
			return "", err
		}
		queue = append(rest, merged)
		if t := diag.GetTerminal(); t != nil {
			size, _ := e.store.Size(merged)
			t.MergeProgress(step, total, size)
		}
	}
	final := queue[0]
	if strings.TrimSpace(output) == "" {
		timer.Finish("merge all", int64(len(paths)))
		return final, nil
	}
	if err := e.store.Promote(final, output); err != nil {
		if !errors.Is(err, contract.ErrCleanupFailed) {
			diag.Record(e.logger, "merge", "promote failed", output, err)
			return final, fmt.Errorf("promote %s: %w", output, err)
		}
		e.logger.WarnWith("merge", string(diag.CodeTemp), "temp not removed after promote", output, map[string]string{"path": final, "err": err.Error()})
	}
	timer.Finish("merge all", int64(len(paths)))
	diag.IncOp("merge", "finish", "success")
	return output, nil
}

// pair 归并 a 与 b 到新临时文件，并删除 a、b（删除失败仅记录）。
func (e *Engine) pair(ctx context.Context, a, b string) (string, error) {
	defer e.discard([]string{a, b})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ra, err := e.store.Open(a)
	if err != nil {
		return "", err
	}
	defer ra.Close()
	rb, err := e.store.Open(b)
	if err != nil {
		return "", err
	}
	defer rb.Close()

	out, err := e.store.Create()
	if err != nil {
		return "", err
	}
	n, err := TwoScan(ctx, e.split.Lines(ra), e.split.Lines(rb), out, e.mode)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = e.store.Remove(out.Name())
		return "", err
	}
	e.logger.Debug("merge", "pair", "", map[string]string{"a": a, "b": b, "out": out.Name(), "lines": fmt.Sprint(n)})
	return out.Name(), nil
}

// discard 删除临时文件；失败仅记录。
func (e *Engine) discard(paths []string) {
	for _, p := range paths {
		if err := e.store.Remove(p); err != nil {
			e.logger.WarnWith("merge", string(diag.CodeTemp), "remove temp failed", "", map[string]string{"path": p, "err": err.Error()})
			diag.IncError("merge", string(diag.CodeTemp))
		}
	}
}
