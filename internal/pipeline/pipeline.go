package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/internal/merge"
	"github.com/Rhythmeen/merge/internal/repair"
	"github.com/Rhythmeen/merge/pkg/contract"
)

// - 单点并发：仅此层管理并发；修复器与归并引擎均为同步实现。
// - 顺序稳定：并发修复的结论按输入顺序收集，分类列表与合并队列与顺序执行一致。
// - 首错取消：致命错误（取消、临时空间不可用）取消其余修复并清理已产出的副本。
// - 归并严格串行。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Splitter contract.Splitter
	Store    contract.TempStore
	Order    contract.MergeOrder
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// Output 为空时不提升，最终结果保留在临时文件中（Result.Output 为其路径）。
	Output      string
	Mode        contract.Mode
	Concurrency int
}

// Result: 按原始路径分类的运行结论。
type Result struct {
	// Outcomes 与展开后的输入一一对应，顺序一致。
	Outcomes []contract.Outcome
	// ToProcess: 参与合并的修复副本（临时路径，合并后已删除）。
	ToProcess []string
	// Failed: 被跳过的输入（原始路径）。
	Failed []string
	// PartiallyFailed: 仅部分有效的输入（原始路径）；其修复副本仍参与合并。
	PartiallyFailed []string
	// Output: 最终结果路径；无可合并输入时为空，且不产生输出文件。
	Output string
}

// Run 执行完整流程：Reader.Expand → 逐文件修复 → 分类 → 归并 → 提升到输出路径。
// 单文件问题只体现在 Result 中；仅取消与环境级失败作为错误返回。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	if err := sanity(comp, &set); err != nil {
		return Result{}, fmt.Errorf("sanity: %w", err)
	}
	t0 := time.Now()

	files, err := comp.Reader.Expand(ctx, set.Inputs)
	if err != nil {
		diag.Record(logger, "reader", "expand failed", "", err)
		return Result{}, fmt.Errorf("reader expand: %w", err)
	}
	logger.Debug("reader", "expanded", "", map[string]string{"roots": fmt.Sprint(len(set.Inputs)), "files": fmt.Sprint(len(files))})
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(len(files), set.Concurrency, set.Mode.String())
	}

	outcomes, err := repairAll(ctx, comp, set, files, logger)
	if err != nil {
		return Result{}, err
	}
	res := classify(outcomes)
	logger.InfoFinish("pipeline", "validated", t0, int64(len(files)))
	if len(res.ToProcess) == 0 {
		return res, nil
	}

	eng := merge.NewEngine(comp.Store, comp.Splitter, comp.Order, set.Mode, logger)
	final, err := eng.MergeAll(ctx, res.ToProcess, set.Output)
	if err != nil {
		if final != "" {
			return res, fmt.Errorf("merge: result kept at %s: %w", final, err)
		}
		return res, fmt.Errorf("merge: %w", err)
	}
	res.Output = final
	logger.InfoFinish("pipeline", "sorted", t0, int64(len(res.ToProcess)))
	return res, nil
}

// repairAll 以受限并发修复全部输入；结论按输入顺序返回。
// 出错时删除所有已产出的修复副本。
func repairAll(ctx context.Context, comp Components, set Settings, files []string, logger *diag.Logger) ([]contract.Outcome, error) {
	rep := repair.New(comp.Reader, comp.Splitter, comp.Store, set.Mode, logger)
	outs := make([]contract.Outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			o, err := rep.Repair(gctx, f)
			outs[i] = o
			if err != nil {
				return fmt.Errorf("repair %s: %w", f, err)
			}
			if t := diag.GetTerminal(); t != nil {
				t.FileDone(f, o.Status.String(), o.Accepted, o.Rejected)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, o := range outs {
			if o.Path == "" {
				continue
			}
			if rerr := comp.Store.Remove(o.Path); rerr != nil {
				logger.WarnWith("pipeline", string(diag.CodeTemp), "remove temp failed", "", map[string]string{"path": o.Path, "err": rerr.Error()})
			}
		}
		return nil, err
	}
	return outs, nil
}

// classify 将结论分桶；三类列表保持输入顺序。
func classify(outs []contract.Outcome) Result {
	res := Result{Outcomes: outs}
	for _, o := range outs {
		switch o.Status {
		case contract.Clean:
			res.ToProcess = append(res.ToProcess, o.Path)
		case contract.PartiallyCorrupted:
			res.ToProcess = append(res.ToProcess, o.Path)
			res.PartiallyFailed = append(res.PartiallyFailed, o.Source)
		default:
			res.Failed = append(res.Failed, o.Source)
		}
	}
	return res
}

func sanity(c Components, s *Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Store == nil || c.Order == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	for _, in := range s.Inputs {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("%w: empty input path", contract.ErrPathInvalid)
		}
	}
	return nil
}
