// Package repair 生成输入文件的有序修复副本。
//
// 语义：跳过并继续。每一行仅与"上一条被接受的行"比较；被拒行不改变比较基准，
// 因此 [1,2,x,3] 修复为 [1,2,3]，[3,1,2] 修复为 [3]。
package repair

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/pkg/contract"
)

// checkEvery: 每处理多少行检查一次取消。
const checkEvery = 1024

// Repairer 对单个输入执行校验与修复；本身不起并发，可被多个 goroutine 同时使用。
type Repairer struct {
	reader contract.Reader
	split  contract.Splitter
	store  contract.TempStore
	mode   contract.Mode
	logger *diag.Logger
}

// New 组装修复器；logger 可为 nil。
func New(reader contract.Reader, split contract.Splitter, store contract.TempStore, mode contract.Mode, logger *diag.Logger) *Repairer {
	return &Repairer{reader: reader, split: split, store: store, mode: mode, logger: logger}
}

// Repair 校验 src 并返回结论。
// 单文件问题（空、无有效行、读失败、超长行）体现在 Outcome 中，返回 nil 错误；
// 仅取消与临时空间不可用作为错误返回，此时不保留任何临时文件。
func (r *Repairer) Repair(ctx context.Context, src string) (contract.Outcome, error) {
	out := contract.Outcome{Source: src, Status: contract.Corrupted}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	fid := string(contract.NormalizeFileID(src))
	timer := r.logger.StartWith("repair", "repair", fid)

	rc, size, err := r.reader.Open(ctx, src)
	if err != nil {
		out.Err = err
		diag.Record(r.logger, "repair", "open failed", fid, err)
		return out, nil
	}
	defer rc.Close()
	if size == 0 {
		timer.FinishKV("repair", 0, map[string]string{"status": out.Status.String(), "reason": "empty"})
		diag.IncOp("repair", "finish", "success")
		return out, nil
	}

	var (
		tmp     contract.TempFile
		bw      *bufio.Writer
		prev    string
		hasPrev bool
		n       int
	)
	discard := func() {
		if tmp == nil {
			return
		}
		_ = tmp.Close()
		if err := r.store.Remove(tmp.Name()); err != nil {
			r.logger.WarnWith("repair", string(diag.CodeTemp), "remove temp failed", fid, map[string]string{"path": tmp.Name(), "err": err.Error()})
		}
		tmp = nil
	}
	// ioFail: 读写失败时放弃该文件
	ioFail := func(err error) (contract.Outcome, error) {
		discard()
		out.Status, out.Path, out.Err = contract.Corrupted, "", err
		diag.Record(r.logger, "repair", "repair aborted", fid, err)
		return out, nil
	}

	sc := r.split.Lines(rc)
	for sc.Scan() {
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				discard()
				return contract.Outcome{Source: src, Status: contract.Corrupted}, err
			}
		}
		line := sc.Text()
		if !contract.Accept(r.mode, line, prev, hasPrev) {
			out.Rejected++
			continue
		}
		if tmp == nil {
			f, err := r.store.Create()
			if err != nil {
				if !errors.Is(err, contract.ErrTempUnavailable) {
					err = fmt.Errorf("%w: %v", contract.ErrTempUnavailable, err)
				}
				diag.Record(r.logger, "repair", "create temp failed", fid, err)
				return contract.Outcome{Source: src, Status: contract.Corrupted}, err
			}
			tmp, bw = f, bufio.NewWriter(f)
		}
		if _, err := bw.WriteString(line); err != nil {
			return ioFail(err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return ioFail(err)
		}
		prev, hasPrev = line, true
		out.Accepted++
	}
	if err := sc.Err(); err != nil {
		return ioFail(err)
	}

	if out.Accepted == 0 {
		discard()
		out.Status = contract.Corrupted
	} else {
		if err := bw.Flush(); err != nil {
			return ioFail(err)
		}
		if err := tmp.Close(); err != nil {
			path := tmp.Name()
			tmp = nil
			_ = r.store.Remove(path)
			return ioFail(err)
		}
		out.Path = tmp.Name()
		out.Status = contract.Clean
		if out.Rejected > 0 {
			out.Status = contract.PartiallyCorrupted
		}
	}

	timer.FinishKV("repair", out.Accepted, map[string]string{
		"status":   out.Status.String(),
		"rejected": fmt.Sprint(out.Rejected),
	})
	diag.IncOp("repair", "finish", "success")
	if out.Rejected > 0 {
		r.logger.WarnWith("repair", "", "rejected lines", fid, map[string]string{"rejected": fmt.Sprint(out.Rejected)})
	}
	return out, nil
}
