package diag

import (
	"context"
	"errors"
	"os"

	"github.com/Rhythmeen/merge/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeTemp      Code = "temp"
	CodeCorrupted Code = "corrupted"
)

// Classify 将错误归为最小分类；仅依赖哨兵错误与标准库错误类型。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrTempUnavailable) || errors.Is(err, contract.ErrCleanupFailed) {
		return CodeTemp
	}
	if errors.Is(err, contract.ErrLineTooLong) {
		return CodeCorrupted
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidMode) ||
		errors.Is(err, contract.ErrEmptyQueue) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	var lerr *os.LinkError
	if errors.As(err, &perr) || errors.As(err, &lerr) {
		return CodeIO
	}
	return CodeUnknown
}

// Record 以统一方式记录组件错误：error 日志 + 错误计数。
func Record(l *Logger, comp, msg, fileID string, err error) Code {
	code := Classify(err)
	l.ErrorWithKV(comp, string(code), msg, nil, fileID, map[string]string{"err": err.Error()})
	IncOp(comp, "error", "error")
	if code != CodeUnknown {
		IncError(comp, string(code))
	}
	return code
}
