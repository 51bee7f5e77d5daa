package contract

import "errors"

// 最小错误分类（供 diag.Classify 与上层策略判定）。
var (
	// ErrInvalidMode: 数据类型或排序方向无法识别。
	ErrInvalidMode = errors.New("invalid mode")
	// ErrTempUnavailable: 无法创建临时文件（环境级失败，整体中止）。
	ErrTempUnavailable = errors.New("temp storage unavailable")
	// ErrEmptyQueue: 合并队列为空。
	ErrEmptyQueue = errors.New("merge queue empty")
	// ErrPathInvalid: 目标路径无效（例如为空或指向目录）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrLineTooLong: 单行超过扫描上限。
	ErrLineTooLong = errors.New("line too long")
	// ErrCleanupFailed: 主操作已完成，但释放临时文件失败（仅记录，不中止）。
	ErrCleanupFailed = errors.New("cleanup failed")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
