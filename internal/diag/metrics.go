package diag

import (
	"sync"
)

// 进程内最小指标：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
// 由运行报告通过 Snapshot 读取。

var (
	metricsMu sync.Mutex
	opTotal   = map[string]int64{}
	errTotal  = map[string]int64{}
	durTotal  = map[string]int64{}
)

// Metrics 为某一时刻的指标拷贝；键形如 "comp/stage/result"、"comp/code"、"comp/stage"。
type Metrics struct {
	Ops        map[string]int64 `json:"ops"`
	Errors     map[string]int64 `json:"errors"`
	DurationMS map[string]int64 `json:"duration_ms"`
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add(opTotal, comp+"/"+stage+"/"+result, 1) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add(errTotal, comp+"/"+code, 1) }

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) { add(durTotal, comp+"/"+stage, durMS) }

func add(m map[string]int64, k string, v int64) {
	metricsMu.Lock()
	m[k] += v
	metricsMu.Unlock()
}

// Snapshot 返回当前指标的拷贝。
func Snapshot() Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return Metrics{Ops: clone(opTotal), Errors: clone(errTotal), DurationMS: clone(durTotal)}
}

// ResetMetrics 清零（每次运行开始及测试使用）。
func ResetMetrics() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	clear(opTotal)
	clear(errTotal)
	clear(durTotal)
}

func clone(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
