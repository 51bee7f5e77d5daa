package diag

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 结构化日志器：单行 JSON（zap 编码）写入轮转文件；支持级别过滤。
// 所有方法对 nil 接收者安全，便于组件在未注入日志器时直接调用。
type Logger struct {
	corrID string
	z      *zap.Logger
	sink   *RotatingFile
}

// LogOptions: 日志输出位置与轮转阈值。
type LogOptions struct {
	Dir      string
	MaxBytes int64
	// Tee: 额外输出（例如 --verbose 时的 stderr），可为空。
	Tee io.Writer
}

// NewLogger 通过 level 初始化，日志写入 opts.Dir（默认 logs），按大小轮转（默认 10MiB）。
func NewLogger(corrID, level string, opts LogOptions) *Logger {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, opts.MaxBytes)
	var ws zapcore.WriteSyncer = sinkWithFallback{sink}
	if opts.Tee != nil {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(opts.Tee))
	}
	l := NewLoggerTo(corrID, level, ws)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 WriteSyncer（测试与嵌入场景）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, ParseLevel(level))
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, z: z}
}

// ParseLevel: debug|info|warn|error，未知值回落 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.UTC().Format(time.RFC3339)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// CorrID 返回本次运行的关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 刷新并关闭底层文件。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// event 为一条事件的可选字段。
type event struct {
	comp, stage, code, fileID, msg string
	dur, count                     int64
	kv                             map[string]string
}

func (l *Logger) log(lv zapcore.Level, ev event) {
	if l == nil {
		return
	}
	ce := l.z.Check(lv, ev.msg)
	if ce == nil {
		return
	}
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", ev.comp), zap.String("stage", ev.stage))
	if ev.code != "" {
		fs = append(fs, zap.String("code", ev.code))
	}
	if ev.dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.dur))
	}
	if ev.count > 0 {
		fs = append(fs, zap.Int64("count", ev.count))
	}
	if ev.fileID != "" {
		fs = append(fs, zap.String("file_id", ev.fileID))
	}
	if len(ev.kv) > 0 {
		fs = append(fs, zap.Object("kv", kvFields(ev.kv)))
	}
	ce.Write(fs...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer { return l.StartWithKV(comp, msg, "", nil) }

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.log(zapcore.InfoLevel, event{comp: comp, stage: "start", fileID: fileID, msg: msg, kv: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如底层错误文本、临时文件路径）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, event{comp: comp, stage: "error", code: code, dur: dur, msg: msg, fileID: fileID, kv: kv})
}

// WarnWith 记录可恢复问题（例如清理失败、被拒记录）。
func (l *Logger) WarnWith(comp, code, msg, fileID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, event{comp: comp, stage: "warn", code: code, msg: msg, fileID: fileID, kv: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, event{comp: comp, stage: "finish", dur: time.Since(start).Milliseconds(), count: count, msg: msg})
}

// Debug 仅在 level=debug 时输出。
func (l *Logger) Debug(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, event{comp: comp, stage: "debug", fileID: fileID, msg: msg, kv: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) { t.FinishKV(msg, count, nil) }

// FinishKV 记录 finish 并附带键值。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	d := time.Since(t.t0).Milliseconds()
	ObserveDuration(t.comp, "finish", d)
	t.l.log(zapcore.InfoLevel, event{comp: t.comp, stage: "finish", dur: d, count: count, fileID: t.fileID, msg: msg, kv: kv})
}

// Since 返回计时起点（用于 Error 的 durSince）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// kvFields 以稳定的键顺序编码。
type kvFields map[string]string

func (m kvFields) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, m[k])
	}
	return nil
}

// sinkWithFallback: 文件写失败时改写 stderr，日志不丢失也不阻断主流程。
type sinkWithFallback struct{ f *RotatingFile }

func (s sinkWithFallback) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger sink error: " + err.Error() + "\n")
		return os.Stderr.Write(p)
	}
	return n, nil
}

func (s sinkWithFallback) Sync() error { return s.f.Sync() }
