package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap/zapcore"

	"github.com/Rhythmeen/merge/pkg/contract"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if _, err := w.Write([]byte("first line that is very long\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	_ = w.Close()
}

// 当前文件与时间戳文件同时存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("xxxxxxxxxxxxxxxxxx\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == currentName {
			hasCurrent = true
		} else if strings.HasPrefix(e.Name(), "sortit-") && strings.HasSuffix(e.Name(), ".txt") {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// 默认 maxBytes 与未打开时 rotate/Sync
func TestRotatingFileDefaults(t *testing.T) {
	w := NewRotatingFile(t.TempDir(), 0)
	if w.maxBytes != 10*1024*1024 {
		t.Fatalf("default max bytes: %d", w.maxBytes)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync unopened: %v", err)
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if w.f == nil {
		t.Fatalf("rotate should open file")
	}
	_ = w.Close()
}

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// Logger 事件字段
func TestLoggerEventShape(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("corr-1", "info", zapcore.AddSync(&buf))
	timer := l.StartWith("repair", "repair", "a.txt")
	timer.FinishKV("repair", 3, map[string]string{"status": "clean"})
	l.ErrorWithKV("merge", "io", "merge failed", nil, "b.txt", map[string]string{"err": "x"})

	evs := decodeLines(t, buf.Bytes())
	if len(evs) != 3 {
		t.Fatalf("expect 3 events, got %d", len(evs))
	}
	start, finish, failed := evs[0], evs[1], evs[2]
	if start["corr_id"] != "corr-1" || start["comp"] != "repair" || start["stage"] != "start" || start["file_id"] != "a.txt" {
		t.Fatalf("bad start event: %v", start)
	}
	if finish["stage"] != "finish" || finish["count"] != float64(3) {
		t.Fatalf("bad finish event: %v", finish)
	}
	if kv, ok := finish["kv"].(map[string]any); !ok || kv["status"] != "clean" {
		t.Fatalf("bad kv: %v", finish["kv"])
	}
	if failed["level"] != "error" || failed["code"] != "io" {
		t.Fatalf("bad error event: %v", failed)
	}
	ts, _ := start["ts"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("ts should be RFC3339 UTC: %q", ts)
	}
}

// 级别过滤与 nil 接收者
func TestLoggerLevelsAndFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("c", "warn", zapcore.AddSync(&buf))
	l.Debug("comp", "msg", "f", nil)
	l.Start("comp", "msg").Finish("x", 0)
	if buf.Len() != 0 {
		t.Fatalf("info/debug should be filtered: %q", buf.String())
	}
	start := time.Now().Add(-10 * time.Millisecond)
	l.Error("comp", "code", "msg", &start)
	l.WarnWith("comp", "temp", "cleanup failed", "f", nil)
	if evs := decodeLines(t, buf.Bytes()); len(evs) != 2 {
		t.Fatalf("expect 2 events, got %d", len(evs))
	}

	var ln *Logger
	ln.Start("comp", "msg").Finish("x", 0)
	ln.ErrorWith("comp", "code", "msg", nil, "f")
	ln.InfoFinish("comp", "msg", time.Now(), 1)
	if ln.CorrID() != "" || ln.Close() != nil {
		t.Fatalf("nil logger should be inert")
	}
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	if tnil.Since() != nil {
		t.Fatalf("nil timer since")
	}

	if ParseLevel("DEBUG") != zapcore.DebugLevel || ParseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("parse level")
	}
}

// 日志写入轮转文件
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger("corr", "info", LogOptions{Dir: dir})
	l.Start("comp", "msg").Finish("ok", 1)
	l.Error("comp", "code", "msg", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, currentName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if evs := decodeLines(t, b); len(evs) != 3 {
		t.Fatalf("expect 3 events in file, got %d", len(evs))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrTempUnavailable, CodeTemp},
		{contract.ErrCleanupFailed, CodeTemp},
		{contract.ErrLineTooLong, CodeCorrupted},
		{contract.ErrInvalidMode, CodeInvariant},
		{contract.ErrEmptyQueue, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{&os.LinkError{Op: "rename", Old: "a", New: "b", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v)=%s want %s", c.err, got, c.want)
		}
	}
}

func TestMetricsAndRecord(t *testing.T) {
	ResetMetrics()
	IncOp("repair", "finish", "success")
	IncOp("repair", "finish", "success")
	ObserveDuration("merge", "finish", 7)
	var buf bytes.Buffer
	l := NewLoggerTo("c", "info", zapcore.AddSync(&buf))
	if code := Record(l, "merge", "failed", "x", contract.ErrTempUnavailable); code != CodeTemp {
		t.Fatalf("record code: %s", code)
	}
	m := Snapshot()
	if m.Ops["repair/finish/success"] != 2 || m.Ops["merge/error/error"] != 1 {
		t.Fatalf("ops: %v", m.Ops)
	}
	if m.Errors["merge/temp"] != 1 || m.DurationMS["merge/finish"] != 7 {
		t.Fatalf("errors/dur: %v %v", m.Errors, m.DurationMS)
	}
	// 快照是拷贝
	m.Ops["repair/finish/success"] = 100
	if Snapshot().Ops["repair/finish/success"] != 2 {
		t.Fatalf("snapshot must be a copy")
	}
	ResetMetrics()
	if len(Snapshot().Ops) != 0 {
		t.Fatalf("reset")
	}
}

// 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(2, 4, "integer/asc")
	term.FileDone("data/in1.txt", "clean", 1200, 0)
	term.MergeProgress(1, 1, 2048) // 非 TTY：不输出进度
	term.FileDone("data/in2.txt", "corrupted", 0, 3)
	term.RunFinish(true, "out.txt", 2048, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] files=2 | mode=integer/asc | concurrency=4",
		"[ok] in1.txt | 1/2 | kept 1,200 | rejected 0",
		"[skip] in2.txt | 2/2 | kept 0 | rejected 3",
		"[done] out.txt (2.0 KiB) | files 2 | 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(3, 1, "string/asc")

	term.MergeProgress(1, 3, 10)
	first := sb.String()
	if !strings.Contains(first, "\r[merge] 1/3") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.MergeProgress(2, 3, 20)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	// 最后一步不节流
	term.MergeProgress(3, 3, 30)
	if !strings.Contains(sb.String(), "[merge] 3/3") {
		t.Fatalf("final progress should be printed: %q", sb.String())
	}
	term.RunFinish(false, "", 0, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

// 写失败降级为禁用态
func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.RunStart(1, 1, "x")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileDone("a", "clean", 0, 0)
	term.MergeProgress(0, 0, 0)
	term.RunFinish(true, "o", 0, 0)

	var tn *Terminal
	tn.RunStart(1, 1, "x")
	tn.FileDone("a", "clean", 0, 0)
	tn.RunFinish(true, "o", 0, 0)
}

func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.txt", 10); len([]rune(got)) != 10 {
		t.Fatalf("shortenBase: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	var sb strings.Builder
	if NewTerminal(&sb, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}
