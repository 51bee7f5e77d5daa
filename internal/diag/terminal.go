package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Terminal: 终端进度提示（非日志）。
// - 输出到提供的 io.Writer（默认 stderr）。
// - TTY: 合并进度单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	files       int
	filesDone   int
	concurrency int
	runStart    time.Time

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

var (
	tagOK   = color.New(color.FgGreen, color.Bold).SprintFunc()
	tagWarn = color.New(color.FgYellow).SprintFunc()
	tagFail = color.New(color.FgRed, color.Bold).SprintFunc()
	tagInfo = color.New(color.FgCyan).SprintFunc()
)

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return t
}

// RunStart: 记录运行上下文。
func (t *Terminal) RunStart(files, concurrency int, mode string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.files = files
	t.filesDone = 0
	t.concurrency = concurrency
	t.runStart = time.Now()
	t.println(fmt.Sprintf("%s files=%d | mode=%s | concurrency=%d", tagInfo("[run]"), files, safe(mode), concurrency))
}

// FileDone: 单个输入修复完成。status 取 clean|partially_corrupted|corrupted。
func (t *Terminal) FileDone(src, status string, accepted, rejected int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.filesDone++
	tag := tagOK("[ok]")
	switch status {
	case "partially_corrupted":
		tag = tagWarn("[part]")
	case "corrupted":
		tag = tagFail("[skip]")
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("%s %s | %d/%d | kept %s | rejected %s",
		tag, shortenBase(src, 48), t.filesDone, t.files, humanize.Comma(accepted), humanize.Comma(rejected)))
}

// MergeProgress: 合并进度（仅 TTY，≥100ms 节流）。
func (t *Terminal) MergeProgress(done, total int, bytes int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	now := time.Now()
	if done < total && now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("%s %d/%d | %s | %s", tagInfo("[merge]"), done, total, humanize.IBytes(uint64(bytes)), formatSince(t.runStart)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, output string, size int64, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	if !ok {
		t.println(fmt.Sprintf("%s files %d | %s", tagFail("[fail]"), t.filesDone, formatDur(dur)))
		return
	}
	t.println(fmt.Sprintf("%s %s (%s) | files %d | %s", tagOK("[done]"), safe(output), humanize.IBytes(uint64(size)), t.filesDone, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按 rune 截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
