package stress

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	cfgpkg "github.com/Rhythmeen/merge/internal/config"
	"github.com/Rhythmeen/merge/internal/pipeline"
	"github.com/Rhythmeen/merge/pkg/contract"
)

// genInputs 生成 n 个有序整数文件，约 5% 的行为噪声（非法或逆序）。
func genInputs(t testing.TB, dir string, n, lines int, seed int64) []string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("in-%03d.txt", i))
		f, err := os.Create(p)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		w := bufio.NewWriter(f)
		v := rng.Int63n(1000) - 500
		for j := 0; j < lines; j++ {
			switch r := rng.Intn(100); {
			case r < 3:
				fmt.Fprintln(w, "not-a-number")
			case r < 5:
				fmt.Fprintln(w, v-1-rng.Int63n(100))
			default:
				v += rng.Int63n(10)
				fmt.Fprintln(w, v)
			}
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

// readSorted 读取输出并验证非降序。
func readSorted(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	m := contract.Mode{Type: contract.Integer}
	sc := bufio.NewScanner(f)
	var out []string
	for sc.Scan() {
		line := sc.Text()
		if n := len(out); n > 0 && !contract.Accept(m, line, out[n-1], true) {
			t.Fatalf("output not sorted at line %d: %q after %q", n+1, line, out[n-1])
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

// acceptedLines 按跳过并继续的规则独立计算全部输入应保留的行。
func acceptedLines(t *testing.T, inputs []string) []string {
	t.Helper()
	m := contract.Mode{Type: contract.Integer}
	var all []string
	for _, p := range inputs {
		f, err := os.Open(p)
		if err != nil {
			t.Fatalf("open input: %v", err)
		}
		sc := bufio.NewScanner(f)
		var prev string
		has := false
		for sc.Scan() {
			if line := sc.Text(); contract.Accept(m, line, prev, has) {
				all = append(all, line)
				prev, has = line, true
			}
		}
		_ = f.Close()
		if err := sc.Err(); err != nil {
			t.Fatalf("scan input: %v", err)
		}
	}
	sort.Strings(all)
	return all
}

// TestStress 在不同并发度与合并顺序下运行完整流程并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}
	dataDir := t.TempDir()
	inputs := genInputs(t, dataDir, 64, 2000, 42)
	want := acceptedLines(t, inputs)

	for _, strategy := range []string{"stack", "balanced"} {
		for _, conc := range []int{1, 4, 16} {
			t.Run(fmt.Sprintf("%s_concurrency_%d", strategy, conc), func(t *testing.T) {
				const runs = 3
				latencies := make([]time.Duration, 0, runs)
				for i := 0; i < runs; i++ {
					cfg := cfgpkg.Merge(cfgpkg.Defaults(), cfgpkg.Config{
						Inputs:        inputs,
						Output:        filepath.Join(t.TempDir(), "out.txt"),
						Type:          "integer",
						Concurrency:   conc,
						MergeStrategy: strategy,
						Temp:          cfgpkg.Temp{Dir: t.TempDir()},
					})
					comp, set, err := cfgpkg.Assemble(cfg)
					if err != nil {
						t.Fatalf("assemble: %v", err)
					}
					start := time.Now()
					res, err := pipeline.Run(context.Background(), comp, set, nil)
					dur := time.Since(start)
					if err != nil {
						t.Fatalf("run %d: %v", i, err)
					}
					got := readSorted(t, res.Output)
					sort.Strings(got)
					if diff := cmp.Diff(want, got); diff != "" {
						t.Fatalf("output is not the accepted multiset (-want +got):\n%s", diff)
					}
					ents, _ := os.ReadDir(cfg.Temp.Dir)
					if len(ents) != 0 {
						t.Fatalf("temp files left: %d", len(ents))
					}
					latencies = append(latencies, dur)
				}
				sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
				var total time.Duration
				for _, d := range latencies {
					total += d
				}
				avg := total / time.Duration(len(latencies))
				idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
				if idx < 0 {
					idx = 0
				}
				t.Logf("%s 并发%d 平均%v 95%%延迟%v", strategy, conc, avg, latencies[idx])
			})
		}
	}
}

// BenchmarkTwoFiles 基准：两个大文件的完整流程。
func BenchmarkTwoFiles(b *testing.B) {
	dir := b.TempDir()
	inputs := genInputs(b, dir, 2, 50000, 7)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := cfgpkg.Merge(cfgpkg.Defaults(), cfgpkg.Config{
			Inputs: inputs, Output: filepath.Join(dir, "out-"+strconv.Itoa(i)+".txt"), Type: "integer",
		})
		comp, set, err := cfgpkg.Assemble(cfg)
		if err != nil {
			b.Fatalf("assemble: %v", err)
		}
		if _, err := pipeline.Run(context.Background(), comp, set, nil); err != nil {
			b.Fatalf("run: %v", err)
		}
	}
}
