package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/internal/pipeline"
	"github.com/Rhythmeen/merge/pkg/contract"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func fixture(name string) string { return filepath.Join("..", "..", "testdata", "inputs", name) }

type result struct {
	code           int
	stdout, stderr string
}

// invoke 以隔离的日志目录运行 CLI。
func invoke(t *testing.T, args ...string) result {
	t.Helper()
	var out, errb strings.Builder
	base := []string{"--log-dir", t.TempDir(), "--status=false"}
	code := run(append(base, args...), &out, &errb)
	return result{code: code, stdout: out.String(), stderr: errb.String()}
}

func readLines(t *testing.T, p string) []string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestRunEndToEndIntegerAscending(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	rep := filepath.Join(dir, "report.json")
	missing := filepath.Join(dir, "missing.txt")

	r := invoke(t, "-a", "-i", "--report", rep, out,
		fixture("clean.txt"), fixture("partial.txt"), fixture("corrupted.txt"), fixture("empty.txt"), missing)
	require.Equal(t, 0, r.code, r.stderr)

	assert.Equal(t, []string{"1", "2", "3", "4", "9", "10", "12", "15"}, readLines(t, out))
	for _, want := range []string{
		"Validating files...",
		"Finished validating 5 files.",
		"2 files to sort overall.",
		"1 files will be only partially sorted.",
		"3 files will be skipped.",
		"Skipped files (empty, corrupted or invalid data):",
		"  " + fixture("corrupted.txt"),
		"  " + missing,
		"Partially processed files (data is partially invalid):",
		"  " + fixture("partial.txt"),
	} {
		assert.Contains(t, r.stdout, want)
	}

	b, err := os.ReadFile(rep)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "integer/asc", doc["mode"])
	assert.Equal(t, out, doc["output"])
	assert.Equal(t, true, doc["succeeded"])

	// 输入保持不变
	assert.Equal(t, []string{"2", "3", "x", "10", "-4", "12"}, readLines(t, fixture("partial.txt")))
}

func TestRunDescending(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r := invoke(t, "-d", "-i", out, fixture("desc.txt"), fixture("clean.txt"))
	require.Equal(t, 0, r.code, r.stderr)
	// clean.txt 在降序下仅首行有效
	assert.Equal(t, []string{"30", "20", "10", "1"}, readLines(t, out))
	assert.Contains(t, r.stdout, "  "+fixture("clean.txt"))
}

// 缺省为字符串升序
func TestRunDefaultsToStringAscending(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("10\n9\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("apple\nbanana split\ncherry\n"), 0o644))
	out := filepath.Join(dir, "out.txt")

	r := invoke(t, out, a, b)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, []string{"10", "9", "apple", "cherry"}, readLines(t, out))
}

func TestRunMemBackendBalanced(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.txt")
	r := invoke(t, "-i", "--temp-backend", "mem", "--strategy", "balanced", "--concurrency", "3",
		out, fixture("clean.txt"), fixture("partial.txt"), fixture("clean.txt"))
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, []string{"1", "1", "2", "3", "4", "4", "9", "9", "10", "12", "15", "15"}, readLines(t, out))
}

func TestRunNothingToSort(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r := invoke(t, "-i", out, fixture("corrupted.txt"), fixture("empty.txt"))
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Nothing to sort")
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestRunArgumentErrors(t *testing.T) {
	cases := map[string][]string{
		"both orders":  {"-a", "-d", "out.txt", "in.txt"},
		"both types":   {"-i", "-s", "out.txt", "in.txt"},
		"unknown flag": {"--bogus", "out.txt", "in.txt"},
		"output only":  {"-a", "out.txt"},
		"nothing":      {},
		"concurrency":  {"--concurrency", "0", "out.txt", "in.txt"},
		"strategy":     {"--strategy", "random", "out.txt", "in.txt"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			r := invoke(t, args...)
			assert.Equal(t, 1, r.code)
			assert.Contains(t, r.stderr, usage)
			assert.Empty(t, r.stdout, "no file may be touched before arguments are valid")
		})
	}
	r := invoke(t, "out.txt")
	assert.Contains(t, r.stderr, "Specify output file path and at least one input file path as arguments")
}

func TestRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("3\n1\n5\n"), 0o644))
	out := filepath.Join(dir, "out.txt")
	cfg := filepath.Join(dir, "sortit.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("inputs: ["+in+"]\noutput: "+out+"\ntype: integer\n"), 0o644))

	r := invoke(t, "--config", cfg)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, []string{"3", "5"}, readLines(t, out))

	// CLI 位置参数覆盖文件
	out2 := filepath.Join(dir, "out2.txt")
	r = invoke(t, "--config", cfg, "-d", out2, in)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, []string{"3", "1"}, readLines(t, out2))
}

func TestRunBadConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"inputs":["a"],"colour":"red"}`), 0o644))
	r := invoke(t, "--config", cfg, "out.txt", "in.txt")
	assert.Equal(t, 1, r.code)
}

func TestRunEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("b\na\n"), 0o644))
	t.Setenv("SORTIT_ORDER", "desc")
	out := filepath.Join(dir, "out.txt")

	r := invoke(t, out, in)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, []string{"b", "a"}, readLines(t, out))
}

func TestRunInitConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	r := invoke(t, "--init-config="+dir)
	require.Equal(t, 0, r.code, r.stderr)
	for _, name := range []string{"sortit.json", "sortit.yaml"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, r.stdout, "wrote ")
}

func TestRunPipelineFailure(t *testing.T) {
	orig := pipelineRun
	defer func() { pipelineRun = orig }()
	dir := t.TempDir()

	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, contract.ErrTempUnavailable
	}
	rep := filepath.Join(dir, "r.json")
	r := invoke(t, "--report", rep, filepath.Join(dir, "o.txt"), "in.txt")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "temp storage unavailable")
	b, err := os.ReadFile(rep)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"succeeded":false`)

	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, errors.Join(errors.New("repair a"), context.Canceled)
	}
	r = invoke(t, filepath.Join(dir, "o.txt"), "in.txt")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "interrupted")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("# c\nexport SORTIT_TEST_A=\"x y\"\nSORTIT_TEST_B=keep\nnoeq\n"), 0o644))
	t.Setenv("SORTIT_TEST_B", "preset")
	t.Setenv("SORTIT_TEST_A", "")
	os.Unsetenv("SORTIT_TEST_A")

	require.NoError(t, loadDotEnv(p))
	assert.Equal(t, "x y", os.Getenv("SORTIT_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("SORTIT_TEST_B"))
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "absent")))
}
