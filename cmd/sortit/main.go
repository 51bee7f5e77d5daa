package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "github.com/Rhythmeen/merge/internal/config"
	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/internal/pipeline"
	"github.com/Rhythmeen/merge/internal/report"
)

var pipelineRun = pipeline.Run

const usage = "USAGE: sort-it -a | -d  -i | -s out.txt in1.txt in2.txt"

// 退出码：0 成功（与单文件结论无关）；1 参数/配置错误；2 运行期致命错误（环境、取消）。
const (
	exitOK    = 0
	exitUsage = 1
	exitFatal = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带退出码；err 为空时不再打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, a ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, a...)}
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "sort-it: %v\n", ee.err)
		}
		if ee.code == exitUsage {
			fmt.Fprintln(stderr, usage)
		}
		return ee.code
	}
	// cobra 自身的解析错误（未知旗标、互斥旗标等）
	fmt.Fprintf(stderr, "sort-it: %v\n%s\n", err, usage)
	return exitUsage
}

type options struct {
	ascending, descending bool
	integer, str          bool

	config      string
	concurrency int
	strategy    string
	tempBackend string
	tempDir     string
	maxLine     int
	report      string
	logLevel    string
	logDir      string
	verbose     bool
	status      bool
	initDir     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "sort-it [-a|-d] [-i|-s] OUTPUT INPUT...",
		Short: "Merge sorted text files into one, repairing out-of-order or invalid lines",
		Long: `sort-it merges already-sorted, newline-delimited files into a single sorted output.
Lines that are invalid for the data type, or that break the sort order, are skipped;
files with no usable line are skipped entirely and reported.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), cmd, o, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.SortFlags = false
	f.BoolVarP(&o.ascending, "ascending", "a", false, "sort ascending (default)")
	f.BoolVarP(&o.descending, "descending", "d", false, "sort descending")
	f.BoolVarP(&o.integer, "integer", "i", false, "records are integers")
	f.BoolVarP(&o.str, "string", "s", false, "records are strings without whitespace (default)")
	f.StringVar(&o.config, "config", "", "config file (.json|.yaml); defaults to $SORTIT_CONFIG_FILE or ./sortit.json|.yaml")
	f.IntVar(&o.concurrency, "concurrency", 0, "number of files validated in parallel")
	f.StringVar(&o.strategy, "strategy", "", "merge order: stack|balanced")
	f.StringVar(&o.tempBackend, "temp-backend", "", "temp file medium: os|mem")
	f.StringVar(&o.tempDir, "temp-dir", "", "directory for temp files (default: system temp dir)")
	f.IntVar(&o.maxLine, "max-line-bytes", 0, "longest accepted line in bytes")
	f.StringVar(&o.report, "report", "", "write a canonical JSON run report to this path")
	f.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error")
	f.StringVar(&o.logDir, "log-dir", "", "directory for structured logs")
	f.BoolVar(&o.verbose, "verbose", false, "also write structured logs to stderr")
	f.BoolVar(&o.status, "status", true, "progress lines on stderr")
	f.StringVar(&o.initDir, "init-config", "", "write sortit.json and sortit.yaml templates into DIR (never overwrites) and exit")
	f.Lookup("init-config").NoOptDefVal = "."
	cmd.MarkFlagsMutuallyExclusive("ascending", "descending")
	cmd.MarkFlagsMutuallyExclusive("integer", "string")
	return cmd
}

func execute(ctx context.Context, cmd *cobra.Command, o options, args []string, stdout, stderr io.Writer) error {
	start := time.Now()
	if strings.TrimSpace(o.initDir) != "" {
		wrote, err := cfgpkg.WriteTemplate(strings.TrimSpace(o.initDir))
		if err != nil {
			return &exitError{code: exitFatal, err: fmt.Errorf("init config: %w", err)}
		}
		for _, p := range wrote {
			fmt.Fprintf(stdout, "wrote %s\n", p)
		}
		return nil
	}

	cfg, err := loadConfig(cmd, o, args)
	if err != nil {
		return err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	corrID := uuid.NewString()
	var tee io.Writer
	if o.verbose {
		tee = stderr
	}
	logger := diag.NewLogger(corrID, cfg.Logging.Level, diag.LogOptions{Dir: cfg.Logging.Dir, MaxBytes: cfg.Logging.MaxBytes, Tee: tee})
	defer logger.Close()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		code := exitFatal
		if errors.Is(err, cfgpkg.ErrInvalid) {
			code = exitUsage
		}
		diag.Record(logger, "config", "assemble failed", "", err)
		return &exitError{code: code, err: err}
	}
	logger.Debug("config", "effective", "", map[string]string{
		"inputs_count":   fmt.Sprint(len(cfg.Inputs)),
		"output":         cfg.Output,
		"mode":           set.Mode.String(),
		"concurrency":    fmt.Sprint(cfg.Concurrency),
		"merge_strategy": cfg.MergeStrategy,
		"temp_backend":   cfg.Temp.Backend,
	})

	term := diag.NewTerminal(stderr, o.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	diag.ResetMetrics()

	report.Start(stdout)
	t := logger.Start("pipeline", "run")
	res, runErr := pipelineRun(ctx, comp, set, logger)
	if runErr != nil {
		diag.Record(logger, "pipeline", "run failed", "", runErr)
		term.RunFinish(false, "", 0, time.Since(start))
		writeReport(cfg.Report, corrID, set, res, runErr, logger, stderr)
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: exitFatal, err: errors.New("interrupted")}
		}
		return &exitError{code: exitFatal, err: fmt.Errorf("run failed: %w", runErr)}
	}
	t.Finish("run", int64(len(res.Outcomes)))
	diag.IncOp("pipeline", "finish", "success")

	report.Summary(stdout, res)
	var size int64
	if st, err := os.Stat(res.Output); err == nil {
		size = st.Size()
	}
	term.RunFinish(true, res.Output, size, time.Since(start))
	if !writeReport(cfg.Report, corrID, set, res, nil, logger, stderr) {
		return &exitError{code: exitFatal}
	}
	return nil
}

// loadConfig 按优先级合并：Defaults < 文件 < ENV(SORTIT_*) < CLI。
func loadConfig(cmd *cobra.Command, o options, args []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	if p := cfgpkg.ResolvePath(o.config, os.Environ(), "."); p != "" {
		base, err := cfgpkg.Load(p)
		if err != nil {
			return cfg, usageErr("%v", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, usageErr("%v", err)
	}
	cfg = cfgpkg.Merge(cfg, over)

	var cli cfgpkg.Config
	switch len(args) {
	case 0:
	case 1:
		return cfg, usageErr("Specify output file path and at least one input file path as arguments")
	default:
		cli.Output = args[0]
		cli.Inputs = args[1:]
	}
	switch {
	case o.ascending:
		cli.Order = "asc"
	case o.descending:
		cli.Order = "desc"
	}
	switch {
	case o.integer:
		cli.Type = "integer"
	case o.str:
		cli.Type = "string"
	}
	if cmd.Flags().Changed("concurrency") {
		cli.Concurrency = o.concurrency
		if o.concurrency < 1 {
			return cfg, usageErr("--concurrency must be >= 1")
		}
	}
	cli.MergeStrategy = o.strategy
	cli.Temp.Backend = o.tempBackend
	cli.Temp.Dir = o.tempDir
	if cmd.Flags().Changed("max-line-bytes") {
		if o.maxLine < 1 {
			return cfg, usageErr("--max-line-bytes must be >= 1")
		}
		cli.Scan.MaxLineBytes = o.maxLine
	}
	cli.Report = o.report
	cli.Logging.Level = o.logLevel
	cli.Logging.Dir = o.logDir
	cfg = cfgpkg.Merge(cfg, cli)
	if len(cfg.Inputs) == 0 || strings.TrimSpace(cfg.Output) == "" {
		return cfg, usageErr("Specify output file path and at least one input file path as arguments")
	}
	return cfg, nil
}

// writeReport 在配置了报告路径时写出；失败返回 false 并提示。
func writeReport(path, corrID string, set pipeline.Settings, res pipeline.Result, runErr error, logger *diag.Logger, stderr io.Writer) bool {
	if strings.TrimSpace(path) == "" {
		return true
	}
	doc := report.Build(corrID, set.Mode, res, runErr, diag.Snapshot())
	if err := report.WriteFile(path, doc); err != nil {
		diag.Record(logger, "report", "write report failed", path, err)
		fmt.Fprintf(stderr, "sort-it: write report: %v\n", err)
		return false
	}
	return true
}

// loadDotEnv 读取简单的 .env 文件并注入进程环境：
// 跳过空行与 # 注释；支持可选前缀 "export "；按首个 '=' 分割；去除成对引号；
// 不覆盖已存在的环境变量。文件不存在时忽略。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}
