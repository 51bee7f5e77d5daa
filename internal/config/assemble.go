package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Rhythmeen/merge/internal/pipeline"
	"github.com/Rhythmeen/merge/pkg/contract"
	"github.com/Rhythmeen/merge/pkg/registry"
	rfs "github.com/Rhythmeen/merge/plugins/reader/filesystem"
	"github.com/Rhythmeen/merge/plugins/splitter/lines"
	sfs "github.com/Rhythmeen/merge/plugins/store/filesystem"
)

// ErrInvalid 标记配置/参数错误（对应退出码 1）。
var ErrInvalid = errors.New("invalid config")

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// Mode 解析排序模式。
func Mode(cfg Config) (contract.Mode, error) {
	t, err := contract.ParseDataType(cfg.Type)
	if err != nil {
		return contract.Mode{}, invalid("type: %v", err)
	}
	d, err := contract.ParseDirection(cfg.Order)
	if err != nil {
		return contract.Mode{}, invalid("order: %v", err)
	}
	return contract.Mode{Type: t, Direction: d}, nil
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Output) == "" {
		return invalid("output path not set")
	}
	if len(cfg.Inputs) == 0 {
		return invalid("at least one input required")
	}
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return invalid("input path cannot be empty")
		}
	}
	if _, err := Mode(cfg); err != nil {
		return err
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	if registry.Order[cfg.MergeStrategy] == nil {
		return invalid("merge_strategy %q not registered", cfg.MergeStrategy)
	}
	if registry.Store[cfg.Temp.Backend] == nil {
		return invalid("temp.backend %q not registered", cfg.Temp.Backend)
	}
	if strings.ContainsAny(cfg.Temp.Prefix, `/\*`) {
		return invalid("temp.prefix %q must be a plain name", cfg.Temp.Prefix)
	}
	if cfg.Scan.BufSize < 0 || cfg.Scan.MaxLineBytes < 0 || cfg.Logging.MaxBytes < 0 {
		return invalid("scan/logging sizes must be >= 0")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level %q", cfg.Logging.Level)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	mode, _ := Mode(cfg)

	r, err := registry.Reader["fs"](mustRaw(rfs.Options{ExcludeDirNames: cfg.Reader.ExcludeDirNames}))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	s, err := registry.Splitter["lines"](mustRaw(lines.Options{BufSize: cfg.Scan.BufSize, MaxLineBytes: cfg.Scan.MaxLineBytes}))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	st, err := registry.Store[cfg.Temp.Backend](mustRaw(sfs.Options{Dir: cfg.Temp.Dir, Prefix: cfg.Temp.Prefix}))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	o, err := registry.Order[cfg.MergeStrategy](nil)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{Reader: r, Splitter: s, Store: st, Order: o}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Output:      cfg.Output,
		Mode:        mode,
		Concurrency: cfg.Concurrency,
	}
	return comp, set, nil
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
