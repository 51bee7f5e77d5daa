package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量覆盖前缀。
const EnvPrefix = "SORTIT_"

// DefaultFiles: 未显式指定时在工作目录按序查找的配置文件。
var DefaultFiles = []string{"sortit.json", "sortit.yaml", "sortit.yml"}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Inputs/Output 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Order:         "asc",
		Type:          "string",
		Concurrency:   1,
		MergeStrategy: "stack",
		Temp:          Temp{Backend: "os", Prefix: "sort_"},
		Logging:       Logging{Level: "info", Dir: "logs"},
	}
}

// ResolvePath 决定配置文件来源：显式路径 > SORTIT_CONFIG_FILE > 工作目录默认文件；均无时返回空。
func ResolvePath(explicit string, environ []string, dir string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, EnvPrefix+"CONFIG_FILE="); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// Load 按扩展名选择解码器：.yaml/.yml 走 YAML，其余按 JSON。
func Load(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadYAML 与 LoadJSON 等价，但以 YAML 解码（KnownFields 严格模式）。空文档视为空配置。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func source(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/切片为"替换"；零值视为未设置，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	setStr(&out.Output, over.Output)
	setStr(&out.Order, over.Order)
	setStr(&out.Type, over.Type)
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	setStr(&out.MergeStrategy, over.MergeStrategy)

	setStr(&out.Temp.Backend, over.Temp.Backend)
	setStr(&out.Temp.Dir, over.Temp.Dir)
	setStr(&out.Temp.Prefix, over.Temp.Prefix)

	if over.Scan.BufSize != 0 {
		out.Scan.BufSize = over.Scan.BufSize
	}
	if over.Scan.MaxLineBytes != 0 {
		out.Scan.MaxLineBytes = over.Scan.MaxLineBytes
	}
	if len(over.Reader.ExcludeDirNames) > 0 {
		out.Reader.ExcludeDirNames = cloneStrings(over.Reader.ExcludeDirNames)
	}

	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.Logging.Dir, over.Logging.Dir)
	if over.Logging.MaxBytes != 0 {
		out.Logging.MaxBytes = over.Logging.MaxBytes
	}
	setStr(&out.Report, over.Report)
	return out
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 前缀 SORTIT_；集合外的键忽略；数值键解析失败时报错。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[len(EnvPrefix):eq], kv[eq+1:]
		if strings.TrimSpace(val) == "" {
			continue
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "OUTPUT":
			over.Output = val
		case "ORDER":
			over.Order = val
		case "TYPE":
			over.Type = val
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "MERGE_STRATEGY":
			over.MergeStrategy = val
		case "TEMP_BACKEND":
			over.Temp.Backend = val
		case "TEMP_DIR":
			over.Temp.Dir = val
		case "TEMP_PREFIX":
			over.Temp.Prefix = val
		case "SCAN_BUF_SIZE":
			over.Scan.BufSize, err = atoi(val)
		case "SCAN_MAX_LINE_BYTES":
			over.Scan.MaxLineBytes, err = atoi(val)
		case "READER_EXCLUDE_DIR_NAMES":
			over.Reader.ExcludeDirNames = splitComma(val)
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "LOG_MAX_BYTES":
			var n int
			n, err = atoi(val)
			over.Logging.MaxBytes = int64(n)
		case "REPORT":
			over.Report = val
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }
