package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs" yaml:"inputs"`
	Output string   `json:"output" yaml:"output"`
	// Order: asc|desc（缺省 asc）。
	Order string `json:"order" yaml:"order"`
	// Type: integer|string（缺省 string）。
	Type        string `json:"type" yaml:"type"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
	// MergeStrategy: 合并顺序注册名（stack|balanced）。
	MergeStrategy string  `json:"merge_strategy" yaml:"merge_strategy"`
	Temp          Temp    `json:"temp" yaml:"temp"`
	Scan          Scan    `json:"scan" yaml:"scan"`
	Reader        Reader  `json:"reader" yaml:"reader"`
	Logging       Logging `json:"logging" yaml:"logging"`
	// Report: 可选 JSON 报告输出路径。
	Report string `json:"report" yaml:"report"`
}

// Temp: 临时文件介质。
type Temp struct {
	// Backend: os|mem。
	Backend string `json:"backend" yaml:"backend"`
	Dir     string `json:"dir" yaml:"dir"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

// Scan: 行扫描边界。
type Scan struct {
	BufSize      int `json:"buf_size" yaml:"buf_size"`
	MaxLineBytes int `json:"max_line_bytes" yaml:"max_line_bytes"`
}

// Reader: 目录输入展开。
type Reader struct {
	ExcludeDirNames []string `json:"exclude_dir_names" yaml:"exclude_dir_names"`
}

// Logging: 日志等级、目录与轮转阈值。
type Logging struct {
	Level    string `json:"level" yaml:"level"`
	Dir      string `json:"dir" yaml:"dir"`
	MaxBytes int64  `json:"max_bytes" yaml:"max_bytes"`
}
