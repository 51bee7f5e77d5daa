package contract

// FileID: 逻辑文件标识（通常为路径，需规范化，跨平台一致）。
// 仅用于日志与报告字段，不参与文件打开。
type FileID string

// Status: 单个输入文件的校验结论（封闭集合，三者必居其一）。
type Status int

const (
	// Clean: 全部行通过，修复副本与源内容一致。
	Clean Status = iota
	// PartiallyCorrupted: 至少一行被拒、至少一行被接受；修复副本仅含被接受的行。
	PartiallyCorrupted
	// Corrupted: 空文件、无任何可接受行，或读取中途发生 I/O 失败；不保留副本。
	Corrupted
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case PartiallyCorrupted:
		return "partially_corrupted"
	case Corrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// Usable 报告该结论是否带有可参与合并的副本。
func (s Status) Usable() bool { return s == Clean || s == PartiallyCorrupted }

// Outcome: FileRepair 的产出。
// 约束：
//   - Status 为 Clean/PartiallyCorrupted 时 Path 非空，且指向至少含一行的临时副本；
//   - Status 为 Corrupted 时 Path 为空，临时副本（若曾创建）已删除；
//   - Err 仅在因 I/O 失败而放弃该文件时非空（此时 Status 必为 Corrupted）。
type Outcome struct {
	Source   string
	Status   Status
	Path     string
	Accepted int64
	Rejected int64
	Err      error
}
