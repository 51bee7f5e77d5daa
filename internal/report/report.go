// Package report 输出运行结论：控制台摘要与可选的规范化 JSON 报告。
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/Rhythmeen/merge/internal/diag"
	"github.com/Rhythmeen/merge/internal/pipeline"
	"github.com/Rhythmeen/merge/pkg/contract"
)

// Start 在运行前打印。
func Start(w io.Writer) { fmt.Fprintln(w, "Validating files...") }

// Summary 打印分类计数与被跳过、部分处理的原始路径。
func Summary(w io.Writer, res pipeline.Result) {
	fmt.Fprintf(w, "Finished validating %d files.\n", len(res.Outcomes))
	fmt.Fprintf(w, "%d files to sort overall.\n", len(res.ToProcess))
	fmt.Fprintf(w, "%d files will be only partially sorted.\n", len(res.PartiallyFailed))
	fmt.Fprintf(w, "%d files will be skipped.\n", len(res.Failed))
	if res.Output != "" {
		fmt.Fprintln(w, "Sorting...")
		fmt.Fprintf(w, "Finished sorting. Result written to %s\n", res.Output)
	} else if len(res.ToProcess) == 0 {
		fmt.Fprintln(w, "Nothing to sort, no output written.")
	}
	if len(res.Failed) > 0 {
		fmt.Fprintln(w, "Skipped files (empty, corrupted or invalid data):")
		for _, p := range res.Failed {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if len(res.PartiallyFailed) > 0 {
		fmt.Fprintln(w, "Partially processed files (data is partially invalid):")
		for _, p := range res.PartiallyFailed {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

// Document: JSON 报告结构。字段顺序不影响输出（规范化后按键排序）。
type Document struct {
	CorrID    string       `json:"corr_id"`
	Mode      string       `json:"mode"`
	Output    string       `json:"output"`
	Files     []File       `json:"files"`
	Sorted    int          `json:"sorted"`
	Skipped   []string     `json:"skipped"`
	Partial   []string     `json:"partially_processed"`
	Metrics   diag.Metrics `json:"metrics"`
	Succeeded bool         `json:"succeeded"`
}

// File: 单个输入的结论。
type File struct {
	Path     string `json:"path"`
	Status   string `json:"status"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

// Build 由运行结果构造报告；runErr 非空表示运行失败。
func Build(corrID string, mode contract.Mode, res pipeline.Result, runErr error, m diag.Metrics) Document {
	doc := Document{
		CorrID:    corrID,
		Mode:      mode.String(),
		Output:    res.Output,
		Files:     make([]File, 0, len(res.Outcomes)),
		Sorted:    len(res.ToProcess),
		Skipped:   nonNil(res.Failed),
		Partial:   nonNil(res.PartiallyFailed),
		Metrics:   m,
		Succeeded: runErr == nil,
	}
	for _, o := range res.Outcomes {
		f := File{Path: o.Source, Status: o.Status.String(), Accepted: o.Accepted, Rejected: o.Rejected}
		if o.Err != nil {
			f.Error = o.Err.Error()
		}
		doc.Files = append(doc.Files, f)
	}
	return doc
}

// Canonical 返回 RFC 8785 规范化 JSON；相同内容总是产生相同字节。
func Canonical(doc Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jsoncanonicalizer.Transform(b)
}

// WriteFile 将规范化报告写入 path（先写同目录临时文件再 rename）。
func WriteFile(path string, doc Document) error {
	b, err := Canonical(doc)
	if err != nil {
		return fmt.Errorf("report canonicalize: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-report-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
