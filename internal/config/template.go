package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个"可运行"的默认配置模板：包含全部键，值为中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	d.Inputs = []string{"in1.txt", "in2.txt"}
	d.Output = "out.txt"
	d.Scan = Scan{BufSize: 64 * 1024, MaxLineBytes: 1024 * 1024}
	d.Reader = Reader{ExcludeDirNames: []string{".git"}}
	d.Logging.MaxBytes = 10 * 1024 * 1024
	return d
}

// WriteTemplate 在 dir 下生成 sortit.json 与 sortit.yaml；已存在的文件跳过，不覆盖。
// 返回实际写入的路径。
func WriteTemplate(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	cfg := DefaultTemplateConfig()
	jb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	yb, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var wrote []string
	files := []struct {
		name string
		b    []byte
	}{{"sortit.json", append(jb, '\n')}, {"sortit.yaml", yb}}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		ok, err := writeExcl(p, f.b)
		if err != nil {
			return wrote, err
		}
		if ok {
			wrote = append(wrote, p)
		}
	}
	return wrote, nil
}

func writeExcl(path string, b []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
