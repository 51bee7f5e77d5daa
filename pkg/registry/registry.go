package registry

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/afero"

	"github.com/Rhythmeen/merge/pkg/contract"
	"github.com/Rhythmeen/merge/plugins/order"
	rfs "github.com/Rhythmeen/merge/plugins/reader/filesystem"
	"github.com/Rhythmeen/merge/plugins/splitter/lines"
	sfs "github.com/Rhythmeen/merge/plugins/store/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewStore 工厂签名：接收原样 JSON Options。
type NewStore func(raw json.RawMessage) (contract.TempStore, error)

// NewOrder 工厂签名：合并顺序策略当前无选项，仍接收 raw 以拒绝未知字段。
type NewOrder func(raw json.RawMessage) (contract.MergeOrder, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 本地文件系统；目录根递归展开
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// lines: 换行分隔记录
	"lines": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts lines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lines.New(&opts), nil
	},
}

// Store 临时文件介质注册表。
var Store = map[string]NewStore{
	// os: 本地临时目录；最终输出同介质 rename
	"os": func(raw json.RawMessage) (contract.TempStore, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return newStore(&opts, afero.NewOsFs(), nil)
	},
	// mem: 内存临时文件；最终输出复制到本地文件系统
	"mem": func(raw json.RawMessage) (contract.TempStore, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return newStore(&opts, afero.NewMemMapFs(), afero.NewOsFs())
	},
}

// newStore 避免将 nil *Store 包装为非 nil 接口。
func newStore(opts *sfs.Options, tmp, out afero.Fs) (contract.TempStore, error) {
	s, err := sfs.New(opts, tmp, out)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Order 合并顺序注册表。
var Order = map[string]NewOrder{
	// stack: 每次合并队尾两项（默认）
	"stack": func(raw json.RawMessage) (contract.MergeOrder, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return order.Stack{}, nil
	},
	// balanced: 每次合并队首两项，产物入队尾
	"balanced": func(raw json.RawMessage) (contract.MergeOrder, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return order.Balanced{}, nil
	},
}
