package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"certgen/pkg/contract"
	cpdf "certgen/plugins/compositor/pdf"
	lman "certgen/plugins/ledger/manifest"
	lmy "certgen/plugins/ledger/mysql"
	lpg "certgen/plugins/ledger/pgsql"
	lrds "certgen/plugins/ledger/redis"
	ptab "certgen/plugins/parser/table"
	rfs "certgen/plugins/reader/filesystem"
	rras "certgen/plugins/renderer/raster"
	wfs "certgen/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidInput, err)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewParser 工厂签名：接收原样 JSON Options。
type NewParser func(raw json.RawMessage) (contract.Parser, error)

// NewRenderer 工厂签名：接收原样 JSON Options。
type NewRenderer func(raw json.RawMessage) (contract.Renderer, error)

// NewCompositor 工厂签名：接收原样 JSON Options。
type NewCompositor func(raw json.RawMessage) (contract.Compositor, error)

// NewWriter 工厂签名：Options 与输出根目录（来自 paths.output）。
type NewWriter func(raw json.RawMessage, root string) (contract.Writer, error)

// NewLedger 工厂签名：Options 与已装配的 Writer。
// 返回 (nil, nil) 表示不记账。
type NewLedger func(raw json.RawMessage, w contract.Writer) (contract.Ledger, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader；未指定 allow_exts 时只收集可解析的表格。
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		if opts.AllowExts == nil {
			opts.AllowExts = ptab.Extensions
		}
		return rfs.New(&opts), nil
	},
}

// Parser 工厂注册表。
var Parser = map[string]NewParser{
	// table: CSV/TSV/XLSX
	"table": func(raw json.RawMessage) (contract.Parser, error) {
		var opts ptab.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ptab.New(&opts)
	},
}

// Renderer 工厂注册表。
var Renderer = map[string]NewRenderer{
	// raster: 模板图像 + 自适应字号文字（JPEG/PNG）
	"raster": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts rras.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rras.New(&opts)
	},
}

// Compositor 工厂注册表。
var Compositor = map[string]NewCompositor{
	// pdf: 一页一图的多页 PDF
	"pdf": func(raw json.RawMessage) (contract.Compositor, error) {
		var opts cpdf.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cpdf.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage, root string) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(root, &opts)
	},
}

// Ledger 工厂注册表。
var Ledger = map[string]NewLedger{
	// manifest: 批次目录内的 batch.json
	"manifest": func(raw json.RawMessage, w contract.Writer) (contract.Ledger, error) {
		var opts lman.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lman.New(w, &opts)
	},
	"redis": func(raw json.RawMessage, _ contract.Writer) (contract.Ledger, error) {
		var opts lrds.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lrds.New(&opts)
	},
	"pgsql": func(raw json.RawMessage, _ contract.Writer) (contract.Ledger, error) {
		var opts lpg.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lpg.New(&opts)
	},
	"mysql": func(raw json.RawMessage, _ contract.Writer) (contract.Ledger, error) {
		var opts lmy.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lmy.New(&opts)
	},
	// none: 不记账
	"none": func(raw json.RawMessage, _ contract.Writer) (contract.Ledger, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return nil, nil
	},
}
