package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 模板与输入按 paths.templates / paths.uploads 解析；
// - 产物写入 paths.output/<batch_id>/，清单账本记录在批次目录；
// - 选项包含所有键，给出中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"people.csv"},
		Template:    "certificate.jpg",
		Concurrency: d.Concurrency,
		Collision:   d.Collision,
		Paths:       d.Paths,
		Logging:     d.Logging,
		Components:  d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules"],
  "allow_exts": [".csv", ".txt", ".tsv", ".tab", ".xlsx", ".xlsm"],
  "max_bytes": 0,
  "include_hidden": false
}`)
	cfg.Options.Parser = json.RawMessage(`{
  "format": "auto",
  "delimiter": "",
  "encoding": "auto",
  "sheet": "",
  "name_columns": [],
  "department_columns": []
}`)
	cfg.Options.Renderer = json.RawMessage(`{
  "font_path": "",
  "name_scale": 60,
  "department_scale": 40,
  "min_scale": 10,
  "step": 2,
  "margin": 0.12,
  "anchor": 0.45,
  "gap": 0.02,
  "department_prefix": "Department: ",
  "ink": "#000000",
  "format": "jpg",
  "quality": 95
}`)
	cfg.Options.Compositor = json.RawMessage(`{
  "output": "All_Certificates.pdf",
  "page_width": 210,
  "title": "",
  "author": ""
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Ledger = json.RawMessage(`{
  "file": "batch.json"
}`)
	return cfg
}
