package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: 输入表格（文件/目录 或 "-"）。相对路径找不到时按 paths.uploads 解析。
	Inputs []string `json:"inputs"`
	// Template: 模板图像路径。相对路径找不到时按 paths.templates 解析。
	Template    string `json:"template"`
	Concurrency int    `json:"concurrency"`
	// Collision: overwrite|suffix。
	Collision string  `json:"collision"`
	Paths     Paths   `json:"paths"`
	Logging   Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Paths: 根目录（显式传入，核心内不设进程级默认）。
type Paths struct {
	Templates string `json:"templates"`
	Uploads   string `json:"uploads"`
	Output    string `json:"output"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader     string `json:"reader"`
	Parser     string `json:"parser"`
	Renderer   string `json:"renderer"`
	Compositor string `json:"compositor"`
	Writer     string `json:"writer"`
	Ledger     string `json:"ledger"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader     json.RawMessage `json:"reader"`
	Parser     json.RawMessage `json:"parser"`
	Renderer   json.RawMessage `json:"renderer"`
	Compositor json.RawMessage `json:"compositor"`
	Writer     json.RawMessage `json:"writer"`
	Ledger     json.RawMessage `json:"ledger"`
}
