package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certgen/internal/pipeline"
	"certgen/pkg/contract"
)

// 解析完整 config.json
func TestLoadJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultTemplateConfig())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Template != "certificate.jpg" || cfg.Components.Ledger != "manifest" || cfg.Paths.Output != "generated" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
}

func TestLoadJSONUnknown(t *testing.T) {
	if _, err := LoadJSON("", []byte(`{"unknown":1}`)); err == nil {
		t.Fatalf("应当返回错误")
	}
	if _, err := LoadJSON("", nil); err == nil {
		t.Fatalf("无来源应报错")
	}
	if _, err := LoadJSON(filepath.Join(t.TempDir(), "none.json"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("缺失文件应报错: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
inputs: [a.csv, b.xlsx]
template: award.png
concurrency: 2
collision: suffix
paths:
  output: out
components:
  ledger: none
options:
  renderer:
    format: png
    margin: 0.1
`
	path := filepath.Join(t.TempDir(), "certgen.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(yaml): %v", err)
	}
	if len(cfg.Inputs) != 2 || cfg.Template != "award.png" || cfg.Concurrency != 2 || cfg.Collision != "suffix" {
		t.Fatalf("YAML 映射错误: %+v", cfg)
	}
	var ro struct {
		Format string  `json:"format"`
		Margin float64 `json:"margin"`
	}
	if err := json.Unmarshal(cfg.Options.Renderer, &ro); err != nil || ro.Format != "png" || ro.Margin != 0.1 {
		t.Fatalf("嵌套 options 应转为原样 JSON: %s %v", cfg.Options.Renderer, err)
	}

	if _, err := LoadYAML("", []byte("template: x\nbogus: 1\n")); err == nil {
		t.Fatalf("YAML 未知字段应报错")
	}
	if _, err := LoadYAML("", []byte("template: [unclosed")); err == nil {
		t.Fatalf("非法 YAML 应报错")
	}
	if cfg, err := LoadYAML("", []byte("# empty\n")); err != nil || cfg.Template != "" {
		t.Fatalf("空文档应为零值: %v", err)
	}
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"CERTGEN_INPUTS=a.csv, b.csv",
		"CERTGEN_TEMPLATE= award.jpg ",
		"CERTGEN_CONCURRENCY=3",
		"CERTGEN_COLLISION=suffix",
		"CERTGEN_PATHS_OUTPUT=/srv/out",
		"CERTGEN_LOGGING_LEVEL=debug",
		"CERTGEN_COMPONENTS_LEDGER=redis",
		`CERTGEN_OPTIONS_LEDGER_JSON={"addr":"localhost:6379"}`,
		"CERTGEN_OPTIONS_RENDERER_JSON=",
		"CERTGEN_UNKNOWN=1",
		"HOME=/root",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if len(over.Inputs) != 2 || over.Template != "award.jpg" || over.Concurrency != 3 || over.Collision != "suffix" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.Paths.Output != "/srv/out" || over.Logging.Level != "debug" || over.Components.Ledger != "redis" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if string(over.Options.Ledger) != `{"addr":"localhost:6379"}` || over.Options.Renderer != nil {
		t.Fatalf("options 覆盖错误: %s / %s", over.Options.Ledger, over.Options.Renderer)
	}

	if _, err := EnvOverlay([]string{"CERTGEN_CONCURRENCY=many"}); err == nil {
		t.Fatalf("非法数字应报错")
	}
	if _, err := EnvOverlay([]string{"CERTGEN_OPTIONS_PARSER_JSON={"}); err == nil {
		t.Fatalf("非法 JSON 应报错")
	}
}

func TestMerge(t *testing.T) {
	base := Defaults()
	base.Options.Renderer = json.RawMessage(`{"format":"png"}`)
	over := Config{
		Template:   "t.jpg",
		Paths:      Paths{Output: "elsewhere"},
		Components: Components{Ledger: "none"},
		Options:    Options{Compositor: json.RawMessage(`{"output":"x.pdf"}`)},
	}
	got := Merge(base, over)
	if got.Template != "t.jpg" || got.Paths.Output != "elsewhere" || got.Paths.Uploads != "uploads" {
		t.Fatalf("Merge 字段错误: %+v", got.Paths)
	}
	if got.Components.Ledger != "none" || got.Components.Renderer != "raster" {
		t.Fatalf("Merge 组件错误: %+v", got.Components)
	}
	if string(got.Options.Renderer) != `{"format":"png"}` || string(got.Options.Compositor) != `{"output":"x.pdf"}` {
		t.Fatalf("Merge options 错误")
	}
	if got.Concurrency != base.Concurrency || got.Collision != "overwrite" {
		t.Fatalf("空值不应覆盖")
	}
}

func TestSplitCommaAtoi(t *testing.T) {
	parts := splitComma("a, b , ,c")
	if len(parts) != 3 || parts[1] != "b" {
		t.Fatalf("splitComma 结果错误: %v", parts)
	}
	if v, err := atoi("10"); err != nil || v != 10 {
		t.Fatalf("atoi 失败: %v %d", err, v)
	}
	src := []byte("abc")
	dst := cloneRaw(src)
	src[0] = 'x'
	if string(dst) != "abc" {
		t.Fatalf("cloneRaw 未复制")
	}
}

func TestValidateErrors(t *testing.T) {
	if err := Validate(Config{}); err == nil {
		t.Fatal("空配置应失败")
	}
	cases := map[string]func(*Config){
		"混用 '-'":         func(c *Config) { c.Inputs = []string{"-", "a"} },
		"空输入":            func(c *Config) { c.Inputs = []string{" "} },
		"缺少模板":           func(c *Config) { c.Template = "" },
		"并发为 0":          func(c *Config) { c.Concurrency = 0 },
		"未知策略":           func(c *Config) { c.Collision = "rename" },
		"缺少输出根":          func(c *Config) { c.Paths.Output = "" },
		"未注册 renderer":   func(c *Config) { c.Components.Renderer = "docx" },
		"未注册 ledger":     func(c *Config) { c.Components.Ledger = "mongo" },
		"未注册 parser":     func(c *Config) { c.Components.Parser = "ods" },
		"未注册 compositor": func(c *Config) { c.Components.Compositor = "zip" },
	}
	for name, mut := range cases {
		cfg := DefaultTemplateConfig()
		mut(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s 应失败", name)
		}
	}
}

func TestAssemble(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	if err := os.MkdirAll(filepath.Join("templates"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join("uploads"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("templates", "certificate.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("uploads", "people.csv"), []byte("name\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultTemplateConfig()
	cfg.Collision = "suffix"
	comp, set, err := Assemble(cfg)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if comp.Reader == nil || comp.Parser == nil || comp.Renderer == nil || comp.Compositor == nil || comp.Writer == nil || comp.Ledger == nil {
		t.Fatalf("组件未完整装配: %+v", comp)
	}
	if set.Template != filepath.Join("templates", "certificate.jpg") {
		t.Fatalf("模板应按 templates 根解析: %s", set.Template)
	}
	if len(set.Inputs) != 1 || set.Inputs[0] != filepath.Join("uploads", "people.csv") {
		t.Fatalf("输入应按 uploads 根解析: %v", set.Inputs)
	}
	if set.Collision != pipeline.CollisionSuffix || set.Concurrency != cfg.Concurrency {
		t.Fatalf("Settings 错误: %+v", set)
	}

	cfg.Components.Ledger = "none"
	comp, _, err = Assemble(cfg)
	if err != nil || comp.Ledger != nil {
		t.Fatalf("ledger=none 应不记账: %v", err)
	}

	cfg.Options.Renderer = json.RawMessage(`{"bogus":true}`)
	if _, _, err := Assemble(cfg); !errors.Is(err, contract.ErrInvalidInput) || !strings.Contains(err.Error(), "renderer") {
		t.Fatalf("组件选项错误应带组件名: %v", err)
	}
}

func TestBuildComponentsWithoutInputs(t *testing.T) {
	cfg := Defaults()
	cfg.Paths.Output = t.TempDir()
	comp, err := BuildComponents(cfg)
	if err != nil {
		t.Fatalf("BuildComponents: %v", err)
	}
	if comp.Writer == nil || comp.Ledger == nil {
		t.Fatalf("组件缺失")
	}
	cfg.Paths.Output = ""
	if _, err := BuildComponents(cfg); err == nil {
		t.Fatalf("缺少输出根应报错")
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	if err := os.MkdirAll("tpl", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("tpl", "a.png"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("local.png", nil, 0o644); err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(root, "x.png")
	cases := []struct{ in, root, want string }{
		{"a.png", "tpl", filepath.Join("tpl", "a.png")},
		{"local.png", "tpl", "local.png"},
		{"missing.png", "tpl", "missing.png"},
		{"-", "tpl", "-"},
		{abs, "tpl", abs},
		{"a.png", "", "a.png"},
	}
	for _, c := range cases {
		if got := Resolve(c.in, c.root); got != c.want {
			t.Fatalf("Resolve(%q,%q)=%q want %q", c.in, c.root, got, c.want)
		}
	}
}

// 默认模板包含各组件全部选项键，并可被注册表严格解析
func TestDefaultTemplateConfig(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Paths.Output = t.TempDir()
	if _, err := BuildComponents(cfg); err != nil {
		t.Fatalf("默认模板应可装配: %v", err)
	}
	for name, raw := range map[string]json.RawMessage{
		"reader": cfg.Options.Reader, "parser": cfg.Options.Parser, "renderer": cfg.Options.Renderer,
		"compositor": cfg.Options.Compositor, "writer": cfg.Options.Writer, "ledger": cfg.Options.Ledger,
	} {
		if !json.Valid(raw) {
			t.Fatalf("%s 选项不是合法 JSON", name)
		}
	}
}
