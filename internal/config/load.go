package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "CERTGEN_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Template 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency: 4,
		Collision:   "overwrite",
		Paths: Paths{
			Templates: "templates",
			Uploads:   "uploads",
			Output:    "generated",
		},
		Logging: Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:     "fs",
			Parser:     "table",
			Renderer:   "raster",
			Compositor: "pdf",
			Writer:     "fs",
			Ledger:     "manifest",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	return decodeStrict(r)
}

// LoadYAML 解析 YAML 配置：先转为 JSON，再走同一严格解码。
func LoadYAML(path string, raw []byte) (Config, error) {
	if len(raw) == 0 {
		if path == "" {
			return Config{}, errors.New("no config source provided")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		raw = b
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return Config{}, nil
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("yaml to json: %w", err)
	}
	return decodeStrict(bytes.NewReader(js))
}

// LoadFile 按扩展名选择 JSON 或 YAML。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

func decodeStrict(r io.Reader) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Template); s != "" {
		out.Template = s
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if s := strings.TrimSpace(over.Collision); s != "" {
		out.Collision = s
	}

	// Paths（空不覆盖）
	if over.Paths.Templates != "" {
		out.Paths.Templates = over.Paths.Templates
	}
	if over.Paths.Uploads != "" {
		out.Paths.Uploads = over.Paths.Uploads
	}
	if over.Paths.Output != "" {
		out.Paths.Output = over.Paths.Output
	}

	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Parser != "" {
		out.Components.Parser = over.Components.Parser
	}
	if over.Components.Renderer != "" {
		out.Components.Renderer = over.Components.Renderer
	}
	if over.Components.Compositor != "" {
		out.Components.Compositor = over.Components.Compositor
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Ledger != "" {
		out.Components.Ledger = over.Components.Ledger
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Parser) > 0 {
		out.Options.Parser = cloneRaw(over.Options.Parser)
	}
	if len(over.Options.Renderer) > 0 {
		out.Options.Renderer = cloneRaw(over.Options.Renderer)
	}
	if len(over.Options.Compositor) > 0 {
		out.Options.Compositor = cloneRaw(over.Options.Compositor)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Ledger) > 0 {
		out.Options.Ledger = cloneRaw(over.Options.Ledger)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 CERTGEN_；集合之外的键忽略。
// 支持：INPUTS, TEMPLATE, CONCURRENCY, COLLISION, PATHS_*, LOGGING_*, COMPONENTS_*, OPTIONS_<NAME>_JSON。
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
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch nk {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "TEMPLATE":
			over.Template = tv
		case "CONCURRENCY":
			if tv == "" {
				continue
			}
			v, err := atoi(tv)
			if err != nil {
				return Config{}, fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
			}
			over.Concurrency = v
		case "COLLISION":
			over.Collision = tv
		case "PATHS_TEMPLATES":
			over.Paths.Templates = tv
		case "PATHS_UPLOADS":
			over.Paths.Uploads = tv
		case "PATHS_OUTPUT":
			over.Paths.Output = tv
		case "LOGGING_LEVEL":
			over.Logging.Level = tv
		case "LOGGING_DIR":
			over.Logging.Dir = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_PARSER":
			over.Components.Parser = tv
		case "COMPONENTS_RENDERER":
			over.Components.Renderer = tv
		case "COMPONENTS_COMPOSITOR":
			over.Components.Compositor = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "COMPONENTS_LEDGER":
			over.Components.Ledger = tv
		default:
			// OPTIONS_<NAME>_JSON：原样 JSON；空值视为未设置，避免清空文件配置。
			if !strings.HasPrefix(nk, "OPTIONS_") || !strings.HasSuffix(nk, "_JSON") || tv == "" {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(nk, "OPTIONS_"), "_JSON")
			if !json.Valid([]byte(tv)) {
				return Config{}, fmt.Errorf("%s%s: invalid JSON", EnvPrefix, nk)
			}
			raw := json.RawMessage(tv)
			switch name {
			case "READER":
				over.Options.Reader = raw
			case "PARSER":
				over.Options.Parser = raw
			case "RENDERER":
				over.Options.Renderer = raw
			case "COMPOSITOR":
				over.Options.Compositor = raw
			case "WRITER":
				over.Options.Writer = raw
			case "LEDGER":
				over.Options.Ledger = raw
			}
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

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
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

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
