package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"certgen/internal/pipeline"
	"certgen/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if strings.TrimSpace(cfg.Template) == "" {
		return errors.New("config: template not set")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if _, err := pipeline.ParseCollision(cfg.Collision); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return validateComponents(cfg)
}

// validateComponents 校验输出根与组件名（不要求 inputs/template）。
func validateComponents(cfg Config) error {
	if strings.TrimSpace(cfg.Paths.Output) == "" {
		return errors.New("config: paths.output not set")
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Parser, d.Parser); registry.Parser[name] == nil {
		return fmt.Errorf("config: parser %q not registered", name)
	}
	if name := effName(cfg.Components.Renderer, d.Renderer); registry.Renderer[name] == nil {
		return fmt.Errorf("config: renderer %q not registered", name)
	}
	if name := effName(cfg.Components.Compositor, d.Compositor); registry.Compositor[name] == nil {
		return fmt.Errorf("config: compositor %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Ledger, d.Ledger); registry.Ledger[name] == nil {
		return fmt.Errorf("config: ledger %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp, err := BuildComponents(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	col, _ := pipeline.ParseCollision(cfg.Collision)
	set := pipeline.Settings{
		Inputs:      ResolveInputs(cfg.Inputs, cfg.Paths.Uploads),
		Template:    Resolve(cfg.Template, cfg.Paths.Templates),
		Concurrency: cfg.Concurrency,
		Collision:   col,
	}
	return comp, set, nil
}

// BuildComponents 仅构造组件（merge/show 等子命令无需 inputs/template）。
// Ledger 可能为 nil（ledger=none）。
func BuildComponents(cfg Config) (pipeline.Components, error) {
	if err := validateComponents(cfg); err != nil {
		return pipeline.Components{}, err
	}
	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: reader: %w", err)
	}
	p, err := registry.Parser[effName(cfg.Components.Parser, d.Parser)](cfg.Options.Parser)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: parser: %w", err)
	}
	rn, err := registry.Renderer[effName(cfg.Components.Renderer, d.Renderer)](cfg.Options.Renderer)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: renderer: %w", err)
	}
	c, err := registry.Compositor[effName(cfg.Components.Compositor, d.Compositor)](cfg.Options.Compositor)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: compositor: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer, cfg.Paths.Output)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: writer: %w", err)
	}
	l, err := registry.Ledger[effName(cfg.Components.Ledger, d.Ledger)](cfg.Options.Ledger, w)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("config: ledger: %w", err)
	}
	return pipeline.Components{
		Reader:     r,
		Parser:     p,
		Renderer:   rn,
		Compositor: c,
		Writer:     w,
		Ledger:     l,
	}, nil
}

// Resolve 解析相对路径：工作目录下不存在且 root 下存在时使用 root/p。
// 绝对路径、"-" 与两处都不存在的路径原样返回。
func Resolve(p, root string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "-" || filepath.IsAbs(p) || strings.TrimSpace(root) == "" {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	cand := filepath.Join(root, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

// ResolveInputs 对每个输入根执行 Resolve。
func ResolveInputs(in []string, root string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, Resolve(p, root))
	}
	return out
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
