package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "certgen/internal/config"
	"certgen/internal/diag"
	"certgen/pkg/contract"
)

// runCmd: certgen run --template T [tables...]，每个表格一个批次。
func runCmd(a *app) *cobra.Command {
	var (
		flagTemplate    string
		flagConcurrency int
		flagOutput      string
		flagCollision   string
		flagFormat      string
		flagStatus      bool
	)
	c := &cobra.Command{
		Use:   "run [tables...]",
		Short: "渲染名单中的每条记录并合并为一个 PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flagFormat); err != nil {
				return a.fail(exitConfig, "参数错误", err)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			// CLI 覆盖
			var over cfgpkg.Config
			over.Template = strings.TrimSpace(flagTemplate)
			if flagConcurrency > 0 {
				over.Concurrency = flagConcurrency
			}
			over.Paths.Output = strings.TrimSpace(flagOutput)
			over.Collision = strings.TrimSpace(flagCollision)
			if len(args) > 0 {
				over.Inputs = args
			}
			cfg = cfgpkg.Merge(cfg, over)

			if err := cfgpkg.Validate(cfg); err != nil {
				_ = dumpConfig(cfg)
				return a.fail(exitConfig, "配置校验失败", err)
			}
			a.useLevel(cfg)

			if err := preflightCheckOutputDir(cfg); err != nil {
				return a.fail(exitConfig, "输出目录不可写或无法创建", err)
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return a.fail(exitConfig, "装配失败", err)
			}

			// 终端信息提示（非日志）
			term := diag.NewTerminal(os.Stderr, flagStatus)
			diag.SetTerminal(term)
			defer diag.SetTerminal(nil)
			term.RunStart(set.Concurrency, set.Template)

			a.logger.Debug("config", "effective", diag.Fields{KV: map[string]string{
				"inputs_count": fmt.Sprintf("%d", len(set.Inputs)),
				"template":     set.Template,
				"concurrency":  fmt.Sprintf("%d", set.Concurrency),
				"collision":    string(set.Collision),
				"output":       cfg.Paths.Output,
				"reader":       cfg.Components.Reader,
				"parser":       cfg.Components.Parser,
				"renderer":     cfg.Components.Renderer,
				"compositor":   cfg.Components.Compositor,
				"writer":       cfg.Components.Writer,
				"ledger":       cfg.Components.Ledger,
			}})

			t := a.logger.Start("pipeline", "run")
			batches, err := pipelineRun(cmd.Context(), comp, set, a.logger)
			if err != nil {
				code := string(diag.Classify(err))
				a.logger.Error("pipeline", code, "first error", &a.start)
				diag.IncOp("pipeline", "error", "error")
				if code != string(diag.CodeUnknown) {
					diag.IncError("pipeline", code)
				}
				if !errors.Is(err, context.Canceled) {
					fprintf(os.Stderr, "运行失败: %v\n", err)
				}
				term.RunFinish(false, time.Since(a.start))
				// 已完成的批次仍然输出
				_ = printBatches(os.Stdout, batches, flagFormat)
				return &exitError{code: exitRuntime, err: err}
			}
			t.Finish("run", int64(len(batches)))
			diag.IncOp("pipeline", "finish", "success")
			diag.ObserveDuration("pipeline", "finish", time.Since(a.start).Milliseconds())
			term.RunFinish(true, time.Since(a.start))
			if err := printBatches(os.Stdout, batches, flagFormat); err != nil {
				return a.fail(exitRuntime, "输出结果失败", err)
			}
			return nil
		},
	}
	c.Flags().StringVarP(&flagTemplate, "template", "t", "", "模板图像路径（覆盖配置）")
	c.Flags().IntVar(&flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	c.Flags().StringVarP(&flagOutput, "output", "o", "", "输出根目录（覆盖 paths.output）")
	c.Flags().StringVar(&flagCollision, "collision", "", "文件名冲突策略：overwrite|suffix（覆盖配置）")
	c.Flags().StringVar(&flagFormat, "format", "text", "结果输出格式：text|json")
	c.Flags().BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	return c
}

// mergeCmd: 对已有批次目录重新合并（幂等）。
func mergeCmd(a *app) *cobra.Command {
	var flagOutput string
	c := &cobra.Command{
		Use:   "merge <batch-dir>",
		Short: "重新合并已有批次目录中的证书",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if s := strings.TrimSpace(flagOutput); s != "" {
				cfg.Paths.Output = s
			}
			a.useLevel(cfg)
			comp, err := cfgpkg.BuildComponents(cfg)
			if err != nil {
				return a.fail(exitConfig, "装配失败", err)
			}
			dir := cfgpkg.Resolve(args[0], cfg.Paths.Output)
			res, err := pipelineRecompose(cmd.Context(), comp, dir, a.logger)
			if err != nil {
				return a.fail(exitRuntime, "合并失败", err)
			}
			if res == nil || res.Path == "" {
				fprintf(os.Stdout, "%s: 没有可合并的证书\n", dir)
				return nil
			}
			fprintf(os.Stdout, "%s (%d 页)\n", res.Path, res.Pages)
			return nil
		},
	}
	c.Flags().StringVarP(&flagOutput, "output", "o", "", "输出根目录（覆盖 paths.output）")
	return c
}

// showCmd: 按批次 ID 列出证书与合并文档。
func showCmd(a *app) *cobra.Command {
	var (
		flagOutput string
		flagFormat string
	)
	c := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "列出批次的证书与合并文档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flagFormat); err != nil {
				return a.fail(exitConfig, "参数错误", err)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if s := strings.TrimSpace(flagOutput); s != "" {
				cfg.Paths.Output = s
			}
			a.useLevel(cfg)
			comp, err := cfgpkg.BuildComponents(cfg)
			if err != nil {
				return a.fail(exitConfig, "装配失败", err)
			}
			b, err := pipelineInspect(cmd.Context(), comp, contract.BatchID(strings.TrimSpace(args[0])))
			if err != nil {
				return a.fail(exitRuntime, "查询失败", err)
			}
			if err := printBatches(os.Stdout, []contract.Batch{b}, flagFormat); err != nil {
				return a.fail(exitRuntime, "输出结果失败", err)
			}
			return nil
		},
	}
	c.Flags().StringVarP(&flagOutput, "output", "o", "", "输出根目录（覆盖 paths.output）")
	c.Flags().StringVar(&flagFormat, "format", "text", "结果输出格式：text|json")
	return c
}

// initConfigCmd: 在目录下生成 config.json 与 .env 模板（均不覆盖）。
func initConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成默认配置 config.json 和 .env 模板（已存在则失败，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return a.fail(exitConfig, "生成默认配置失败", err)
			}
			if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
				return a.fail(exitConfig, "生成默认配置失败", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

func checkFormat(f string) error {
	switch f {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected text|json)", f)
	}
}
