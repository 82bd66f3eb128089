package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "certgen/internal/config"
	"certgen/internal/diag"
	"certgen/internal/pipeline"
)

var (
	pipelineRun       = pipeline.Run
	pipelineRecompose = pipeline.Recompose
	pipelineInspect   = pipeline.Inspect
)

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码；消息已由命令自行输出。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app 为一次 CLI 调用的共享状态。
type app struct {
	start  time.Time
	corrID string
	logger *diag.Logger

	configPath string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	a := &app{start: time.Now(), corrID: genCorrID()}
	// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）。
	_ = godotenv.Load(".env")
	// 先占位默认 level，配置合并后按最终 level 重建
	a.logger = diag.NewLogger(a.corrID, "info", "")
	defer func() { _ = a.logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		// 旗标/参数错误由 cobra 返回，按配置错误处理
		fprintf(os.Stderr, "参数错误: %v\n", err)
		return exitConfig
	}
	return exitOK
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "certgen",
		Short:         "按名单批量生成证书并合并为 PDF",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json（若存在）")
	cmd.AddCommand(runCmd(a), mergeCmd(a), showCmd(a), initConfigCmd(a))
	return cmd
}

// fail 记录首错并返回带退出码的错误。
func (a *app) fail(code int, msg string, err error) error {
	fprintf(os.Stderr, "%s: %v\n", msg, err)
	a.logger.Error("pipeline", string(diag.Classify(err)), "first error", &a.start)
	return &exitError{code: code, err: err}
}

// loadConfig 合并 Defaults → 配置文件/CERTGEN_CONFIG_JSON → ENV。
func (a *app) loadConfig() (cfgpkg.Config, error) {
	path := a.configPath
	var raw []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		raw = []byte(s)
	}
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if path != "" || len(raw) > 0 {
		var (
			base cfgpkg.Config
			err  error
		)
		if len(raw) > 0 {
			base, err = cfgpkg.LoadJSON("", raw)
		} else {
			base, err = cfgpkg.LoadFile(path)
		}
		if err != nil {
			return cfg, a.fail(exitConfig, "配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, a.fail(exitConfig, "环境变量解析失败", err)
	}
	return cfgpkg.Merge(cfg, over), nil
}

// useLevel 按最终配置重建 logger。
func (a *app) useLevel(cfg cfgpkg.Config) {
	level := strings.TrimSpace(cfg.Logging.Level)
	if level == "" {
		level = "info"
	}
	_ = a.logger.Close()
	a.logger = diag.NewLogger(a.corrID, level, cfg.Logging.Dir)
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
