package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "certgen/internal/config"
	"certgen/pkg/contract"
)

// printBatches 输出批次结果：text 为人读摘要；json 为批次数组。
func printBatches(w io.Writer, batches []contract.Batch, format string) error {
	if format == "json" {
		if batches == nil {
			batches = []contract.Batch{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batches)
	}
	for _, b := range batches {
		fmt.Fprintf(w, "批次:   %s\n", b.ID)
		if b.Source != "" {
			fmt.Fprintf(w, "来源:   %s\n", b.Source)
		}
		fmt.Fprintf(w, "目录:   %s\n", b.OutputDir)
		fmt.Fprintf(w, "证书:   %d\n", len(b.Certificates))
		for _, c := range b.Certificates {
			fmt.Fprintf(w, "  - %s\n", c.File)
		}
		if b.MergedPath != "" {
			fmt.Fprintf(w, "合并:   %s (%d 页)\n", b.MergedPath, b.Pages)
		} else {
			fmt.Fprintln(w, "合并:   无")
		}
		if len(b.Warnings) > 0 {
			fmt.Fprintf(w, "警告:   %d\n", len(b.Warnings))
			for _, wn := range b.Warnings {
				fmt.Fprintf(w, "  ! [%s] #%d %s %s\n", wn.Kind, wn.Record, wn.File, wn.Detail)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	p := cfgpkg.EnvPrefix
	var b strings.Builder
	b.WriteString("# certgen .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(p + "CONFIG_FILE=\n")
	b.WriteString(p + "CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "TEMPLATE", "CONCURRENCY", "COLLISION"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 目录\n")
	for _, k := range []string{"PATHS_TEMPLATES", "PATHS_UPLOADS", "PATHS_OUTPUT"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 日志\n")
	b.WriteString(p + "LOGGING_LEVEL=\n")
	b.WriteString(p + "LOGGING_DIR=\n")

	names := []string{"READER", "PARSER", "RENDERER", "COMPOSITOR", "WRITER", "LEDGER"}
	b.WriteString("\n# 组件选择（ledger: manifest|redis|pgsql|mysql|none）\n")
	for _, n := range names {
		b.WriteString(p + "COMPONENTS_" + n + "=\n")
	}
	b.WriteString("\n# 组件 Options（原样 JSON，整体替换配置文件中的对应键）\n")
	for _, n := range names {
		b.WriteString(p + "OPTIONS_" + n + "_JSON=\n")
	}
	b.WriteString("\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查 paths.output 可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：检查父目录可写（创建并删除临时目录）。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	dir := strings.TrimSpace(cfg.Paths.Output)
	if dir == "" {
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		n := f.Name()
		_ = f.Close()
		_ = os.Remove(n)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
