package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"certgen/internal/diag"
	"certgen/pkg/contract"
)

// - 单点并发：仅此层管理并发；原子组件均为同步、无内部并发。
// - 先规划后渲染：文件名在渲染前确定，worker 之间不共享写目标。
// - 首错取消：任一记录失败即取消整个批次；等待全部 worker 退出后返回该错误。
// - 合并门闩：证书集合在所有 worker 结束后才交给合并器。

// Components 聚合运行所需的原子组件。Ledger 可为 nil（不记账）。
type Components struct {
	Reader     contract.Reader
	Parser     contract.Parser
	Renderer   contract.Renderer
	Compositor contract.Compositor
	Writer     contract.Writer
	Ledger     contract.Ledger
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Inputs: 表格输入根（文件/目录 或 "-"）。每个表格产出一个批次。
	Inputs []string
	// Template: 已解析的模板路径。
	Template    string
	Concurrency int
	Collision   Collision
	// NewID: 批次 ID 生成器；nil 使用随机 UUID。
	NewID func() contract.BatchID
}

// BatchResult: 渲染阶段按记录折叠后的结果。
type BatchResult struct {
	Certificates []contract.Certificate
	Warnings     []contract.Warning
}

// NewBatchID 返回 32 位小写十六进制的随机批次 ID。
func NewBatchID() contract.BatchID {
	return contract.BatchID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Run 执行完整流水线：Reader → Parser → (Renderer → Writer)×N → Compositor → Ledger。
// 模板只打开一次，在所有批次间只读共享；每个输入表格产出一个批次。
// 返回已完成的批次；出错时同时返回出错前完成的批次。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]contract.Batch, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}

	ttimer := start(logger, "renderer", "open_template", set.Template, "")
	tpl, err := comp.Renderer.Open(ctx, set.Template)
	if err != nil {
		logErr(logger, "renderer", "open template failed", set.Template, "", err)
		return nil, fmt.Errorf("renderer open: %w", err)
	}
	ttimer.Finish("open_template", 1)

	var batches []contract.Batch
	err = comp.Reader.Iterate(ctx, set.Inputs, func(fileID contract.FileID, rc io.ReadCloser) error {
		table, err := parseOne(ctx, comp.Parser, fileID, rc, logger)
		if err != nil {
			return err
		}
		b, err := RunBatch(ctx, comp, set, tpl, table, logger)
		if err != nil {
			return err
		}
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		return batches, err
	}
	return batches, nil
}

func parseOne(ctx context.Context, p contract.Parser, fileID contract.FileID, rc io.ReadCloser, logger *diag.Logger) (contract.Table, error) {
	defer rc.Close()
	ptimer := start(logger, "parser", "parse", string(fileID), "")
	table, err := p.Parse(ctx, fileID, rc)
	if err != nil {
		logErr(logger, "parser", "parse failed", string(fileID), "", err)
		return contract.Table{}, fmt.Errorf("parser parse: %w", err)
	}
	if table.FileID == "" {
		table.FileID = fileID
	}
	ptimer.Finish("parse", int64(len(table.Records)))
	diag.IncOp("parser", "finish", "success")
	return table, nil
}

// RunBatch 为单个表格执行一次批次：独占目录 → 规划文件名 → 并发渲染 → 合并 → 记账。
// 零张证书时不合并，MergedPath 为空。
func RunBatch(ctx context.Context, comp Components, set Settings, tpl contract.Template, table contract.Table, logger *diag.Logger) (contract.Batch, error) {
	if err := sanity(comp, set); err != nil {
		return contract.Batch{}, fmt.Errorf("sanity: %w", err)
	}
	newID := set.NewID
	if newID == nil {
		newID = NewBatchID
	}
	id := newID()
	fid := string(table.FileID)
	bid := string(id)
	b := contract.Batch{ID: id, Source: table.FileID, Columns: table.Columns}

	dir, err := comp.Writer.Reserve(ctx, contract.ArtifactIn(id, ""))
	if err != nil {
		err = asStorage(err)
		logErr(logger, "writer", "reserve failed", fid, bid, err)
		return b, fmt.Errorf("writer reserve: %w", err)
	}
	b.OutputDir = dir

	jobs, planWarns := Plan(table.Records, comp.Renderer.Ext(), set.Collision)
	logger.Debug("pipeline", "plan", diag.Fields{FileID: fid, Batch: bid, KV: map[string]string{
		"records":  fmt.Sprintf("%d", len(table.Records)),
		"jobs":     fmt.Sprintf("%d", len(jobs)),
		"warnings": fmt.Sprintf("%d", len(planWarns)),
	}})

	if t := diag.GetTerminal(); t != nil {
		t.FileStart(fid, len(jobs))
	}
	batchStart := time.Now()
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.FileFinish(ok, time.Since(batchStart))
		}
	}()

	rtimer := start(logger, "renderer", "render", fid, bid)
	outcomes, err := renderAll(ctx, comp, set, tpl, id, fid, jobs, logger)
	if err != nil {
		return b, err
	}
	res := fold(outcomes)
	rtimer.Finish("render", int64(len(res.Certificates)))
	diag.IncOp("renderer", "finish", "success")

	b.Certificates = res.Certificates
	b.Warnings = append(planWarns, res.Warnings...)
	for _, w := range b.Warnings {
		logger.Warn("pipeline", string(w.Kind), w.Detail, diag.Fields{FileID: fid, Batch: bid, KV: map[string]string{
			"record": fmt.Sprintf("%d", w.Record),
			"file":   w.File,
		}})
	}

	if len(b.Certificates) > 0 {
		ctimer := start(logger, "compositor", "merge", fid, bid)
		c, err := comp.Compositor.Merge(ctx, dir)
		if err != nil {
			logErr(logger, "compositor", "merge failed", fid, bid, err)
			return b, fmt.Errorf("compositor merge: %w", err)
		}
		if c != nil {
			b.MergedPath = c.Path
			b.Pages = c.Pages
		}
		ctimer.Finish("merge", int64(b.Pages))
		diag.IncOp("compositor", "finish", "success")
	}

	if comp.Ledger != nil {
		ltimer := start(logger, "ledger", "record", fid, bid)
		if err := comp.Ledger.Record(ctx, b); err != nil {
			err = asStorage(err)
			logErr(logger, "ledger", "record failed", fid, bid, err)
			return b, fmt.Errorf("ledger record: %w", err)
		}
		ltimer.Finish("record", int64(len(b.Certificates)))
		diag.IncOp("ledger", "finish", "success")
	}
	ok = true
	return b, nil
}

// outcome: 单条记录的渲染结果槽位（按 Job 下标写入，无共享写）。
type outcome struct {
	done   bool
	cert   contract.Certificate
	report contract.RenderReport
}

// renderAll 以有界 worker 池渲染全部 Job。记录之间检查取消；首个失败取消其余 worker。
func renderAll(ctx context.Context, comp Components, set Settings, tpl contract.Template, id contract.BatchID, fid string, jobs []Job, logger *diag.Logger) ([]outcome, error) {
	slots := make([]outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	var done, failed atomic.Int64
	total := len(jobs)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cert, rep, err := renderOne(gctx, comp, tpl, id, j)
			if err != nil {
				failed.Add(1)
				if !isCancel(err) {
					logErr(logger, "renderer", "render failed", fid, string(id), err)
				}
				return err
			}
			slots[i] = outcome{done: true, cert: cert, report: rep}
			n := done.Add(1)
			if t := diag.GetTerminal(); t != nil {
				t.FileProgress(int(n), total, int(failed.Load()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func renderOne(ctx context.Context, comp Components, tpl contract.Template, id contract.BatchID, j Job) (contract.Certificate, contract.RenderReport, error) {
	var buf bytes.Buffer
	rep, err := comp.Renderer.Render(ctx, tpl, j.Record, &buf)
	if err != nil {
		return contract.Certificate{}, rep, fmt.Errorf("render record %d (%s): %w", j.Record.Index, j.File, err)
	}
	art := contract.ArtifactIn(id, j.File)
	if err := comp.Writer.Write(ctx, art, &buf); err != nil {
		if isCancel(err) {
			return contract.Certificate{}, rep, err
		}
		return contract.Certificate{}, rep, fmt.Errorf("%w: write %s: %w", contract.ErrRender, j.File, err)
	}
	p, err := comp.Writer.Path(art)
	if err != nil {
		return contract.Certificate{}, rep, fmt.Errorf("%w: locate %s: %w", contract.ErrRender, j.File, err)
	}
	return contract.Certificate{Record: j.Record, File: j.File, ArtifactPath: p}, rep, nil
}

// fold 将槽位折叠为 BatchResult：证书按文件名升序，告警按记录顺序。
func fold(outcomes []outcome) BatchResult {
	var res BatchResult
	for _, o := range outcomes {
		if !o.done {
			continue
		}
		res.Certificates = append(res.Certificates, o.cert)
		for _, w := range o.report.Warnings {
			if w.File == "" {
				w.File = o.cert.File
			}
			res.Warnings = append(res.Warnings, w)
		}
	}
	sort.Slice(res.Certificates, func(i, j int) bool { return res.Certificates[i].File < res.Certificates[j].File })
	return res
}

// Recompose 对已有批次目录重新合并，并在账本中存在该批次时更新合并结果。
func Recompose(ctx context.Context, comp Components, dir string, logger *diag.Logger) (*contract.Composition, error) {
	if comp.Compositor == nil {
		return nil, fmt.Errorf("%w: compositor missing", contract.ErrInvalidInput)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrComposition, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", contract.ErrComposition, dir)
	}
	bid := filepath.Base(filepath.Clean(dir))
	ctimer := start(logger, "compositor", "merge", "", bid)
	c, err := comp.Compositor.Merge(ctx, dir)
	if err != nil {
		logErr(logger, "compositor", "merge failed", "", bid, err)
		return nil, fmt.Errorf("compositor merge: %w", err)
	}
	pages := 0
	if c != nil {
		pages = c.Pages
	}
	ctimer.Finish("merge", int64(pages))

	if comp.Ledger == nil {
		return c, nil
	}
	b, err := comp.Ledger.Lookup(ctx, contract.BatchID(bid))
	if errors.Is(err, contract.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("ledger lookup: %w", asStorage(err))
	}
	b.MergedPath, b.Pages = "", 0
	if c != nil {
		b.MergedPath, b.Pages = c.Path, c.Pages
	}
	if err := comp.Ledger.Record(ctx, b); err != nil {
		return c, fmt.Errorf("ledger record: %w", asStorage(err))
	}
	return c, nil
}

// Inspect 按 ID 取回批次：优先查账本；账本未命中时扫描输出目录。
func Inspect(ctx context.Context, comp Components, id contract.BatchID) (contract.Batch, error) {
	if comp.Ledger != nil {
		b, err := comp.Ledger.Lookup(ctx, id)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, contract.ErrNotFound) {
			return contract.Batch{}, fmt.Errorf("ledger lookup: %w", asStorage(err))
		}
	}
	if comp.Writer == nil {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	dir, err := comp.Writer.Path(contract.ArtifactIn(id, ""))
	if err != nil {
		return contract.Batch{}, err
	}
	files, err := contract.ListArtifacts(dir, contract.RasterExts)
	if errors.Is(err, os.ErrNotExist) {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	b := contract.Batch{ID: id, OutputDir: dir}
	for i, f := range files {
		b.Certificates = append(b.Certificates, contract.Certificate{
			Record:       contract.Record{Index: i},
			File:         filepath.Base(f),
			ArtifactPath: f,
		})
	}
	if docs, err := contract.ListArtifacts(dir, []string{".pdf"}); err == nil && len(docs) > 0 {
		b.MergedPath = docs[0]
		b.Pages = len(files)
	}
	return b, nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Parser == nil || c.Renderer == nil || c.Compositor == nil || c.Writer == nil {
		return errors.New("nil component")
	}
	if s.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if _, err := ParseCollision(string(s.Collision)); err != nil {
		return err
	}
	return nil
}

func start(logger *diag.Logger, comp, msg, fileID, batch string) *diag.Timer {
	return logger.Start(comp, msg, diag.Fields{FileID: fileID, Batch: batch})
}

func logErr(logger *diag.Logger, comp, msg, fileID, batch string, err error) {
	code := diag.Classify(err)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
	logger.Error(comp, string(code), msg, nil, diag.Fields{FileID: fileID, Batch: batch, KV: map[string]string{"err": err.Error()}})
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// asStorage 将非取消错误归入 ErrStorage。
func asStorage(err error) error {
	if err == nil || isCancel(err) || errors.Is(err, contract.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", contract.ErrStorage, err)
}
