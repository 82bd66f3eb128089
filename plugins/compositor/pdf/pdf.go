package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"certgen/pkg/contract"
)

// DefaultOutput: 合并文档的固定文件名。
const DefaultOutput = "All_Certificates.pdf"

// Options: PDF 合并器选项。
type Options struct {
	// Output: 批次目录内的输出文件名（不得含路径）。
	Output string `json:"output"`
	// PageWidth: 页面宽度（毫米），默认 210（A4 宽）。
	PageWidth float64 `json:"page_width"`
	// Title/Author: 文档元信息（可选）。
	Title  string `json:"title"`
	Author string `json:"author"`
}

// PDF 以 fpdf 将栅格产物逐页合并。
type PDF struct {
	output string
	width  float64
	title  string
	author string
}

var _ contract.Compositor = (*PDF)(nil)

// epoch: 固定的创建时间，保证重复合并结果一致。
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// New 创建合并器。
func New(opts *Options) (*PDF, error) {
	p := &PDF{output: DefaultOutput, width: 210}
	if opts == nil {
		return p, nil
	}
	if s := strings.TrimSpace(opts.Output); s != "" {
		if filepath.Base(s) != s || s == "." || s == ".." {
			return nil, fmt.Errorf("pdf: output must be a bare file name: %q", s)
		}
		p.output = s
	}
	if opts.PageWidth < 0 {
		return nil, errors.New("pdf: page_width must be > 0")
	}
	if opts.PageWidth > 0 {
		p.width = opts.PageWidth
	}
	p.title = opts.Title
	p.author = opts.Author
	return p, nil
}

// Output 返回输出文件名。
func (p *PDF) Output() string { return p.output }

// Merge 将 dir 下的栅格产物按文件名升序合并，一页一图，页高按宽高比推导。
// 没有产物时返回 (nil, nil)，不生成文件。
func (p *PDF) Merge(ctx context.Context, dir string) (*contract.Composition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := contract.ListArtifacts(dir, contract.RasterExts)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", contract.ErrComposition, dir, err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCatalogSort(true)
	doc.SetCreationDate(epoch)
	doc.SetModificationDate(epoch)
	if p.title != "" {
		doc.SetTitle(p.title, true)
	}
	if p.author != "" {
		doc.SetAuthor(p.author, true)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opt := fpdf.ImageOptions{ImageType: imageType(f)}
		info := doc.RegisterImageOptions(f, opt)
		if doc.Err() || info == nil {
			return nil, fmt.Errorf("%w: decode %s: %w", contract.ErrComposition, filepath.Base(f), doc.Error())
		}
		h := p.width * info.Height() / info.Width()
		doc.AddPageFormat("P", fpdf.SizeType{Wd: p.width, Ht: h})
		doc.ImageOptions(f, 0, 0, p.width, h, false, opt, 0, "")
		if doc.Err() {
			return nil, fmt.Errorf("%w: place %s: %w", contract.ErrComposition, filepath.Base(f), doc.Error())
		}
	}

	dest := filepath.Join(dir, p.output)
	if err := writeAtomic(dest, doc); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", contract.ErrComposition, p.output, err)
	}
	return &contract.Composition{Path: dest, Pages: len(files)}, nil
}

// writeAtomic: 同目录临时文件 + rename。
func writeAtomic(dest string, doc *fpdf.Fpdf) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.pdf")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := doc.Output(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// imageType: fpdf 按扩展名识别 JPG/PNG，这里统一为大写无点形式。
func imageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "JPG"
	default:
		return "PNG"
	}
}
