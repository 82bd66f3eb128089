package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"certgen/internal/layout"
	"certgen/pkg/contract"
)

// Options: 栅格渲染器选项。零值字段使用默认值。
type Options struct {
	// FontPath: TTF/OTF 字体文件；空表示内置 Go Bold。无法读取时降级为内置点阵字体。
	FontPath string `json:"font_path"`
	// NameScale/DepartmentScale: 起始字号（像素）。
	NameScale       int `json:"name_scale"`
	DepartmentScale int `json:"department_scale"`
	// MinScale/Step: 最小字号与缩小步长。
	MinScale int `json:"min_scale"`
	Step     int `json:"step"`
	// Margin: 左右留白比例。
	Margin *float64 `json:"margin,omitempty"`
	// Anchor/Gap: 主文字块纵向位置与主次间距（占画布高度比例）。
	Anchor *float64 `json:"anchor,omitempty"`
	Gap    *float64 `json:"gap,omitempty"`
	// DepartmentPrefix: 部门行前缀；nil 使用 "Department: "。
	DepartmentPrefix *string `json:"department_prefix,omitempty"`
	// Ink: 文字颜色，#RRGGBB 或 #RRGGBBAA。
	Ink string `json:"ink"`
	// Format: jpg|png。
	Format string `json:"format"`
	// Quality: JPEG 质量 1..100。
	Quality int `json:"quality"`
}

// Raster 基于模板图片渲染证书。只读共享，并发安全。
type Raster struct {
	font    *layout.Font
	name    layout.Params
	dept    layout.Params
	anchor  float64
	gap     float64
	prefix  string
	ink     image.Image
	format  imaging.Format
	ext     string
	quality int
}

var _ contract.Renderer = (*Raster)(nil)

// New 创建渲染器。字体在此解析一次。
func New(opts *Options) (*Raster, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	margin := layout.DefaultMargin
	if o.Margin != nil {
		margin = *o.Margin
	}
	minScale := orInt(o.MinScale, layout.DefaultMinScale)
	step := orInt(o.Step, layout.DefaultStep)
	r := &Raster{
		font:    layout.Load(o.FontPath),
		name:    layout.Params{StartScale: orInt(o.NameScale, layout.DefaultNameScale), MinScale: minScale, Step: step, Margin: margin},
		dept:    layout.Params{StartScale: orInt(o.DepartmentScale, layout.DefaultDepartmentScale), MinScale: minScale, Step: step, Margin: margin},
		anchor:  layout.DefaultAnchor,
		gap:     layout.DefaultGap,
		prefix:  "Department: ",
		quality: orInt(o.Quality, 95),
	}
	if err := r.name.Validate(); err != nil {
		return nil, fmt.Errorf("raster: name: %w", err)
	}
	if err := r.dept.Validate(); err != nil {
		return nil, fmt.Errorf("raster: department: %w", err)
	}
	if o.Anchor != nil {
		r.anchor = *o.Anchor
	}
	if o.Gap != nil {
		r.gap = *o.Gap
	}
	if r.anchor < 0 || r.anchor >= 1 || r.gap < 0 || r.gap >= 1 {
		return nil, errors.New("raster: anchor/gap must be in [0, 1)")
	}
	if o.DepartmentPrefix != nil {
		r.prefix = *o.DepartmentPrefix
	}
	if r.quality < 1 || r.quality > 100 {
		return nil, errors.New("raster: quality must be in [1, 100]")
	}
	ink, err := parseHexColor(o.Ink)
	if err != nil {
		return nil, fmt.Errorf("raster: ink: %w", err)
	}
	r.ink = image.NewUniform(ink)
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "", "jpg", "jpeg":
		r.format, r.ext = imaging.JPEG, ".jpg"
	case "png":
		r.format, r.ext = imaging.PNG, ".png"
	default:
		return nil, fmt.Errorf("raster: unsupported format %q", o.Format)
	}
	return r, nil
}

// Font 返回解析后的字体（用于诊断）。
func (r *Raster) Font() *layout.Font { return r.font }

// Ext 返回产物扩展名。
func (r *Raster) Ext() string { return r.ext }

// Open 打开并解码模板（遵循 EXIF 方向）。
func (r *Raster) Open(ctx context.Context, path string) (contract.Template, error) {
	if err := ctx.Err(); err != nil {
		return contract.Template{}, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return contract.Template{}, fmt.Errorf("%w: open template %s: %w", contract.ErrRender, path, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return contract.Template{}, fmt.Errorf("%w: template %s has empty canvas", contract.ErrRender, path)
	}
	return contract.Template{Path: path, Image: img}, nil
}

// Render 复制模板画布，绘制姓名与部门两行文字并编码写出。
func (r *Raster) Render(ctx context.Context, tpl contract.Template, rec contract.Record, w io.Writer) (contract.RenderReport, error) {
	var rep contract.RenderReport
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if tpl.Image == nil {
		return rep, fmt.Errorf("%w: template not opened", contract.ErrRender)
	}
	cw, ch := tpl.Size()

	// 不透明白底 + 模板覆盖：产物与模板互不影响
	canvas := imaging.Overlay(imaging.New(cw, ch, color.White), tpl.Image, image.Pt(0, 0), 1.0)

	name, err := layout.Fit(r.font, rec.Name, cw, ch, r.name)
	if err != nil {
		return rep, fmt.Errorf("%w: layout name: %w", contract.ErrRender, err)
	}
	name = name.At(layout.AnchorY(ch, r.anchor))
	dept, err := layout.Fit(r.font, r.prefix+rec.Department, cw, ch, r.dept)
	if err != nil {
		return rep, fmt.Errorf("%w: layout department: %w", contract.ErrRender, err)
	}
	dept = dept.At(layout.Below(name, ch, r.gap))

	layout.Draw(canvas, r.ink, name)
	layout.Draw(canvas, r.ink, dept)

	if err := imaging.Encode(w, canvas, r.format, imaging.JPEGQuality(r.quality)); err != nil {
		return rep, fmt.Errorf("%w: encode: %w", contract.ErrRender, err)
	}

	rep.Name = name.LayoutResult
	rep.Department = dept.LayoutResult
	if r.font.Kind == layout.Fallback {
		rep.Warnings = append(rep.Warnings, contract.Warning{Kind: contract.WarnFontFallback, Record: rec.Index, Detail: r.font.Reason})
	}
	for _, b := range []contract.LayoutResult{rep.Name, rep.Department} {
		if b.Floor {
			rep.Warnings = append(rep.Warnings, contract.Warning{
				Kind:   contract.WarnFloorOverflow,
				Record: rec.Index,
				Detail: fmt.Sprintf("%q overflows at scale %d (width %d)", b.Text, b.FontScale, b.Width),
			})
		}
	}
	return rep, nil
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// parseHexColor 解析 #RRGGBB / #RRGGBBAA；空串为黑色。
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return color.NRGBA{A: 0xff}, nil
	}
	if len(s) != 6 && len(s) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
