package layout

import (
	"errors"
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"certgen/pkg/contract"
)

// 默认排版参数。
const (
	DefaultNameScale       = 60
	DefaultDepartmentScale = 40
	DefaultMinScale        = 10
	DefaultStep            = 2
	DefaultMargin          = 0.12
	// DefaultAnchor: 主文字块墨迹框顶部所在高度（占画布高度比例）。
	DefaultAnchor = 0.45
	// DefaultGap: 主次文字块之间的间距（占画布高度比例）。
	DefaultGap = 0.02
)

// Params: 单个文字块的缩放参数。
type Params struct {
	StartScale int
	MinScale   int
	Step       int
	// Margin: 左右各留白比例，可用宽度 = W*(1-2*Margin)。
	Margin float64
}

// Validate 检查参数边界。
func (p Params) Validate() error {
	if p.MinScale < 1 {
		return errors.New("layout: min scale must be >= 1")
	}
	if p.StartScale < p.MinScale {
		return errors.New("layout: start scale below min scale")
	}
	if p.Step < 1 {
		return errors.New("layout: step must be >= 1")
	}
	if p.Margin < 0 || p.Margin >= 0.5 {
		return errors.New("layout: margin must be in [0, 0.5)")
	}
	return nil
}

// Block: 已排版的文字块，可直接绘制。
type Block struct {
	contract.LayoutResult
	face   font.Face
	bounds fixed.Rectangle26_6
}

// MaxWidth 返回给定画布宽度下的可用文字宽度。
func MaxWidth(canvasW int, margin float64) int {
	return int(float64(canvasW) * (1 - 2*margin))
}

// Fit 在 [MinScale, StartScale] 内寻找不超出边距的最大字号，并水平居中。
// 到达 MinScale 仍溢出时接受结果并置 Floor。Fallback 字体不缩放。
// 返回的 Block.Y 为 0，由调用方通过 At 放置。
func Fit(f *Font, text string, canvasW, canvasH int, p Params) (Block, error) {
	if err := p.Validate(); err != nil {
		return Block{}, err
	}
	if canvasW <= 0 || canvasH <= 0 {
		return Block{}, errors.New("layout: empty canvas")
	}
	maxW := MaxWidth(canvasW, p.Margin)

	if f == nil || f.Kind == Fallback {
		face, _ := f.Face(0)
		b, w, h := measure(face, text)
		return Block{
			LayoutResult: contract.LayoutResult{
				Text: text, FontScale: fallbackScale,
				X: (canvasW - w) / 2, Width: w, Height: h,
				Floor: w > maxW, Fallback: true,
			},
			face: face, bounds: b,
		}, nil
	}

	scale := p.StartScale
	for {
		face, err := f.Face(scale)
		if err != nil {
			return Block{}, err
		}
		b, w, h := measure(face, text)
		if w <= maxW || scale <= p.MinScale {
			return Block{
				LayoutResult: contract.LayoutResult{
					Text: text, FontScale: scale,
					X: (canvasW - w) / 2, Width: w, Height: h,
					Floor: w > maxW,
				},
				face: face, bounds: b,
			}, nil
		}
		scale -= p.Step
		if scale < p.MinScale {
			scale = p.MinScale
		}
	}
}

// At 返回放置在 y 处的副本。
func (b Block) At(y int) Block {
	b.Y = y
	return b
}

// Below 返回紧随 prev 下方（间距 gap*canvasH）的 y。
func Below(prev Block, canvasH int, gap float64) int {
	return prev.Y + prev.Height + int(float64(canvasH)*gap)
}

// AnchorY 返回主文字块的 y。
func AnchorY(canvasH int, anchor float64) int {
	return int(float64(canvasH) * anchor)
}

// Draw 以 ink 绘制文字块，墨迹框左上角对齐 (X, Y)。
func Draw(dst draw.Image, ink image.Image, b Block) {
	if b.face == nil || b.Text == "" {
		return
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  ink,
		Face: b.face,
		Dot:  fixed.P(b.X, b.Y).Sub(b.bounds.Min),
	}
	d.DrawString(b.Text)
}

// measure 返回墨迹框及其像素宽高。
func measure(face font.Face, text string) (fixed.Rectangle26_6, int, int) {
	if text == "" {
		return fixed.Rectangle26_6{}, 0, 0
	}
	b, _ := font.BoundString(face, text)
	return b, (b.Max.X - b.Min.X).Ceil(), (b.Max.Y - b.Min.Y).Ceil()
}
