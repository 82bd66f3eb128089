package layout

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// Kind: 字体解析结果的两种形态。
type Kind int

const (
	// Resolved: 可缩放的矢量字体。
	Resolved Kind = iota
	// Fallback: 固定尺寸的内置点阵字体，不参与缩放。
	Fallback
)

func (k Kind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "resolved"
}

// fallbackScale: 内置 7x13 点阵字体的名义字号。
const fallbackScale = 13

// Font 为只读字体句柄，可被多个 goroutine 共享。
// Resolved 时每次 Face 调用创建独立的 font.Face（opentype.Face 非并发安全）。
type Font struct {
	Kind Kind
	// Source: 字体来源（文件路径或 "gobold"）。
	Source string
	// Reason: 降级原因；Resolved 时为空。
	Reason string

	otf *opentype.Font
}

// Bundled 返回内置 Go Bold 字体。
func Bundled() *Font {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		// 内置字体损坏属于构建问题，这里仍按降级处理
		return &Font{Kind: Fallback, Source: "gobold", Reason: err.Error()}
	}
	return &Font{Kind: Resolved, Source: "gobold", otf: f}
}

// Load 解析字体：path 为空使用内置字体；文件无法读取或解析时降级为 Fallback。
// 从不返回错误，降级原因记录在 Reason。
func Load(path string) *Font {
	path = strings.TrimSpace(path)
	if path == "" {
		return Bundled()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return &Font{Kind: Fallback, Source: path, Reason: fmt.Sprintf("read font: %v", err)}
	}
	f, err := opentype.Parse(b)
	if err != nil {
		return &Font{Kind: Fallback, Source: path, Reason: fmt.Sprintf("parse font: %v", err)}
	}
	return &Font{Kind: Resolved, Source: path, otf: f}
}

// Face 返回指定字号（像素，DPI 72）的字体面；Fallback 忽略 scale。
func (f *Font) Face(scale int) (font.Face, error) {
	if f == nil || f.Kind == Fallback || f.otf == nil {
		return basicfont.Face7x13, nil
	}
	return opentype.NewFace(f.otf, &opentype.FaceOptions{
		Size:    float64(scale),
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
