package contract

import (
	"context"
	"io"
)

// RenderReport: 单条记录的排版结果与降级告警。
type RenderReport struct {
	Name       LayoutResult
	Department LayoutResult
	Warnings   []Warning
}

// Renderer: 基于模板为单条记录生成栅格产物。
// 约束：
// 1) Open 仅在批次开始时调用一次，返回的 Template 只读共享；
// 2) Render 不得修改 Template，可被多个 goroutine 并发调用；
// 3) 文字溢出不是错误，通过 RenderReport 报告；
// 4) 模板/编码/写出失败返回 ErrRender。
type Renderer interface {
	Open(ctx context.Context, path string) (Template, error)
	Render(ctx context.Context, tpl Template, rec Record, w io.Writer) (RenderReport, error)
	// Ext 返回产物扩展名（含前导点，如 ".jpg"）。
	Ext() string
}
