package contract

import (
	"context"
	"io"
)

// Reader: 名单表格来源（文件、目录或 STDIN）。
// 按稳定顺序为每个表格回调一次 yield，rc 由 yield 负责关闭；
// 只提供字节流，不解析表格；ctx 取消时尽快返回 ctx.Err()。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, rc io.ReadCloser) error) error
}

// ReaderFunc 将函数适配为 Reader（内存名单、测试桩）。
type ReaderFunc func(ctx context.Context, roots []string, yield func(FileID, io.ReadCloser) error) error

func (f ReaderFunc) Iterate(ctx context.Context, roots []string, yield func(FileID, io.ReadCloser) error) error {
	return f(ctx, roots, yield)
}
