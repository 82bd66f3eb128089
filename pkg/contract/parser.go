package contract

import (
	"context"
	"io"
)

// Parser: 将单个表格字节流解析为有序 Record 序列。
// 约束：
// 1) 列名大小写不敏感、忽略首尾空白；
// 2) 语义字段按别名列表解析，每个文件解析一次；
// 3) 完全空白的行跳过；Index 自 0 递增；
// 4) 无法解析为表格时返回 ErrFormat。
type Parser interface {
	Parse(ctx context.Context, fileID FileID, r io.Reader) (Table, error)
}
