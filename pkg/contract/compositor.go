package contract

import "context"

// Compositor: 将批次目录内的栅格产物合并为单个分页文档。
// 约束：
// 1) 按文件名升序，一页一个产物；
// 2) 目录内没有产物时返回 (nil, nil)；
// 3) 对未变化的目录重复调用结果一致；
// 4) 解码/写出失败返回 ErrComposition。
type Compositor interface {
	Merge(ctx context.Context, dir string) (*Composition, error)
}
