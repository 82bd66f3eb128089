package contract

import "context"

// Ledger: 批次账本。记录完成的批次，并可按 ID 取回。
// 约束：
// 1) 同一 BatchID 重复 Record 为覆盖写；
// 2) Lookup 未命中返回 ErrNotFound；
// 3) Close 释放连接等资源，可重复调用。
type Ledger interface {
	Record(ctx context.Context, b Batch) error
	Lookup(ctx context.Context, id BatchID) (Batch, error)
	Close() error
}
