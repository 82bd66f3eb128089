package contract

import "errors"

// 领域错误分类（调用方使用 errors.Is 判定）。
var (
	// ErrFormat: 输入无法解析为表格（编码/容器损坏/缺少必需列）。
	ErrFormat = errors.New("format error")
	// ErrRender: 模板无法打开/解码，或产物无法编码/写出。
	ErrRender = errors.New("render error")
	// ErrStorage: 批次目录无法独占创建，或批次账本写入失败。
	ErrStorage = errors.New("storage error")
	// ErrComposition: 产物无法解码，或合并文档无法写出。
	ErrComposition = errors.New("composition error")
	// ErrNotFound: 账本中不存在指定批次。
	ErrNotFound = errors.New("not found")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用参数不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
