package contract

import (
	"context"
	"io"
)

// ArtifactID: 相对输出根目录的产物标识（正斜杠分隔），形如 "<batch>/<file>"。
type ArtifactID = FileID

// Writer: 批次目录与证书产物的持久化。
// 同一 ArtifactID 只有一个写者；写入为流式字节透传；错误直接上抛，不重试。
type Writer interface {
	// Reserve 独占创建批次目录并返回实际路径；目录已存在时返回 ErrStorage。
	Reserve(ctx context.Context, id ArtifactID) (string, error)
	// Write 写入（或原子替换）单个产物。
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
	// Path 返回 id 映射后的实际路径，不做 I/O；越界时返回 ErrPathInvalid。
	Path(id ArtifactID) (string, error)
}
