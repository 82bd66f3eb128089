package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"certgen/pkg/contract"
)

// DefaultFile 为批次目录内的清单文件名。
const DefaultFile = "batch.json"

// Options 清单账本配置。
type Options struct {
	// File: 清单文件名（仅基名）。
	File string `json:"file"`
}

// Manifest 将批次记录为批次目录下的 JSON 清单，经由 Writer 原子写入。
type Manifest struct {
	w    contract.Writer
	file string
}

// New 创建清单账本。
func New(w contract.Writer, opts *Options) (*Manifest, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: manifest requires a writer", contract.ErrInvalidInput)
	}
	m := &Manifest{w: w, file: DefaultFile}
	if opts != nil {
		if s := strings.TrimSpace(opts.File); s != "" {
			if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
				return nil, fmt.Errorf("%w: manifest file must be a bare name: %q", contract.ErrInvalidInput, s)
			}
			m.file = s
		}
	}
	return m, nil
}

// Record 写入 <batch>/<file>；同一批次重复记录覆盖旧清单。
func (m *Manifest) Record(ctx context.Context, b contract.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("%w: empty batch id", contract.ErrInvalidInput)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %w", contract.ErrStorage, err)
	}
	data = append(data, '\n')
	if err := m.w.Write(ctx, contract.ArtifactIn(b.ID, m.file), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write manifest: %w", contract.ErrStorage, err)
	}
	return nil
}

// Lookup 读取批次清单；清单不存在时返回 ErrNotFound。
func (m *Manifest) Lookup(ctx context.Context, id contract.BatchID) (contract.Batch, error) {
	if err := ctx.Err(); err != nil {
		return contract.Batch{}, err
	}
	p, err := m.w.Path(contract.ArtifactIn(id, m.file))
	if err != nil {
		return contract.Batch{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: read manifest: %w", contract.ErrStorage, err)
	}
	var b contract.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return contract.Batch{}, fmt.Errorf("%w: decode manifest %s: %w", contract.ErrStorage, p, err)
	}
	return b, nil
}

// Close 无资源需要释放。
func (m *Manifest) Close() error { return nil }
