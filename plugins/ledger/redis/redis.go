package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"certgen/pkg/contract"
)

// DefaultPrefix 为键前缀。
const DefaultPrefix = "certgen"

// Options Redis 账本配置。
type Options struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Prefix: 键前缀；批次键为 <prefix>:batch:<id>。
	Prefix string `json:"prefix"`
	// TTLSeconds: 记录过期时间；0 表示不过期。
	TTLSeconds int `json:"ttl_seconds"`
}

// Ledger 将批次存为一个 hash 与一个证书 list。
// - <prefix>:batch:<id>              批次元数据
// - <prefix>:batch:<id>:certificates 证书 JSON（按文件名升序）
type Ledger struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// New 创建 Redis 账本；连接在首次命令时建立。
func New(opts *Options) (*Ledger, error) {
	if opts == nil || strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("%w: redis addr required", contract.ErrInvalidInput)
	}
	if opts.DB < 0 || opts.TTLSeconds < 0 {
		return nil, fmt.Errorf("%w: redis db/ttl_seconds must be >= 0", contract.ErrInvalidInput)
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Ledger{client: c, prefix: prefix, ttl: time.Duration(opts.TTLSeconds) * time.Second}, nil
}

func (l *Ledger) batchKey(id contract.BatchID) string {
	return l.prefix + ":batch:" + string(id)
}

func (l *Ledger) certsKey(id contract.BatchID) string {
	return l.batchKey(id) + ":certificates"
}

// Record 在单个 MULTI/EXEC 中替换批次记录。
func (l *Ledger) Record(ctx context.Context, b contract.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("%w: empty batch id", contract.ErrInvalidInput)
	}
	fields, err := encodeFields(b)
	if err != nil {
		return fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	certs, err := encodeCerts(b.Certificates)
	if err != nil {
		return fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	hk, lk := l.batchKey(b.ID), l.certsKey(b.ID)
	_, err = l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, hk, lk)
		p.HSet(ctx, hk, fields)
		if len(certs) > 0 {
			p.RPush(ctx, lk, certs...)
		}
		if l.ttl > 0 {
			p.Expire(ctx, hk, l.ttl)
			if len(certs) > 0 {
				p.Expire(ctx, lk, l.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis record %s: %w", contract.ErrStorage, b.ID, err)
	}
	return nil
}

// Lookup 读取批次；hash 不存在时返回 ErrNotFound。
func (l *Ledger) Lookup(ctx context.Context, id contract.BatchID) (contract.Batch, error) {
	fields, err := l.client.HGetAll(ctx, l.batchKey(id)).Result()
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: redis lookup %s: %w", contract.ErrStorage, id, err)
	}
	if len(fields) == 0 {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	b, err := decodeFields(fields)
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	raw, err := l.client.LRange(ctx, l.certsKey(id), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return contract.Batch{}, fmt.Errorf("%w: redis lookup %s: %w", contract.ErrStorage, id, err)
	}
	if b.Certificates, err = decodeCerts(raw); err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	return b, nil
}

// Close 关闭连接池。
func (l *Ledger) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func encodeFields(b contract.Batch) (map[string]any, error) {
	warns, err := json.Marshal(b.Warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	cols, err := json.Marshal(b.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}
	return map[string]any{
		"id":          string(b.ID),
		"source":      string(b.Source),
		"output_dir":  b.OutputDir,
		"merged_path": b.MergedPath,
		"pages":       strconv.Itoa(b.Pages),
		"warnings":    string(warns),
		"columns":     string(cols),
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func decodeFields(f map[string]string) (contract.Batch, error) {
	b := contract.Batch{
		ID:         contract.BatchID(f["id"]),
		Source:     contract.FileID(f["source"]),
		OutputDir:  f["output_dir"],
		MergedPath: f["merged_path"],
	}
	if s := f["pages"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return b, fmt.Errorf("decode pages: %w", err)
		}
		b.Pages = n
	}
	if s := f["warnings"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &b.Warnings); err != nil {
			return b, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if s := f["columns"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &b.Columns); err != nil {
			return b, fmt.Errorf("decode columns: %w", err)
		}
	}
	return b, nil
}

func encodeCerts(cs []contract.Certificate) ([]any, error) {
	out := make([]any, 0, len(cs))
	for _, c := range cs {
		data, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode certificate %s: %w", c.File, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

func decodeCerts(raw []string) ([]contract.Certificate, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]contract.Certificate, 0, len(raw))
	for i, s := range raw {
		var c contract.Certificate
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("decode certificate #%d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
