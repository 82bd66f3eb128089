package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certgen/pkg/contract"
)

// Options PostgreSQL 账本配置。
type Options struct {
	// DSN: 连接串（URL 或 key=value 形式）。
	DSN string `json:"dsn"`
	// AutoMigrate: 首次连接时创建表。
	AutoMigrate bool  `json:"auto_migrate"`
	MaxConns    int32 `json:"max_conns"`
}

const schema = `
CREATE TABLE IF NOT EXISTS certgen_batches (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	output_dir  TEXT NOT NULL,
	merged_path TEXT NOT NULL DEFAULT '',
	pages       INTEGER NOT NULL DEFAULT 0,
	warnings    JSONB NOT NULL DEFAULT '[]',
	columns     JSONB NOT NULL DEFAULT '[]',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS certgen_certificates (
	batch_id      TEXT NOT NULL REFERENCES certgen_batches(id) ON DELETE CASCADE,
	file          TEXT NOT NULL,
	record_index  INTEGER NOT NULL,
	name          TEXT NOT NULL,
	department    TEXT NOT NULL,
	artifact_path TEXT NOT NULL,
	PRIMARY KEY (batch_id, file)
);`

const upsertBatch = `
INSERT INTO certgen_batches (id, source, output_dir, merged_path, pages, warnings, columns, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE SET
	source = EXCLUDED.source,
	output_dir = EXCLUDED.output_dir,
	merged_path = EXCLUDED.merged_path,
	pages = EXCLUDED.pages,
	warnings = EXCLUDED.warnings,
	columns = EXCLUDED.columns,
	recorded_at = EXCLUDED.recorded_at`

const selectBatch = `
SELECT id, source, output_dir, merged_path, pages, warnings, columns
FROM certgen_batches WHERE id = $1`

const selectCerts = `
SELECT file, record_index, name, department, artifact_path
FROM certgen_certificates WHERE batch_id = $1 ORDER BY file`

var certColumns = []string{"batch_id", "file", "record_index", "name", "department", "artifact_path"}

// Ledger 将批次写入 PostgreSQL。连接池在首次使用时建立。
type Ledger struct {
	cfg         *pgxpool.Config
	autoMigrate bool

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New 解析 DSN 并设置连接池参数；不建立连接。
func New(opts *Options) (*Ledger, error) {
	if opts == nil || strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("%w: pgsql dsn required", contract.ErrInvalidInput)
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse pgsql dsn: %w", contract.ErrInvalidInput, err)
	}
	cfg.MaxConns = 10
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = 2
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.MaxConnLifetime = 3 * time.Minute
	return &Ledger{cfg: cfg, autoMigrate: opts.AutoMigrate}, nil
}

func (l *Ledger) open(ctx context.Context) (*pgxpool.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pool != nil {
		return l.pool, nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, l.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if l.autoMigrate {
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	l.pool = pool
	return pool, nil
}

// Record 在一个事务中替换批次及其证书。
func (l *Ledger) Record(ctx context.Context, b contract.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("%w: empty batch id", contract.ErrInvalidInput)
	}
	warns, cols, err := encodeJSON(b)
	if err != nil {
		return fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	pool, err := l.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertBatch, string(b.ID), string(b.Source), b.OutputDir, b.MergedPath, b.Pages, warns, cols); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM certgen_certificates WHERE batch_id = $1`, string(b.ID)); err != nil {
			return fmt.Errorf("clear certificates: %w", err)
		}
		if len(b.Certificates) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"certgen_certificates"}, certColumns, pgx.CopyFromRows(certRows(b)))
		if err != nil {
			return fmt.Errorf("copy certificates: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: pgsql record %s: %w", contract.ErrStorage, b.ID, err)
	}
	return nil
}

// Lookup 读取批次；不存在时返回 ErrNotFound。
func (l *Ledger) Lookup(ctx context.Context, id contract.BatchID) (contract.Batch, error) {
	pool, err := l.open(ctx)
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	var (
		b           contract.Batch
		warns, cols []byte
	)
	err = pool.QueryRow(ctx, selectBatch, string(id)).Scan(&b.ID, &b.Source, &b.OutputDir, &b.MergedPath, &b.Pages, &warns, &cols)
	if errors.Is(err, pgx.ErrNoRows) {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: pgsql lookup %s: %w", contract.ErrStorage, id, err)
	}
	if err := decodeJSON(&b, warns, cols); err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	rows, err := pool.Query(ctx, selectCerts, string(id))
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: pgsql certificates %s: %w", contract.ErrStorage, id, err)
	}
	b.Certificates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (contract.Certificate, error) {
		var c contract.Certificate
		err := row.Scan(&c.File, &c.Record.Index, &c.Record.Name, &c.Record.Department, &c.ArtifactPath)
		c.Record.FileID = b.Source
		return c, err
	})
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: pgsql certificates %s: %w", contract.ErrStorage, id, err)
	}
	return b, nil
}

// Close 关闭连接池。
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pool != nil {
		l.pool.Close()
		l.pool = nil
	}
	return nil
}

func certRows(b contract.Batch) [][]any {
	rows := make([][]any, 0, len(b.Certificates))
	for _, c := range b.Certificates {
		rows = append(rows, []any{string(b.ID), c.File, c.Record.Index, c.Record.Name, c.Record.Department, c.ArtifactPath})
	}
	return rows
}

func encodeJSON(b contract.Batch) ([]byte, []byte, error) {
	warns := b.Warnings
	if warns == nil {
		warns = []contract.Warning{}
	}
	cols := b.Columns
	if cols == nil {
		cols = []contract.ColumnBinding{}
	}
	w, err := json.Marshal(warns)
	if err != nil {
		return nil, nil, fmt.Errorf("encode warnings: %w", err)
	}
	c, err := json.Marshal(cols)
	if err != nil {
		return nil, nil, fmt.Errorf("encode columns: %w", err)
	}
	return w, c, nil
}

func decodeJSON(b *contract.Batch, warns, cols []byte) error {
	if len(warns) > 0 {
		if err := json.Unmarshal(warns, &b.Warnings); err != nil {
			return fmt.Errorf("decode warnings: %w", err)
		}
		if len(b.Warnings) == 0 {
			b.Warnings = nil
		}
	}
	if len(cols) > 0 {
		if err := json.Unmarshal(cols, &b.Columns); err != nil {
			return fmt.Errorf("decode columns: %w", err)
		}
		if len(b.Columns) == 0 {
			b.Columns = nil
		}
	}
	return nil
}
