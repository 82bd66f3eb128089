package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"certgen/pkg/contract"
)

// Options MySQL 账本配置。DSN 非空时优先，否则由各字段组装。
type Options struct {
	DSN         string `json:"dsn"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Password    string `json:"password"`
	Database    string `json:"database"`
	AutoMigrate bool   `json:"auto_migrate"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS certgen_batches (
	id          VARCHAR(64) NOT NULL PRIMARY KEY,
	source      TEXT NOT NULL,
	output_dir  TEXT NOT NULL,
	merged_path TEXT NOT NULL,
	pages       INT NOT NULL DEFAULT 0,
	warnings    JSON NOT NULL,
	columns_    JSON NOT NULL,
	recorded_at DATETIME(3) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS certgen_certificates (
	batch_id      VARCHAR(64) NOT NULL,
	file          VARCHAR(255) NOT NULL,
	record_index  INT NOT NULL,
	name          TEXT NOT NULL,
	department    TEXT NOT NULL,
	artifact_path TEXT NOT NULL,
	PRIMARY KEY (batch_id, file),
	FOREIGN KEY (batch_id) REFERENCES certgen_batches(id) ON DELETE CASCADE
)`,
}

const upsertBatch = `
INSERT INTO certgen_batches (id, source, output_dir, merged_path, pages, warnings, columns_, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	source = VALUES(source),
	output_dir = VALUES(output_dir),
	merged_path = VALUES(merged_path),
	pages = VALUES(pages),
	warnings = VALUES(warnings),
	columns_ = VALUES(columns_),
	recorded_at = VALUES(recorded_at)`

const selectBatch = `
SELECT id, source, output_dir, merged_path, pages, warnings, columns_
FROM certgen_batches WHERE id = ?`

const selectCerts = `
SELECT file, record_index, name, department, artifact_path
FROM certgen_certificates WHERE batch_id = ? ORDER BY file`

// Ledger 将批次写入 MySQL。
type Ledger struct {
	dsn         string
	autoMigrate bool

	mu sync.Mutex
	db *sql.DB
}

// New 校验并组装 DSN；不建立连接。
func New(opts *Options) (*Ledger, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: mysql options required", contract.ErrInvalidInput)
	}
	dsn, err := buildDSN(opts)
	if err != nil {
		return nil, err
	}
	return &Ledger{dsn: dsn, autoMigrate: opts.AutoMigrate}, nil
}

func buildDSN(o *Options) (string, error) {
	if s := strings.TrimSpace(o.DSN); s != "" {
		cfg, err := driver.ParseDSN(s)
		if err != nil {
			return "", fmt.Errorf("%w: parse mysql dsn: %w", contract.ErrInvalidInput, err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}
	if strings.TrimSpace(o.Host) == "" || strings.TrimSpace(o.Database) == "" {
		return "", fmt.Errorf("%w: mysql dsn or host+database required", contract.ErrInvalidInput)
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	cfg := driver.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (l *Ledger) open(ctx context.Context) (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return l.db, nil
	}
	db, err := sql.Open("mysql", l.dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping failed: %w", err)
	}
	if l.autoMigrate {
		for _, stmt := range schema {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
	}
	l.db = db
	return db, nil
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
	db, err := l.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	if err := l.record(ctx, db, b, warns, cols); err != nil {
		return fmt.Errorf("%w: mysql record %s: %w", contract.ErrStorage, b.ID, err)
	}
	return nil
}

func (l *Ledger) record(ctx context.Context, db *sql.DB, b contract.Batch, warns, cols []byte) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, upsertBatch, string(b.ID), string(b.Source), b.OutputDir, b.MergedPath, b.Pages, warns, cols, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM certgen_certificates WHERE batch_id = ?`, string(b.ID)); err != nil {
		return fmt.Errorf("clear certificates: %w", err)
	}
	if len(b.Certificates) > 0 {
		q, args := insertCerts(b)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert certificates: %w", err)
		}
	}
	return tx.Commit()
}

// insertCerts 生成多行 INSERT 语句与参数。
func insertCerts(b contract.Batch) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO certgen_certificates (batch_id, file, record_index, name, department, artifact_path) VALUES ")
	args := make([]any, 0, len(b.Certificates)*6)
	for i, c := range b.Certificates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, string(b.ID), c.File, c.Record.Index, c.Record.Name, c.Record.Department, c.ArtifactPath)
	}
	return sb.String(), args
}

// Lookup 读取批次；不存在时返回 ErrNotFound。
func (l *Ledger) Lookup(ctx context.Context, id contract.BatchID) (contract.Batch, error) {
	db, err := l.open(ctx)
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	var (
		b           contract.Batch
		bid, source string
		warns, cols []byte
	)
	err = db.QueryRowContext(ctx, selectBatch, string(id)).Scan(&bid, &source, &b.OutputDir, &b.MergedPath, &b.Pages, &warns, &cols)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Batch{}, fmt.Errorf("batch %s: %w", id, contract.ErrNotFound)
	}
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: mysql lookup %s: %w", contract.ErrStorage, id, err)
	}
	b.ID, b.Source = contract.BatchID(bid), contract.FileID(source)
	if err := decodeJSON(&b, warns, cols); err != nil {
		return contract.Batch{}, fmt.Errorf("%w: %w", contract.ErrStorage, err)
	}
	rows, err := db.QueryContext(ctx, selectCerts, string(id))
	if err != nil {
		return contract.Batch{}, fmt.Errorf("%w: mysql certificates %s: %w", contract.ErrStorage, id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c contract.Certificate
		if err := rows.Scan(&c.File, &c.Record.Index, &c.Record.Name, &c.Record.Department, &c.ArtifactPath); err != nil {
			return contract.Batch{}, fmt.Errorf("%w: scan certificate: %w", contract.ErrStorage, err)
		}
		c.Record.FileID = b.Source
		b.Certificates = append(b.Certificates, c)
	}
	if err := rows.Err(); err != nil {
		return contract.Batch{}, fmt.Errorf("%w: mysql certificates %s: %w", contract.ErrStorage, id, err)
	}
	return b, nil
}

// Close 关闭连接。
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
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
