package pgsql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"certgen/pkg/contract"
)

func TestNewOptions(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少 dsn 应报错: %v", err)
	}
	if _, err := New(&Options{DSN: "postgres://%zz"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法 dsn 应报错: %v", err)
	}
	l, err := New(&Options{DSN: "postgres://u:p@localhost:5432/certs?sslmode=disable", AutoMigrate: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.cfg.MaxConns != 10 || l.cfg.MinConns != 2 || l.cfg.MaxConnLifetime != 3*time.Minute || !l.autoMigrate {
		t.Fatalf("连接池参数错误: %+v", l.cfg)
	}
	if l.cfg.ConnConfig.Database != "certs" {
		t.Fatalf("数据库名解析错误: %s", l.cfg.ConnConfig.Database)
	}
	l, _ = New(&Options{DSN: "host=localhost dbname=certs", MaxConns: 1})
	if l.cfg.MaxConns != 1 || l.cfg.MinConns != 1 {
		t.Fatalf("MinConns 不应超过 MaxConns: %d/%d", l.cfg.MinConns, l.cfg.MaxConns)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("未连接时 Close 应为 no-op: %v", err)
	}
}

func TestCertRows(t *testing.T) {
	b := contract.Batch{ID: "b1", Certificates: []contract.Certificate{
		{Record: contract.Record{Index: 4, Name: "Ann", Department: "X"}, File: "ann.jpg", ArtifactPath: "/o/b1/ann.jpg"},
	}}
	rows := certRows(b)
	if len(rows) != 1 || len(rows[0]) != len(certColumns) {
		t.Fatalf("行宽应与列一致: %v", rows)
	}
	if rows[0][0] != "b1" || rows[0][1] != "ann.jpg" || rows[0][2] != 4 {
		t.Fatalf("行内容错误: %v", rows[0])
	}
}

func TestJSONColumns(t *testing.T) {
	w, c, err := encodeJSON(contract.Batch{})
	if err != nil || string(w) != "[]" || string(c) != "[]" {
		t.Fatalf("空集合应编码为 []: %s %s %v", w, c, err)
	}
	var b contract.Batch
	if err := decodeJSON(&b, w, c); err != nil || b.Warnings != nil || b.Columns != nil {
		t.Fatalf("空数组应还原为 nil: %+v %v", b, err)
	}
	w, _, _ = encodeJSON(contract.Batch{Warnings: []contract.Warning{{Kind: contract.WarnEmptyName, Record: 1}}})
	if err := decodeJSON(&b, w, nil); err != nil || b.Warnings[0].Kind != contract.WarnEmptyName {
		t.Fatalf("告警还原错误: %+v %v", b, err)
	}
	if err := decodeJSON(&b, []byte("{"), nil); err == nil {
		t.Fatalf("非法 JSON 应报错")
	}
}

func TestSchema(t *testing.T) {
	for _, tbl := range []string{"certgen_batches", "certgen_certificates"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+tbl) {
			t.Fatalf("缺少表 %s", tbl)
		}
	}
	if !strings.Contains(upsertBatch, "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("批次写入应为 upsert")
	}
}

// 无可用服务器时返回存储错误
func TestRecordUnreachable(t *testing.T) {
	l, err := New(&Options{DSN: "postgres://u:p@127.0.0.1:1/certs?sslmode=disable&connect_timeout=1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Record(ctx, contract.Batch{ID: "b1"}); !errors.Is(err, contract.ErrStorage) {
		t.Fatalf("应为存储错误: %v", err)
	}
	if _, err := l.Lookup(ctx, "b1"); !errors.Is(err, contract.ErrStorage) {
		t.Fatalf("应为存储错误: %v", err)
	}
	if err := l.Record(ctx, contract.Batch{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空 ID 应报错: %v", err)
	}
}
