package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"certgen/pkg/contract"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(&Options{Host: "db.local", User: "certs", Password: "p@ss", Database: "awards"})
	if err != nil {
		t.Fatalf("buildDSN: %v", err)
	}
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("生成的 DSN 应可解析: %v", err)
	}
	if cfg.Addr != "db.local:3306" || cfg.User != "certs" || cfg.Passwd != "p@ss" || cfg.DBName != "awards" || !cfg.ParseTime {
		t.Fatalf("DSN 字段错误: %+v", cfg)
	}

	dsn, err = buildDSN(&Options{DSN: "u:p@tcp(127.0.0.1:3307)/x"})
	if err != nil {
		t.Fatalf("buildDSN(dsn): %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") || !strings.Contains(dsn, "127.0.0.1:3307") {
		t.Fatalf("显式 DSN 应保留并开启 parseTime: %s", dsn)
	}

	for _, o := range []*Options{{}, {Host: "h"}, {DSN: "::not a dsn"}} {
		if _, err := buildDSN(o); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("buildDSN(%+v) 应报错: %v", o, err)
		}
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("nil options 应报错")
	}
}

func TestInsertCerts(t *testing.T) {
	b := contract.Batch{ID: "b1", Certificates: []contract.Certificate{
		{Record: contract.Record{Index: 0, Name: "Ann"}, File: "ann.jpg"},
		{Record: contract.Record{Index: 1, Name: "Bob", Department: "Ops"}, File: "bob.jpg"},
	}}
	q, args := insertCerts(b)
	if strings.Count(q, "(?, ?, ?, ?, ?, ?)") != 2 {
		t.Fatalf("占位符组数错误: %s", q)
	}
	if len(args) != 12 || args[6] != "b1" || args[7] != "bob.jpg" || args[10] != "Ops" {
		t.Fatalf("参数错误: %v", args)
	}
}

func TestJSONColumns(t *testing.T) {
	w, c, err := encodeJSON(contract.Batch{Columns: []contract.ColumnBinding{{Field: contract.FieldName, Present: true}}})
	if err != nil || string(w) != "[]" {
		t.Fatalf("encode: %s %v", w, err)
	}
	var b contract.Batch
	if err := decodeJSON(&b, w, c); err != nil || b.Warnings != nil || !b.Columns[0].Present {
		t.Fatalf("decode: %+v %v", b, err)
	}
	if err := decodeJSON(&b, nil, []byte("x")); err == nil {
		t.Fatalf("非法 JSON 应报错")
	}
}

func TestRecordUnreachable(t *testing.T) {
	l, err := New(&Options{DSN: "u:p@tcp(127.0.0.1:1)/x?timeout=1s"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
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
