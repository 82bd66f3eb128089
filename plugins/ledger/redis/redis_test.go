package redis

import (
	"context"
	"errors"
	"testing"

	"certgen/pkg/contract"
)

func TestNewOptions(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少 addr 应报错: %v", err)
	}
	if _, err := New(&Options{Addr: "localhost:6379", TTLSeconds: -1}); err == nil {
		t.Fatalf("负 ttl 应报错")
	}
	l, err := New(&Options{Addr: "localhost:6379", TTLSeconds: 60})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	if l.prefix != DefaultPrefix || l.ttl.Seconds() != 60 {
		t.Fatalf("默认配置错误: %s %v", l.prefix, l.ttl)
	}
}

func TestKeys(t *testing.T) {
	l, _ := New(&Options{Addr: "x:1", Prefix: "awards"})
	defer l.Close()
	if got := l.batchKey("abc"); got != "awards:batch:abc" {
		t.Fatalf("batchKey=%s", got)
	}
	if got := l.certsKey("abc"); got != "awards:batch:abc:certificates" {
		t.Fatalf("certsKey=%s", got)
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	b := contract.Batch{
		ID: "b1", Source: "people.csv", OutputDir: "/out/b1", MergedPath: "/out/b1/All.pdf", Pages: 3,
		Warnings: []contract.Warning{{Kind: contract.WarnNameCollision, Record: 2, File: "ann.jpg"}},
		Columns:  []contract.ColumnBinding{{Field: contract.FieldName, Header: "name", Index: 0, Present: true}},
	}
	f, err := encodeFields(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// HGETALL 返回字符串
	str := map[string]string{}
	for k, v := range f {
		str[k] = v.(string)
	}
	got, err := decodeFields(str)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != b.ID || got.Pages != 3 || got.MergedPath != b.MergedPath || len(got.Warnings) != 1 || got.Columns[0].Header != "name" {
		t.Fatalf("字段还原错误: %+v", got)
	}
	if _, err := decodeFields(map[string]string{"pages": "x"}); err == nil {
		t.Fatalf("非法 pages 应报错")
	}
	if _, err := decodeFields(map[string]string{"warnings": "{"}); err == nil {
		t.Fatalf("非法 warnings 应报错")
	}
}

func TestCerts(t *testing.T) {
	cs := []contract.Certificate{{Record: contract.Record{Index: 1, Name: "Bob"}, File: "bob.jpg"}}
	raw, err := encodeCerts(cs)
	if err != nil || len(raw) != 1 {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeCerts([]string{raw[0].(string)})
	if err != nil || got[0].Record.Name != "Bob" {
		t.Fatalf("decode: %+v %v", got, err)
	}
	if got, _ := decodeCerts(nil); got != nil {
		t.Fatalf("空列表应为 nil")
	}
	if _, err := decodeCerts([]string{"nope"}); err == nil {
		t.Fatalf("非法证书应报错")
	}
}

// 无可用服务器时 Record 返回存储错误
func TestRecordUnreachable(t *testing.T) {
	l, _ := New(&Options{Addr: "127.0.0.1:1"})
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Record(ctx, contract.Batch{ID: "b1"}); err == nil {
		t.Fatalf("应返回错误")
	}
	if err := l.Record(context.Background(), contract.Batch{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空 ID 应报错: %v", err)
	}
}
