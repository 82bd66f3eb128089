package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certgen/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomic 原子写入（含父目录自动创建）
func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Write(context.Background(), "b1/alice_smith.jpg", bytes.NewBufferString("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "b1", "alice_smith.jpg"))
	if err != nil || string(b) != "data" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	noTmp(t, filepath.Join(dir, "b1"))
}

// 当目标已存在时，Atomic 写应替换为新内容。
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(dir, nil)
	if err := w.Write(context.Background(), "out.jpg", bytes.NewBufferString("v1")); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	if err := w.Write(context.Background(), "out.jpg", bytes.NewBufferString("v2")); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "out.jpg"))
	if string(b) != "v2" {
		t.Fatalf("expect replaced content v2, got %q", string(b))
	}
	noTmp(t, dir)
}

// TestWritePathInvalid 路径越界
func TestWritePathInvalid(t *testing.T) {
	w, _ := New(t.TempDir(), nil)
	for _, id := range []string{"../bad", "a/../../bad", "", "."} {
		if err := w.Write(context.Background(), contract.ArtifactID(id), bytes.NewBufferString("x")); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("%q: expect path invalid, got %v", id, err)
		}
	}
}

// TestWriteNonAtomic 非原子写入
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(dir, &Options{Atomic: &a})
	if err := w.Write(context.Background(), "sub/out.txt", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "out.txt")); err != nil {
		t.Fatalf("file not created")
	}
}

// TestReserveExclusive 同一目录只能预留一次
func TestReserveExclusive(t *testing.T) {
	root := filepath.Join(t.TempDir(), "generated")
	w, _ := New(root, nil)
	p, err := w.Reserve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if p != filepath.Join(root, "abc") {
		t.Fatalf("path %s", p)
	}
	if st, err := os.Stat(p); err != nil || !st.IsDir() {
		t.Fatalf("目录未创建: %v", err)
	}
	if _, err := w.Reserve(context.Background(), "abc"); !errors.Is(err, contract.ErrStorage) {
		t.Fatalf("重复预留应为 ErrStorage: %v", err)
	}
	if _, err := w.Reserve(context.Background(), "../x"); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("越界: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Reserve(ctx, "def"); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消: %v", err)
	}
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(dir, nil)
	p, err := w.Path("b/x.jpg")
	if err != nil || p != filepath.Join(dir, "b", "x.jpg") {
		t.Fatalf("path %s %v", p, err)
	}
	if w.Root() != dir {
		t.Fatalf("root")
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.txt", strings.NewReader("data")); err == nil {
		t.Fatalf("expect ctx error")
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect error for empty root")
	}
	if _, err := New("  ", &Options{}); err == nil {
		t.Fatalf("expect error for blank root")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(dir, nil)
	if err := w.Write(context.Background(), "a.txt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err == nil {
		t.Fatalf("expect ctx error")
	}
}
