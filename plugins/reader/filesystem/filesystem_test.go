package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certgen/pkg/contract"
)

func collect(t *testing.T, r *FileSystem, roots []string) []string {
	t.Helper()
	var files []string
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, filepath.Base(string(id)))
		return rc.Close()
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return files
}

// TestIterateSingleFile 读取单文件
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "staff.csv")
	os.WriteFile(fp, []byte("name\nAlice"), 0o644)
	r := New(nil)
	var got []byte
	err := r.Iterate(context.Background(), []string{fp}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		got = append(got, b...)
		if id != contract.NormalizeFileID(fp) {
			t.Fatalf("file id mismatch %s", id)
		}
		return nil
	})
	if err != nil || string(got) != "name\nAlice" {
		t.Fatalf("iterate: %v %q", err, string(got))
	}
}

// TestAllowExts 目录扫描按扩展名过滤；显式文件不过滤
func TestAllowExts(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.CSV", "a.xlsx", "notes.md", "c.tsv"} {
		os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644)
	}
	r := New(&Options{AllowExts: []string{".csv", "xlsx", " .tsv ", ""}})
	files := collect(t, r, []string{dir})
	if strings.Join(files, ",") != "a.xlsx,b.CSV,c.tsv" {
		t.Fatalf("allow exts failed: %#v", files)
	}
	files = collect(t, r, []string{filepath.Join(dir, "notes.md")})
	if len(files) != 1 {
		t.Fatalf("explicit file should pass: %#v", files)
	}
}

// TestExcludeDir 跳过目录，子目录先于文件
func TestExcludeDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "keep.csv"), []byte("k"), 0o644)
	os.Mkdir(filepath.Join(dir, "skip"), 0o755)
	os.WriteFile(filepath.Join(dir, "skip", "bad.csv"), []byte("b"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "inner.csv"), []byte("i"), 0o644)

	files := collect(t, New(&Options{ExcludeDirNames: []string{"SKIP", ""}}), []string{dir})
	if strings.Join(files, ",") != "inner.csv,keep.csv" {
		t.Fatalf("exclude failed: %#v", files)
	}
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{"-", "a"}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect invalid input for dash mix, got %v", err)
	}
}

// TestIterateStdin roots 为空或为 '-' 时读取 STDIN
func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		r := New(nil)
		old := os.Stdin
		pr, pw, _ := os.Pipe()
		os.Stdin = pr
		go func() {
			pw.Write([]byte("name\nBob"))
			pw.Close()
		}()
		var data []byte
		err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
			defer rc.Close()
			if id != "stdin" {
				t.Fatalf("id=%s", id)
			}
			data, _ = io.ReadAll(rc)
			return nil
		})
		os.Stdin = old
		if err != nil || string(data) != "name\nBob" {
			t.Fatalf("stdin %v: %v %q", roots, err, string(data))
		}
	}
}

// TestIterateYieldError 回调错误原样返回
func TestIterateYieldError(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.csv")
	os.WriteFile(fp, []byte("x"), 0o644)
	boom := errors.New("boom")
	err := New(nil).Iterate(context.Background(), []string{dir}, func(contract.FileID, io.ReadCloser) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want boom got %v", err)
	}
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.csv")
	os.WriteFile(fp, []byte("x"), 0o644)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx cancel, got %v", err)
	}
}

// TestIterateMissing 不存在的 root 返回错误
func TestIterateMissing(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "nope.csv")}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want not exist got %v", err)
	}
}

// TestHiddenAndLockFiles 目录扫描默认跳过隐藏文件与锁文件
func TestHiddenAndLockFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{".draft.csv", "~$staff.xlsx", "staff.xlsx"} {
		os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644)
	}
	files := collect(t, New(nil), []string{dir})
	if strings.Join(files, ",") != "staff.xlsx" {
		t.Fatalf("hidden files should be skipped: %#v", files)
	}
	files = collect(t, New(&Options{IncludeHidden: true}), []string{dir})
	if len(files) != 3 {
		t.Fatalf("include_hidden should collect all: %#v", files)
	}
	// 显式给出的隐藏文件照常读取
	files = collect(t, New(nil), []string{filepath.Join(dir, ".draft.csv")})
	if len(files) != 1 {
		t.Fatalf("explicit hidden file should pass: %#v", files)
	}
}

// TestMaxBytes 超过上限的表格为格式错误
func TestMaxBytes(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "big.csv")
	os.WriteFile(fp, []byte("name\nAlice\nBob\n"), 0o644)

	called := false
	err := New(&Options{MaxBytes: 4}).Iterate(context.Background(), []string{fp}, func(contract.FileID, io.ReadCloser) error {
		called = true
		return nil
	})
	if !errors.Is(err, contract.ErrFormat) || called {
		t.Fatalf("want format error before yield, got %v called=%v", err, called)
	}

	// 恰好等于上限时可读
	err = New(&Options{MaxBytes: 15}).Iterate(context.Background(), []string{fp}, func(_ contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		_, err := io.ReadAll(rc)
		return err
	})
	if err != nil {
		t.Fatalf("size equal to limit should pass: %v", err)
	}
}

// TestCapReader 无法预知大小的流在读取中途超限
func TestCapReader(t *testing.T) {
	r := New(&Options{MaxBytes: 3, BufSize: 16})
	rc := r.wrap(io.NopCloser(strings.NewReader("abcdef")), "stdin")
	defer rc.Close()
	_, err := io.ReadAll(rc)
	if !errors.Is(err, contract.ErrFormat) {
		t.Fatalf("want format error, got %v", err)
	}
	rc = r.wrap(io.NopCloser(strings.NewReader("abc")), "stdin")
	b, err := io.ReadAll(rc)
	if err != nil || string(b) != "abc" {
		t.Fatalf("within limit: %v %q", err, b)
	}
}
