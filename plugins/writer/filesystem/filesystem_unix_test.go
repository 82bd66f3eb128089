//go:build !windows

package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certgen/pkg/contract"
)

// 绝对路径、根自身与 '..' 逃逸均拒绝
func TestMapPathInvalidUnix(t *testing.T) {
	w, _ := New(t.TempDir(), nil)
	for _, id := range []string{"/etc/passwd", "..", ".", "b1/../../x.jpg"} {
		if _, err := w.mapPath(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %s expect invalid, got %v", id, err)
		}
	}
}

// 自定义权限作用于批次目录与证书文件
func TestPermissionsUnix(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, &Options{PermFile: 0o600, PermDir: 0o700})
	if err != nil {
		t.Fatal(err)
	}
	dir, err := w.Reserve(context.Background(), contract.ArtifactIn("b1", ""))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := w.Write(context.Background(), contract.ArtifactIn("b1", "ann.jpg"), strings.NewReader("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if st, _ := os.Stat(dir); st.Mode().Perm()&0o077 != 0 {
		t.Fatalf("dir perm %v", st.Mode().Perm())
	}
	if st, _ := os.Stat(filepath.Join(dir, "ann.jpg")); st.Mode().Perm()&0o077 != 0 {
		t.Fatalf("file perm %v", st.Mode().Perm())
	}
}
