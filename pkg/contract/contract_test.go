package contract

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Windows路径", "C:\\Users\\test\\file.csv", "C:/Users/test/file.csv"},
		{"相对路径反斜杠", "uploads\\2024\\staff.xlsx", "uploads/2024/staff.xlsx"},
		{"清理多余斜杠", "path//to///file.csv", "path/to/file.csv"},
		{"处理父目录", "path/to/../from/file.csv", "path/from/file.csv"},
		{"空串", "", "."},
		{"中文路径", "名单\\研发/员工.csv", "名单/研发/员工.csv"},
		{"复杂父目录", "a\\b\\..\\..\\..\\d", "../d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFileID(tt.input); string(got) != tt.expected {
				t.Errorf("NormalizeFileID(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestArtifactIn(t *testing.T) {
	if got := ArtifactIn("abc", "x.jpg"); got != "abc/x.jpg" {
		t.Fatalf("got %q", got)
	}
	if got := ArtifactIn("abc", ""); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

// TestListArtifacts 覆盖扩展名过滤、大小写与排序。
func TestListArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.JPG", "a.png", "c.jpeg", "All_Certificates.pdf", "batch.json", "d.gif"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "e.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := ListArtifacts(dir, RasterExts)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"a.png", "b.JPG", "c.jpeg"}
	if len(got) != len(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Fatalf("顺序错误: %v", got)
		}
	}
	if _, err := ListArtifacts(filepath.Join(dir, "missing"), RasterExts); err == nil {
		t.Fatalf("目录不存在应报错")
	}
}

func TestTableBinding(t *testing.T) {
	tb := Table{Columns: []ColumnBinding{{Field: FieldName, Header: "name", Index: 0, Present: true}}}
	if b := tb.Binding(FieldName); !b.Present || b.Index != 0 {
		t.Fatalf("name binding: %+v", b)
	}
	if b := tb.Binding(FieldDepartment); b.Present || b.Index != -1 {
		t.Fatalf("department binding: %+v", b)
	}
	if w, h := (Template{}).Size(); w != 0 || h != 0 {
		t.Fatalf("空模板尺寸应为 0")
	}
}

func TestReaderFunc(t *testing.T) {
	var r Reader = ReaderFunc(func(ctx context.Context, roots []string, yield func(FileID, io.ReadCloser) error) error {
		for _, root := range roots {
			if err := yield(FileID(root), io.NopCloser(strings.NewReader("name\n"+root))); err != nil {
				return err
			}
		}
		return nil
	})
	var got []string
	err := r.Iterate(context.Background(), []string{"a", "b"}, func(id FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		got = append(got, string(id)+"="+string(b))
		return nil
	})
	if err != nil || strings.Join(got, ";") != "a=name\na;b=name\nb" {
		t.Fatalf("ReaderFunc: %v %q", err, got)
	}
}
