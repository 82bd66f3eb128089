package contract

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// RasterExts: 合并与浏览时识别的栅格产物扩展名（小写）。
var RasterExts = []string{".png", ".jpg", ".jpeg"}

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// ArtifactIn 组合批次内产物标识：<batch>/<file>。
func ArtifactIn(batch BatchID, file string) ArtifactID {
	if file == "" {
		return ArtifactID(batch)
	}
	return ArtifactID(string(batch) + "/" + file)
}

// ListArtifacts 列出 dir 下扩展名（大小写不敏感）属于 exts 的常规文件，按文件名升序。
// 不递归；目录不存在时返回错误。
func ListArtifacts(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = struct{}{}
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := want[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}
