package table

import (
	"strings"

	"certgen/pkg/contract"
)

// Aliases: 每个语义字段的有序别名列表（已归一为小写、去空白）。
// 同一字段按列表顺序取第一个在表头中出现的别名。
type Aliases struct {
	Name       []string
	Department []string
}

// DefaultAliases: name ← [name]；department ← [dept, department]。
func DefaultAliases() Aliases {
	return Aliases{
		Name:       []string{"name"},
		Department: []string{"dept", "department"},
	}
}

// Extend 返回追加了额外别名的副本（去重，保持顺序）。
func (a Aliases) Extend(name, dept []string) Aliases {
	return Aliases{
		Name:       appendUnique(a.Name, name),
		Department: appendUnique(a.Department, dept),
	}
}

// Resolve 在归一化表头中解析字段；未找到时 Present=false、Index=-1。
func (a Aliases) Resolve(f contract.Field, header []string) contract.ColumnBinding {
	var list []string
	switch f {
	case contract.FieldName:
		list = a.Name
	case contract.FieldDepartment:
		list = a.Department
	}
	for _, alias := range list {
		for i, h := range header {
			if h == alias {
				return contract.ColumnBinding{Field: f, Header: h, Index: i, Present: true}
			}
		}
	}
	return contract.ColumnBinding{Field: f, Index: -1}
}

// normalizeHeader: 列名去首尾空白并转小写。
func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = normalizeKey(h)
	}
	return out
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}

func appendUnique(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		k := normalizeKey(s)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
