package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnnamedStem: 姓名清洗后为空时使用的文件名主干。
const UnnamedStem = "unnamed"

// SanitizeName 将姓名转为安全的小写文件名主干：
// NFKD 分解并去除组合记号，路径分隔符与空白串折叠为 "_"，
// 仅保留 [a-z0-9._-]，并去掉首尾的 "." 与 "_"。结果可能为空。
func SanitizeName(name string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	s, _, err := transform.String(fold, name)
	if err != nil {
		s = name
	}
	s = strings.NewReplacer("/", " ", "\\", " ").Replace(s)
	s = strings.ToLower(strings.Join(strings.Fields(s), "_"))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
