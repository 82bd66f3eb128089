package pipeline

import (
	"fmt"
	"strings"

	"certgen/pkg/contract"
)

// Collision: 同名产物的处理策略。
type Collision string

const (
	// CollisionOverwrite: 按源顺序最后一条获胜，之前的同名记录不渲染并报告告警。
	CollisionOverwrite Collision = "overwrite"
	// CollisionSuffix: 后出现的同名记录追加 _2、_3… 后缀。
	CollisionSuffix Collision = "suffix"
)

// ParseCollision 解析策略名；空串为 overwrite。
func ParseCollision(s string) (Collision, error) {
	switch Collision(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionOverwrite:
		return CollisionOverwrite, nil
	case CollisionSuffix:
		return CollisionSuffix, nil
	default:
		return "", fmt.Errorf("%w: unknown collision policy %q", contract.ErrInvalidInput, s)
	}
}

// Job: 一条待渲染记录及其已确定的产物文件名。
type Job struct {
	Record contract.Record
	File   string
}

// Plan 在渲染前按源顺序为记录分配文件名并执行冲突策略。
// 返回的 Job 按源顺序排列，文件名两两不同。
func Plan(records []contract.Record, ext string, policy Collision) ([]Job, []contract.Warning) {
	var warns []contract.Warning
	files := make([]string, len(records))
	for i, rec := range records {
		stem := SanitizeName(rec.Name)
		if stem == "" {
			stem = UnnamedStem
			warns = append(warns, contract.Warning{
				Kind:   contract.WarnEmptyName,
				Record: rec.Index,
				File:   stem + ext,
				Detail: fmt.Sprintf("name %q yields an empty file name", rec.Name),
			})
		}
		files[i] = stem + ext
	}

	jobs := make([]Job, 0, len(records))
	switch policy {
	case CollisionSuffix:
		used := make(map[string]struct{}, len(records))
		for i, rec := range records {
			f := files[i]
			if _, taken := used[f]; taken {
				stem := strings.TrimSuffix(f, ext)
				for n := 2; ; n++ {
					cand := fmt.Sprintf("%s_%d%s", stem, n, ext)
					if _, ok := used[cand]; !ok {
						warns = append(warns, contract.Warning{
							Kind:   contract.WarnNameCollision,
							Record: rec.Index,
							File:   cand,
							Detail: fmt.Sprintf("%s already taken, renamed", f),
						})
						f = cand
						break
					}
				}
			}
			used[f] = struct{}{}
			jobs = append(jobs, Job{Record: rec, File: f})
		}
	default:
		last := make(map[string]int, len(records))
		for i, f := range files {
			last[f] = i
		}
		for i, rec := range records {
			f := files[i]
			if w := last[f]; w != i {
				warns = append(warns, contract.Warning{
					Kind:   contract.WarnNameCollision,
					Record: rec.Index,
					File:   f,
					Detail: fmt.Sprintf("superseded by record %d", records[w].Index),
				})
				continue
			}
			jobs = append(jobs, Job{Record: rec, File: f})
		}
	}
	return jobs, warns
}
