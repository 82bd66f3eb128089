package diag

import (
	"sort"
	"strings"
	"sync"
)

// 进程内最小计数器（无导出端点）。名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累加）

var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

func bump(name string, labels []string, v int64) {
	key := name + "{" + strings.Join(labels, ",") + "}"
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	bump("op_total", []string{comp, stage, result}, 1)
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	bump("error_total", []string{comp, code}, 1)
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	if durMS < 0 {
		durMS = 0
	}
	bump("op_duration_ms", []string{comp, stage}, durMS)
}

// Snapshot 返回当前计数器的拷贝（键按字典序可由 Keys 获取）。
func Snapshot() map[string]int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make(map[string]int64, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}

// Keys 返回快照键的有序列表。
func Keys(m map[string]int64) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// ResetMetrics 清空计数器。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
