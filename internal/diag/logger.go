package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON 写入轮转文件；sink 不可用时回退 stderr。
type Logger struct {
	corrID string
	level  Level
	sink   *RotatingFile
	mu     sync.Mutex
}

// DefaultLogDir 为未配置时的日志目录。
const DefaultLogDir = "logs"

// NewLogger 通过配置的 level 初始化，并将日志写入 dir（空则 DefaultLogDir），10m 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	lvl := parseLevel(strings.TrimSpace(level))
	if strings.TrimSpace(dir) == "" {
		dir = DefaultLogDir
	}
	sink := NewRotatingFile(dir, DefaultMaxBytes, DefaultKeep)
	return &Logger{corrID: corrID, level: lvl, sink: sink}
}

// Close 关闭底层 sink。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|warn|error|debug
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	FileID string            `json:"file_id,omitempty"`
	Batch  string            `json:"batch_id,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

// Fields: 事件的可选归属（表格、批次）与附加键值。
type Fields struct {
	FileID string
	Batch  string
	KV     map[string]string
}

func firstFields(f []Fields) Fields {
	if len(f) == 0 {
		return Fields{}
	}
	return f[0]
}

// log 写出事件；低于阈值的级别丢弃，error 永不采样。nil Logger 为 no-op。
func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Start 记录 start 事件并返回计时器。
func (l *Logger) Start(comp, msg string, f ...Fields) *Timer {
	ff := firstFields(f)
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: ff.FileID, Batch: ff.Batch, Msg: msg, KV: ff.KV})
	return &Timer{l: l, comp: comp, fileID: ff.FileID, batch: ff.Batch, t0: time.Now()}
}

// Error 记录 error 事件；since 非空时附带耗时。
func (l *Logger) Error(comp, code, msg string, since *time.Time, f ...Fields) {
	var dur int64
	if since != nil {
		dur = time.Since(*since).Milliseconds()
	}
	ff := firstFields(f)
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, FileID: ff.FileID, Batch: ff.Batch, Msg: msg, KV: ff.KV})
}

// Warn 记录降级但成功的情形（例如字体回退、文件名冲突）。
func (l *Logger) Warn(comp, code, msg string, f ...Fields) {
	ff := firstFields(f)
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, FileID: ff.FileID, Batch: ff.Batch, Msg: msg, KV: ff.KV})
}

// Debug 记录调试事件（有效配置、批次规划等）。
func (l *Logger) Debug(comp, msg string, f ...Fields) {
	ff := firstFields(f)
	l.log(Debug, Event{Comp: comp, Stage: "debug", FileID: ff.FileID, Batch: ff.Batch, Msg: msg, KV: ff.KV})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	batch  string
	t0     time.Time
}

// Finish 记录 finish 并上报耗时；nil Timer 为 no-op。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	ObserveDuration(t.comp, msg, dur)
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: dur, Count: count, FileID: t.fileID, Batch: t.batch, Msg: msg})
}
