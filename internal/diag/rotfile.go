package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logPrefix   = "certgen"
	currentName = logPrefix + "-current.txt"
	// DefaultMaxBytes: 单个日志文件的轮转阈值。
	DefaultMaxBytes = 10 * 1024 * 1024
	// DefaultKeep: 保留的历史日志文件数。
	DefaultKeep = 20
)

// RotatingFile 按大小轮转的日志文件。
// 当前文件为 certgen-current.txt；超限时改名为 certgen-<UTC 时间戳>.txt，
// 历史文件超过 keep 个时删除最旧的（keep<=0 不清理）。
type RotatingFile struct {
	dir      string
	maxBytes int64
	keep     int

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

func NewRotatingFile(dir string, maxBytes int64, keep int) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, keep: keep}
}

// WriteLine 追加一行（自动补换行）；写入后将超限时先轮转。
func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	line := make([]byte, 0, len(b)+1)
	line = append(append(line, b...), '\n')
	if w.curSize > 0 && w.curSize+int64(len(line)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(line)
	w.curSize += int64(n)
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒精度，同秒多次轮转不互相覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s-%s.txt", logPrefix, ts))
	if err := os.Rename(filepath.Join(w.dir, currentName), rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	w.prune()
	return w.ensureOpen()
}

// prune 删除超出保留数的历史文件；时间戳文件名按字典序即时间序。
func (w *RotatingFile) prune() {
	if w.keep <= 0 {
		return
	}
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var old []string
	for _, e := range ents {
		n := e.Name()
		if n == currentName || e.IsDir() || !strings.HasPrefix(n, logPrefix+"-") || !strings.HasSuffix(n, ".txt") {
			continue
		}
		old = append(old, n)
	}
	if len(old) <= w.keep {
		return
	}
	sort.Strings(old)
	for _, n := range old[:len(old)-w.keep] {
		_ = os.Remove(filepath.Join(w.dir, n))
	}
}

// Close 关闭当前文件句柄；重复调用为 no-op。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
