package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"certgen/pkg/contract"
)

const defaultBuf = 64 * 1024

// Options: 名单输入源的可选配置。
type Options struct {
	// BufSize: 读缓冲区大小（字节），默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 扫描目录时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// AllowExts: 扫描目录时只收集这些扩展名（大小写不敏感）；为空不过滤。
	// 显式给出的文件不受影响。
	AllowExts []string `json:"allow_exts"`
	// MaxBytes: 单个表格的字节上限；<=0 不限制。超限为格式错误。
	MaxBytes int64 `json:"max_bytes"`
	// IncludeHidden: 目录扫描时是否收集隐藏文件与办公软件锁文件（".x"、"~$x"）。
	IncludeHidden bool `json:"include_hidden"`
}

// FileSystem 从文件、目录或 STDIN 逐个产出名单表格的字节流。
type FileSystem struct {
	bufSize    int
	maxBytes   int64
	hidden     bool
	excludeDir map[string]struct{}
	allowExt   map[string]struct{}
}

// New 创建名单输入源。
func New(opts *Options) *FileSystem {
	var o Options
	if opts != nil {
		o = *opts
	}
	r := &FileSystem{
		bufSize:    o.BufSize,
		maxBytes:   o.MaxBytes,
		hidden:     o.IncludeHidden,
		excludeDir: map[string]struct{}{},
		allowExt:   map[string]struct{}{},
	}
	if r.bufSize <= 0 {
		r.bufSize = defaultBuf
	}
	for _, name := range o.ExcludeDirNames {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			r.excludeDir[name] = struct{}{}
		}
	}
	for _, e := range o.AllowExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		r.allowExt[e] = struct{}{}
	}
	return r
}

// Iterate 先确定全部表格路径（稳定顺序），再逐个打开并回调。
// roots 为空或仅为 "-" 时读取 STDIN；"-" 不能与其他根混用。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), r.wrap(os.Stdin, "stdin"))
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other roots", contract.ErrInvalidInput)
		}
	}

	var paths []string
	for _, root := range roots {
		found, err := r.collect(ctx, root)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.emit(p, yield); err != nil {
			return err
		}
	}
	return nil
}

// collect 展开单个 root。显式文件（含指向常规文件的符号链接）直接收集；
// 指向目录的符号链接与非常规文件忽略。
func (r *FileSystem) collect(ctx context.Context, root string) ([]string, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if t.Mode().IsRegular() {
			return []string{root}, nil
		}
		return nil, nil
	}
	if info.IsDir() {
		var out []string
		if err := r.scan(ctx, root, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if info.Mode().IsRegular() {
		return []string{root}, nil
	}
	return nil, nil
}

// scan 按字典序递归目录：子目录先于文件。
func (r *FileSystem) scan(ctx context.Context, dir string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.scan(ctx, filepath.Join(dir, e.Name()), out); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || !r.wanted(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if t.Mode().IsRegular() {
				*out = append(*out, p)
			}
			continue
		}
		if e.Type().IsRegular() {
			*out = append(*out, p)
		}
	}
	return nil
}

// wanted 判断目录扫描中的文件名是否应收集。
func (r *FileSystem) wanted(name string) bool {
	if !r.hidden && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")) {
		return false
	}
	if len(r.allowExt) == 0 {
		return true
	}
	_, ok := r.allowExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (r *FileSystem) emit(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	id := contract.NormalizeFileID(p)
	if r.maxBytes > 0 {
		if st, err := os.Stat(p); err == nil && st.Size() > r.maxBytes {
			return fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrFormat, id, r.maxBytes)
		}
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	rc := r.wrap(f, string(id))
	if err := yield(id, rc); err != nil {
		_ = rc.Close()
		return err
	}
	return nil
}

// wrap 加缓冲；设置了上限时读取超限返回格式错误（STDIN 无法预先取得大小）。
func (r *FileSystem) wrap(c io.ReadCloser, name string) io.ReadCloser {
	br := bufio.NewReaderSize(c, r.bufSize)
	if r.maxBytes <= 0 {
		return &bufferedCloser{Reader: br, c: c}
	}
	return &bufferedCloser{Reader: &capReader{r: br, left: r.maxBytes, name: name}, c: c}
}

// bufferedCloser 组合读取端与底层 Closer。
type bufferedCloser struct {
	io.Reader
	c io.Closer
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

type capReader struct {
	r    io.Reader
	left int64
	name string
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, fmt.Errorf("%w: %s exceeds size limit", contract.ErrFormat, c.name)
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, fmt.Errorf("%w: %s exceeds size limit", contract.ErrFormat, c.name)
	}
	return n, err
}
