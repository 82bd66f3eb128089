package table

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"certgen/pkg/contract"
)

// 表格格式。
const (
	FormatAuto = "auto"
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatXLSX = "xlsx"
)

// Extensions: auto 模式可识别的扩展名（小写）。
var Extensions = []string{".csv", ".txt", ".tsv", ".tab", ".xlsx", ".xlsm"}

// Options: 表格解析选项。
type Options struct {
	// Format: auto|csv|tsv|xlsx；auto 按扩展名判定，STDIN 视为 csv。
	Format string `json:"format"`
	// Delimiter: 分隔符（单字符）；空则 csv 用 ','，tsv 用 TAB。
	Delimiter string `json:"delimiter"`
	// Encoding: auto 或 WHATWG 编码名（如 windows-1252、gbk、shift_jis）。
	Encoding string `json:"encoding"`
	// Sheet: 工作表名；空则使用第一个工作表。
	Sheet string `json:"sheet"`
	// NameColumns/DepartmentColumns: 追加的列名别名（在内置别名之后匹配）。
	NameColumns       []string `json:"name_columns"`
	DepartmentColumns []string `json:"department_columns"`
}

// Parser 将 CSV/TSV/XLSX 解析为记录。无状态，可并发使用。
type Parser struct {
	format   string
	delim    rune
	encoding string
	sheet    string
	aliases  Aliases
}

var _ contract.Parser = (*Parser)(nil)

// New 创建表格解析器。
func New(opts *Options) (*Parser, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	p := &Parser{
		format:   strings.ToLower(strings.TrimSpace(o.Format)),
		encoding: strings.TrimSpace(o.Encoding),
		sheet:    strings.TrimSpace(o.Sheet),
		aliases:  DefaultAliases().Extend(o.NameColumns, o.DepartmentColumns),
	}
	switch p.format {
	case "":
		p.format = FormatAuto
	case FormatAuto, FormatCSV, FormatTSV, FormatXLSX:
	default:
		return nil, fmt.Errorf("table: unsupported format %q", o.Format)
	}
	if o.Delimiter != "" {
		if utf8.RuneCountInString(o.Delimiter) != 1 {
			return nil, fmt.Errorf("table: delimiter must be a single character: %q", o.Delimiter)
		}
		p.delim, _ = utf8.DecodeRuneInString(o.Delimiter)
		if p.delim == '"' || p.delim == '\r' || p.delim == '\n' || p.delim == utf8.RuneError {
			return nil, fmt.Errorf("table: invalid delimiter %q", o.Delimiter)
		}
	}
	if p.encoding != "" && !strings.EqualFold(p.encoding, "auto") {
		if _, err := lookupEncoding(p.encoding); err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
	}
	return p, nil
}

// Parse 读取单个表格并解析为记录。
func (p *Parser) Parse(ctx context.Context, fileID contract.FileID, r io.Reader) (contract.Table, error) {
	if err := ctx.Err(); err != nil {
		return contract.Table{}, err
	}
	var (
		rows [][]string
		err  error
	)
	switch p.formatFor(fileID) {
	case FormatXLSX:
		rows, err = readSheet(r, p.sheet)
	case FormatTSV:
		rows, err = readDelimited(r, p.delimiterOr('\t'), p.encoding)
	case FormatCSV:
		rows, err = readDelimited(r, p.delimiterOr(','), p.encoding)
	default:
		err = fmt.Errorf("%w: %s: unsupported table type (want .csv, .tsv, .txt, .xlsx)", contract.ErrFormat, fileID)
	}
	if err != nil {
		return contract.Table{}, fmt.Errorf("%s: %w", fileID, err)
	}
	if err := ctx.Err(); err != nil {
		return contract.Table{}, err
	}
	t, err := buildTable(fileID, rows, p.aliases)
	if err != nil {
		return contract.Table{}, fmt.Errorf("%s: %w", fileID, err)
	}
	return t, nil
}

// formatFor 按选项或扩展名确定格式；无法识别返回空串。
func (p *Parser) formatFor(fileID contract.FileID) string {
	if p.format != FormatAuto {
		return p.format
	}
	if fileID == "stdin" {
		return FormatCSV
	}
	switch strings.ToLower(path.Ext(string(fileID))) {
	case ".csv", ".txt":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return ""
	}
}

func (p *Parser) delimiterOr(def rune) rune {
	if p.delim != 0 {
		return p.delim
	}
	return def
}

// buildTable 以首行为表头解析语义列，逐行构造记录。
// 完全空白的行跳过；缺少 name 列为格式错误。
func buildTable(fileID contract.FileID, rows [][]string, aliases Aliases) (contract.Table, error) {
	hdr := -1
	for i, row := range rows {
		if !blank(row) {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return contract.Table{}, fmt.Errorf("%w: no header row", contract.ErrFormat)
	}
	header := normalizeHeader(rows[hdr])
	name := aliases.Resolve(contract.FieldName, header)
	if !name.Present {
		return contract.Table{}, fmt.Errorf("%w: missing name column (accepted: %s)", contract.ErrFormat, strings.Join(aliases.Name, ", "))
	}
	dept := aliases.Resolve(contract.FieldDepartment, header)

	t := contract.Table{FileID: fileID, Columns: []contract.ColumnBinding{name, dept}}
	for _, row := range rows[hdr+1:] {
		if blank(row) {
			continue
		}
		rec := contract.Record{
			Index:  len(t.Records),
			FileID: fileID,
			Name:   cell(row, name.Index),
		}
		if dept.Present {
			rec.Department = cell(row, dept.Index)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// cell 取第 i 列并去除首尾空白；越界（参差行）视为空。
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
