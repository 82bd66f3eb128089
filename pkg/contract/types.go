package contract

import "image"

// FileID: 输入表格的逻辑标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// BatchID: 批次标识（32 位小写十六进制）。
type BatchID string

// Record: 单行输入记录（不可跨文件）。
// 约束：
// - Index 自 0 严格递增（按源顺序，跳过的空白行不占号）；
// - Name/Department 已去除首尾空白；Department 可为空。
type Record struct {
	Index      int    `json:"index"`
	FileID     FileID `json:"-"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// Field: 语义字段名。
type Field string

const (
	FieldName       Field = "name"
	FieldDepartment Field = "department"
)

// ColumnBinding: 语义字段到表头列的解析结果。
// Present=false 表示该列不存在，字段取默认空值。
type ColumnBinding struct {
	Field   Field  `json:"field"`
	Header  string `json:"header,omitempty"`
	Index   int    `json:"index"`
	Present bool   `json:"present"`
}

// Table: 单个输入表格解析后的有序记录集合。
type Table struct {
	FileID  FileID
	Records []Record
	Columns []ColumnBinding
}

// Binding 返回指定字段的列绑定；未解析时返回 Present=false、Index=-1。
func (t Table) Binding(f Field) ColumnBinding {
	for _, c := range t.Columns {
		if c.Field == f {
			return c
		}
	}
	return ColumnBinding{Field: f, Index: -1}
}

// Template: 只读模板画布。批次运行期间共享，不得修改。
type Template struct {
	Path  string
	Image image.Image
}

// Size 返回画布像素宽高。
func (t Template) Size() (int, int) {
	if t.Image == nil {
		return 0, 0
	}
	b := t.Image.Bounds()
	return b.Dx(), b.Dy()
}

// LayoutResult: 单个文字块的排版结果（不持久化）。
// X/Y 为墨迹框左上角；Width/Height 为墨迹框尺寸。
type LayoutResult struct {
	Text      string `json:"text"`
	FontScale int    `json:"font_scale"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	// Floor: 已缩到最小字号仍超出边距。
	Floor bool `json:"floor,omitempty"`
	// Fallback: 使用了固定尺寸的内置字体，未做缩放。
	Fallback bool `json:"fallback,omitempty"`
}

// WarningKind: 降级但成功的情形分类。
type WarningKind string

const (
	WarnFontFallback  WarningKind = "font_fallback"
	WarnFloorOverflow WarningKind = "floor_overflow"
	WarnNameCollision WarningKind = "name_collision"
	WarnEmptyName     WarningKind = "empty_name"
)

// Warning: 报告而非抛出的降级情形。
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Record int         `json:"record"`
	File   string      `json:"file,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Certificate: 单条记录渲染成功后的产物。
type Certificate struct {
	Record       Record `json:"record"`
	File         string `json:"file"`
	ArtifactPath string `json:"artifact_path"`
}

// Composition: 合并文档的结果。
type Composition struct {
	Path  string
	Pages int
}

// Batch: 一次编排运行的结果。
// 不变量：Certificates 按 File 字典序升序；MergedPath 为空表示没有合并文档。
type Batch struct {
	ID           BatchID         `json:"id"`
	Source       FileID          `json:"source"`
	OutputDir    string          `json:"output_dir"`
	Certificates []Certificate   `json:"certificates"`
	MergedPath   string          `json:"merged_path,omitempty"`
	Pages        int             `json:"pages"`
	Warnings     []Warning       `json:"warnings,omitempty"`
	Columns      []ColumnBinding `json:"columns,omitempty"`
}
