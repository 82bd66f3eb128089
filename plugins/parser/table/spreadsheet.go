package table

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"certgen/pkg/contract"
)

// readSheet 读取工作簿中的一个工作表；sheet 为空时取第一个。
func readSheet(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %w", contract.ErrFormat, err)
	}
	defer f.Close()
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", contract.ErrFormat)
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q not found", contract.ErrFormat, sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", contract.ErrFormat, sheet, err)
	}
	return rows, nil
}
