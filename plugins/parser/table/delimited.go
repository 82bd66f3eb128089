package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"certgen/pkg/contract"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// lookupEncoding 按 WHATWG 名称查找编码。
func lookupEncoding(name string) (encoding.Encoding, error) {
	e, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return e, nil
}

// decodeText 将原始字节解码为 UTF-8。
// auto：UTF-16 BOM 按 BOM 解码；否则要求合法 UTF-8（可带 BOM）。
func decodeText(raw []byte, enc string) ([]byte, error) {
	if enc == "" || strings.EqualFold(enc, "auto") {
		if bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE) {
			out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
			if err != nil {
				return nil, fmt.Errorf("%w: decode utf-16: %w", contract.ErrFormat, err)
			}
			return out, nil
		}
		raw = bytes.TrimPrefix(raw, bomUTF8)
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: input is not valid UTF-8 (set the encoding option)", contract.ErrFormat)
		}
		return raw, nil
	}
	e, err := lookupEncoding(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrFormat, err)
	}
	out, _, err := transform.Bytes(e.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", contract.ErrFormat, enc, err)
	}
	return bytes.TrimPrefix(out, bomUTF8), nil
}

// readDelimited 解码后按分隔符读取全部行；行宽可不一致。
func readDelimited(r io.Reader, delim rune, enc string) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(raw, enc)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrFormat, err)
	}
	return rows, nil
}
