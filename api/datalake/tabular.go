package datalake

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// maxXLSRows bounds legacy xls reads; vendor exports top out well below this.
const maxXLSRows = 100000

// ParseFile reads a report into rows keyed by normalized header. CSV, XLSX
// and legacy XLS are supported; anything else is rejected up front.
func ParseFile(path string, src SourceType) ([]string, []map[string]string, error) {
	var grid [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		grid, err = readCSV(path)
	case ".xlsx":
		grid, err = readXLSX(path, src)
	case ".xls":
		grid, err = readXLS(path, src)
	default:
		return nil, nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, nil, err
	}

	// First non-empty row is the header
	headerIdx := -1
	for i, row := range grid {
		if !rowEmpty(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil, ErrEmptyFile
	}

	headers := make([]string, len(grid[headerIdx]))
	for i, h := range grid[headerIdx] {
		headers[i] = NormalizeHeader(h)
	}

	rows := make([]map[string]string, 0, len(grid)-headerIdx-1)
	for _, raw := range grid[headerIdx+1:] {
		if rowEmpty(raw) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(raw) {
				row[h] = strings.TrimSpace(raw[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}
	return headers, rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read failed: %w", err)
		}
		grid = append(grid, record)
	}
	return grid, nil
}

func readXLSX(path string, src SourceType) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx open failed: %w", err)
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList(), src)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx read failed: %w", err)
	}
	return dropBanner(rows, src), nil
}

// pickSheet prefers the sheet named after the report type. PI workbooks
// carry both Sales and Payments tabs in one file.
func pickSheet(sheets []string, src SourceType) string {
	if len(sheets) == 0 {
		return ""
	}
	var want string
	switch src {
	case SourcePISales:
		want = "sales"
	case SourcePIPayments:
		want = "payments"
	default:
		return sheets[0]
	}
	for _, s := range sheets {
		if strings.Contains(strings.ToLower(s), want) {
			return s
		}
	}
	return sheets[0]
}

func readXLS(path string, src SourceType) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("xls open failed: %w", err)
	}
	grid := wb.ReadAllCells(maxXLSRows)
	if len(grid) == 0 {
		return nil, ErrEmptyFile
	}
	return dropBanner(grid, src), nil
}

// dropBanner discards the title row PI workbooks place above the header.
// Only the Excel exports carry it; PI CSV exports are headers-first.
func dropBanner(grid [][]string, src SourceType) [][]string {
	switch src {
	case SourcePISales, SourcePIPayments:
		if len(grid) > 1 {
			return grid[1:]
		}
		return nil
	}
	return grid
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// NormalizeHeader maps a vendor column caption to a staging column name:
// lowercased, slashes dropped, other separators collapsed to underscores.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "/", "")
	var b strings.Builder
	lastUnderscore := true
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"2006-01-02 15:04",
	time.RFC3339,
}

// ParseDate handles the date shapes seen across vendor exports, including
// raw Excel serial numbers that excelize surfaces for unformatted cells.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, ok := ParseTimestamp(s); ok {
		return t.Truncate(24 * time.Hour), true
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 59 && serial < 200000 {
		return ExcelSerialDate(serial), true
	}
	return time.Time{}, false
}

// ParseTimestamp parses date-plus-time strings, falling back to date-only.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 59 && serial < 200000 {
		return ExcelSerialDate(serial), true
	}
	return time.Time{}, false
}

// ExcelSerialDate converts an Excel serial day count to a UTC time. The
// 1899-12-30 epoch absorbs Excel's phantom 1900-02-29.
func ExcelSerialDate(serial float64) time.Time {
	base := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	days := int(serial)
	frac := serial - float64(days)
	secs := int(math.Round(frac * 86400))
	return base.AddDate(0, 0, days).Add(time.Duration(secs) * time.Second)
}

// ParseNullableInt turns spreadsheet integer cells into an insertable value.
// Empty, NaN and null markers become SQL NULL; floats like "12.0" are
// accepted because spreadsheet tools widen integer columns.
func ParseNullableInt(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "n/a", "-":
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// ParseAmount parses money cells. Currency symbols and thousands separators
// are stripped; accounting-style parentheses mean negative.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "n/a", "-":
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
