package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies how a file was parsed
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

// Options configures parsing behavior
type Options struct {
	Delimiter rune   `json:"delimiter"`
	SheetName string `json:"sheet_name"`
	MaxRows   int    `json:"max_rows"` // 0 means no limit
}

// DefaultOptions returns default parse options
func DefaultOptions() Options {
	return Options{
		Delimiter: ',',
		MaxRows:   100000,
	}
}

// Result is the tabular form of a parsed file
type Result struct {
	Format   Format              `json:"format"`
	RowCount int                 `json:"row_count"`
	Columns  []string            `json:"columns"`
	Data     []map[string]string `json:"data"`
}

// Structured reports whether the file yielded tabular data
func (r *Result) Structured() bool {
	return r != nil && r.Format != FormatUnknown
}

// Parser turns raw evidence bytes into records. Unknown formats yield a
// FormatUnknown result rather than an error.
type Parser interface {
	Parse(ctx context.Context, content []byte, filename, mimeType string, opts Options) (*Result, error)
}

// FileParser parses CSV, XLSX and JSON evidence files
type FileParser struct{}

// New creates a new file parser
func New() *FileParser {
	return &FileParser{}
}

// DetectFormat picks a format from MIME type, falling back to the file extension
func DetectFormat(filename, mimeType string) Format {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch mime {
	case "text/csv", "application/csv", "text/tab-separated-values":
		return FormatCSV
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX
	case "application/json":
		return FormatJSON
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	}
	return FormatUnknown
}

func (p *FileParser) Parse(ctx context.Context, content []byte, filename, mimeType string, opts Options) (*Result, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
		if strings.EqualFold(filepath.Ext(filename), ".tsv") {
			opts.Delimiter = '\t'
		}
	}

	switch DetectFormat(filename, mimeType) {
	case FormatCSV:
		return parseCSV(content, opts)
	case FormatXLSX:
		return parseXLSX(content, opts)
	case FormatJSON:
		return parseJSON(content, opts)
	default:
		return &Result{Format: FormatUnknown}, nil
	}
}

func parseCSV(content []byte, opts Options) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		records = append(records, record)
		if opts.MaxRows > 0 && len(records) > opts.MaxRows {
			break
		}
	}

	return fromRecords(FormatCSV, records), nil
}

func parseXLSX(content []byte, opts Options) (*Result, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	sheet := opts.SheetName
	if sheet == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return &Result{Format: FormatXLSX}, nil
		}
		sheet = sheets[0]
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if opts.MaxRows > 0 && len(rows) > opts.MaxRows+1 {
		rows = rows[:opts.MaxRows+1]
	}

	return fromRecords(FormatXLSX, rows), nil
}

// fromRecords treats the first record as the header row
func fromRecords(format Format, records [][]string) *Result {
	result := &Result{Format: format, Data: []map[string]string{}}
	if len(records) == 0 {
		return result
	}

	for _, col := range records[0] {
		result.Columns = append(result.Columns, strings.TrimSpace(col))
	}

	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		row := make(map[string]string, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		result.Data = append(result.Data, row)
	}
	result.RowCount = len(result.Data)
	return result
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseJSON(content []byte, opts Options) (*Result, error) {
	var raw interface{}
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for _, key := range []string{"data", "readings", "rows", "records"} {
			if arr, ok := v[key].([]interface{}); ok {
				items = arr
				break
			}
		}
		if items == nil {
			items = []interface{}{v}
		}
	default:
		return nil, fmt.Errorf("unsupported JSON document: expected array or object")
	}

	if opts.MaxRows > 0 && len(items) > opts.MaxRows {
		items = items[:opts.MaxRows]
	}

	result := &Result{Format: FormatJSON, Data: make([]map[string]string, 0, len(items))}
	columnSet := make(map[string]bool)
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			columnSet[k] = true
			if v == nil {
				row[k] = ""
				continue
			}
			row[k] = fmt.Sprint(v)
		}
		result.Data = append(result.Data, row)
	}

	for col := range columnSet {
		result.Columns = append(result.Columns, col)
	}
	sort.Strings(result.Columns)

	// rows missing a column get an explicit empty cell
	for _, row := range result.Data {
		for _, col := range result.Columns {
			if _, ok := row[col]; !ok {
				row[col] = ""
			}
		}
	}
	result.RowCount = len(result.Data)
	return result, nil
}
