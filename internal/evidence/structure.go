package evidence

import (
	"fmt"
	"strings"

	"carbon-scribe/verification-engine/internal/evidence/parser"
)

const RuleStructure = "structure"

const minimumRows = 10

var (
	timeColumns  = []string{"timestamp", "date", "time", "datetime"}
	valueColumns = []string{"volume", "flow", "flow_rate", "reading", "value"}
)

// dataFileTypes are parsed into tabular form before validation
var dataFileTypes = map[EvidenceType]bool{
	TypeWaterMeasurementData: true,
	TypeSensorData:           true,
	TypeBaselineAssessment:   true,
}

// IsDataFile reports whether evidence of type t carries tabular content
func IsDataFile(t EvidenceType) bool {
	return dataFileTypes[t]
}

// CheckStructure scores parsed tabular content. Each problem costs a fixed
// decrement; the score never drops below zero.
func CheckStructure(f *File, parsed *parser.Result) ValidationResult {
	c := newCheck()
	c.set("format", string(parsed.Format))
	c.set("row_count", parsed.RowCount)

	if parsed.RowCount == 0 {
		c.fail(1.0, "data", "file contains no data rows", "upload a file with measurements")
		return stamp(c.result(), RuleStructure, f)
	}

	if parsed.RowCount < minimumRows {
		c.warn(0.2, "data", fmt.Sprintf("only %d data rows, expected at least %d", parsed.RowCount, minimumRows), "")
	}

	if f.EvidenceType == TypeWaterMeasurementData || f.EvidenceType == TypeSensorData {
		if !hasColumn(parsed.Columns, timeColumns) {
			c.warn(0.15, "columns", "no timestamp column found", "add a timestamp or date column")
		}
		if !hasColumn(parsed.Columns, valueColumns) {
			c.warn(0.15, "columns", "no measurement value column found", "add a volume, flow or reading column")
		}
	}

	numeric := numericColumns(parsed)
	c.set("numeric_columns", numeric)
	if len(numeric) == 0 {
		c.warn(0.3, "columns", "no numeric column found", "")
	}

	if empty := emptyCells(parsed); empty > 0 {
		c.info(0.1, "data", fmt.Sprintf("%d empty cells", empty), "fill gaps or mark them explicitly")
	}

	return stamp(c.result(), RuleStructure, f)
}

func stamp(res ValidationResult, rule string, f *File) ValidationResult {
	res.Rule = rule
	res.EvidenceID = f.ID
	for i := range res.Issues {
		res.Issues[i].Rule = rule
		res.Issues[i].EvidenceID = f.ID
	}
	return res
}

func hasColumn(columns []string, candidates []string) bool {
	for _, col := range columns {
		name := strings.ToLower(strings.TrimSpace(col))
		for _, candidate := range candidates {
			if name == candidate || strings.HasPrefix(name, candidate+"_") {
				return true
			}
		}
	}
	return false
}

// numericColumns lists columns whose non-empty cells all parse as numbers
func numericColumns(parsed *parser.Result) []string {
	var numeric []string
	for _, col := range parsed.Columns {
		seen := false
		allNumeric := true
		for _, row := range parsed.Data {
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			seen = true
			if _, ok := ToFloat(cell); !ok {
				allNumeric = false
				break
			}
		}
		if seen && allNumeric {
			numeric = append(numeric, col)
		}
	}
	return numeric
}

func emptyCells(parsed *parser.Result) int {
	count := 0
	for _, row := range parsed.Data {
		for _, col := range parsed.Columns {
			if strings.TrimSpace(row[col]) == "" {
				count++
			}
		}
	}
	return count
}
