package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	content := []byte("timestamp,flow_rate,volume\n2024-01-01,12.5,1000\n2024-01-02,,1100\n\n2024-01-03,13.1\n")

	result, err := New().Parse(context.Background(), content, "flow.csv", "text/csv", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, result.Format)
	assert.Equal(t, []string{"timestamp", "flow_rate", "volume"}, result.Columns)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, "", result.Data[1]["flow_rate"])
	assert.Equal(t, "", result.Data[2]["volume"])
	assert.True(t, result.Structured())
}

func TestParseJSONArray(t *testing.T) {
	content := []byte(`{"readings": [{"date": "2024-01-01", "volume": 10}, {"date": "2024-01-02", "ph": 7.1}]}`)

	result, err := New().Parse(context.Background(), content, "readings.json", "", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, result.Format)
	assert.Equal(t, []string{"date", "ph", "volume"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "10", result.Data[0]["volume"])
	assert.Equal(t, "", result.Data[0]["ph"])
}

func TestParseXLSX(t *testing.T) {
	book := excelize.NewFile()
	require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]interface{}{"date", "volume"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]interface{}{"2024-01-01", 1500}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A3", &[]interface{}{"2024-01-02", 1600}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	result, err := New().Parse(context.Background(), buf.Bytes(), "meter.xlsx", "", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, result.Format)
	assert.Equal(t, []string{"date", "volume"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "1600", result.Data[1]["volume"])
}

func TestParseUnknownFormatDegrades(t *testing.T) {
	result, err := New().Parse(context.Background(), []byte{0x25, 0x50, 0x44, 0x46}, "report.pdf", "application/pdf", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, FormatUnknown, result.Format)
	assert.False(t, result.Structured())
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := New().Parse(context.Background(), []byte(`{"data": [`), "broken.json", "application/json", DefaultOptions())
	assert.Error(t, err)
}
