package verification

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/verification-engine/internal/evidence"
)

// ExportFormat is the file format of an audit export
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat parses a format name; empty selects CSV
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(name))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", fmt.Errorf("%w: unsupported export format %q", ErrInvalidRequest, name)
}

// ContentType returns the MIME type of the format
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

const (
	summarySheet  = "Summary"
	evidenceSheet = "Evidence"
	timeLayout    = time.RFC3339
)

var auditEvidenceColumns = []string{
	"evidence_id", "evidence_type", "file_name", "content_hash", "file_size",
	"is_processed", "is_verified", "storage_locator", "uploaded_at", "processed_at",
}

// auditReport is the tabular form of a verification and its evidence
type auditReport struct {
	summary  [][2]string
	evidence [][]string
}

// ExportVerification writes an audit report of a verification and its evidence
func (s *Service) ExportVerification(ctx context.Context, id uuid.UUID, format ExportFormat, w io.Writer) error {
	result, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return err
	}
	method, err := s.repo.GetMethod(ctx, result.MethodologyID)
	if err != nil {
		return err
	}
	files, err := s.repo.ListEvidenceFiles(ctx, id)
	if err != nil {
		return err
	}

	report := buildAuditReport(result, method, files)
	switch format {
	case ExportCSV:
		return writeAuditCSV(w, report)
	case ExportXLSX:
		return writeAuditXLSX(w, report)
	default:
		return fmt.Errorf("%w: unsupported export format %q", ErrInvalidRequest, format)
	}
}

func buildAuditReport(r *VerificationResult, method *VerificationMethod, files []evidence.File) *auditReport {
	report := &auditReport{
		summary: [][2]string{
			{"verification_id", r.ID.String()},
			{"credit_id", r.CreditID.String()},
			{"methodology", method.Name + " " + method.Version},
			{"status", string(r.Status)},
			{"verified", strconv.FormatBool(r.Verified)},
			{"confidence_score", formatFloat(r.ConfidenceScore)},
			{"quality_score", formatFloat(r.QualityScore)},
			{"quality_grade", deref(r.QualityGrade)},
			{"evidence_set_hash", deref(r.EvidenceSetHash)},
			{"validator", r.Validator},
			{"reviewer", deref(r.Reviewer)},
			{"verified_at", formatTime(r.VerifiedAt)},
			{"expires_at", formatTime(r.ExpiresAt)},
			{"notes", strings.Join(r.Notes, "; ")},
		},
	}

	for _, f := range files {
		report.evidence = append(report.evidence, []string{
			f.ID.String(),
			string(f.EvidenceType),
			f.FileName,
			f.ContentHash,
			strconv.FormatInt(f.FileSize, 10),
			strconv.FormatBool(f.IsProcessed),
			strconv.FormatBool(f.IsVerified),
			deref(f.StorageLocator),
			f.UploadedAt.UTC().Format(timeLayout),
			formatTime(f.ProcessedAt),
		})
	}
	return report
}

// writeAuditCSV writes the summary as key/value rows, a blank row, then the evidence table
func writeAuditCSV(w io.Writer, report *auditReport) error {
	writer := csv.NewWriter(w)
	for _, kv := range report.summary {
		if err := writer.Write(kv[:]); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	if err := writer.Write([]string{}); err != nil {
		return err
	}
	if err := writer.Write(auditEvidenceColumns); err != nil {
		return fmt.Errorf("failed to write evidence header: %w", err)
	}
	if err := writer.WriteAll(report.evidence); err != nil {
		return fmt.Errorf("failed to write evidence rows: %w", err)
	}
	return writer.Error()
}

func writeAuditXLSX(w io.Writer, report *auditReport) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if _, err := file.NewSheet(evidenceSheet); err != nil {
		return fmt.Errorf("failed to create evidence sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, kv := range report.summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := file.SetSheetRow(summarySheet, cell, &[]interface{}{kv[0], kv[1]}); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	if err := file.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(report.summary)), headerStyle); err != nil {
		return err
	}
	if err := file.SetColWidth(summarySheet, "A", "A", 20); err != nil {
		return err
	}
	if err := file.SetColWidth(summarySheet, "B", "B", 70); err != nil {
		return err
	}

	header := make([]interface{}, len(auditEvidenceColumns))
	for i, col := range auditEvidenceColumns {
		header[i] = col
	}
	if err := file.SetSheetRow(evidenceSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write evidence header: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(auditEvidenceColumns), 1)
	if err := file.SetCellStyle(evidenceSheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}
	if err := file.SetPanes(evidenceSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for i, row := range report.evidence {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := file.SetSheetRow(evidenceSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write evidence row: %w", err)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
