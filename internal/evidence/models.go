package evidence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EvidenceType classifies the evidentiary role of one uploaded file
type EvidenceType string

const (
	TypeWaterMeasurementData EvidenceType = "water_measurement_data"
	TypeBaselineAssessment   EvidenceType = "baseline_assessment"
	TypeSiteVerification     EvidenceType = "site_verification"
	TypeGPSCoordinates       EvidenceType = "gps_coordinates"
	TypeMethodologyDocument  EvidenceType = "methodology_documentation"
	TypeSensorData           EvidenceType = "sensor_data"
	TypeFieldReport          EvidenceType = "field_report"
)

// AllTypes lists the fixed evidence vocabulary
var AllTypes = []EvidenceType{
	TypeWaterMeasurementData,
	TypeBaselineAssessment,
	TypeSiteVerification,
	TypeGPSCoordinates,
	TypeMethodologyDocument,
	TypeSensorData,
	TypeFieldReport,
}

// IsValid reports whether t belongs to the fixed vocabulary
func (t EvidenceType) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// File is one piece of supporting evidence attached to a verification result
type File struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	VerificationResultID uuid.UUID         `json:"verification_result_id" db:"verification_result_id"`
	EvidenceType         EvidenceType      `json:"evidence_type" db:"evidence_type"`
	FileName             string            `json:"file_name" db:"file_name"`
	ContentHash          string            `json:"content_hash" db:"content_hash"`
	FileSize             int64             `json:"file_size" db:"file_size"`
	MimeType             string            `json:"mime_type" db:"mime_type"`
	CaptureDate          *time.Time        `json:"capture_date,omitempty" db:"capture_date"`
	CaptureDevice        *string           `json:"capture_device,omitempty" db:"capture_device"`
	CaptureLatitude      *float64          `json:"capture_latitude,omitempty" db:"capture_latitude"`
	CaptureLongitude     *float64          `json:"capture_longitude,omitempty" db:"capture_longitude"`
	Metadata             datatypes.JSONMap `json:"metadata" db:"metadata"`
	IsProcessed          bool              `json:"is_processed" db:"is_processed"`
	IsVerified           bool              `json:"is_verified" db:"is_verified"`
	StorageLocator       *string           `json:"storage_locator,omitempty" db:"storage_locator"`
	UploadedAt           time.Time         `json:"uploaded_at" db:"uploaded_at"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
}

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is one finding of a rule
type ValidationIssue struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
	Rule       string    `json:"rule"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Field      string    `json:"field,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// ValidationResult is the transient outcome of one rule against one file
type ValidationResult struct {
	EvidenceID uuid.UUID              `json:"evidence_id"`
	Rule       string                 `json:"rule"`
	Valid      bool                   `json:"valid"`
	Score      float64                `json:"score"`
	Issues     []ValidationIssue      `json:"issues"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Grade is the letter summary of an evidence set
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// FileResult summarises processing of a single file
type FileResult struct {
	EvidenceID     uuid.UUID          `json:"evidence_id"`
	EvidenceType   EvidenceType       `json:"evidence_type"`
	Verified       bool               `json:"verified"`
	Archived       bool               `json:"archived"`
	StructuredData bool               `json:"structured_data"`
	Results        []ValidationResult `json:"results"`
}

// ProcessingResult is returned by Pipeline.ProcessEvidence
type ProcessingResult struct {
	VerificationResultID uuid.UUID          `json:"verification_result_id"`
	Processed            bool               `json:"processed"`
	ValidationResults    []ValidationResult `json:"validation_results"`
	FileResults          []FileResult       `json:"file_results"`
	OverallScore         float64            `json:"overall_score"`
	QualityGrade         Grade              `json:"quality_grade"`
	Issues               []ValidationIssue  `json:"issues"`
	ProcessingTimeMs     int64              `json:"processing_time_ms"`
}

// CountIssues returns the number of error and warning issues
func CountIssues(issues []ValidationIssue) (errs, warnings int) {
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}
