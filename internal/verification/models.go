package verification

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/internal/verification/methodology"
)

// =====================================================
// Enums and Constants
// =====================================================

// Status is the lifecycle status of a verification result
type Status string

const (
	StatusPending   Status = "pending"
	StatusInReview  Status = "in_review"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusRevoked   Status = "revoked"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses block another submission for the same credit and methodology.
// Must match the partial unique index in migrations.
var ActiveStatuses = []Status{StatusPending, StatusInReview, StatusVerified}

// IsOpen reports whether the result is still awaiting a decision
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInReview
}

// lifecycle is the transition table of a verification result
var lifecycle = map[string][]string{
	string(StatusPending):  {string(StatusInReview), string(StatusCancelled)},
	string(StatusInReview): {string(StatusVerified), string(StatusRejected), string(StatusCancelled)},
	string(StatusVerified): {string(StatusExpired), string(StatusRevoked)},
}

// =====================================================
// Core Entities
// =====================================================

// VerificationMethod is a registered accounting methodology
type VerificationMethod struct {
	ID                    uuid.UUID      `json:"id" db:"id"`
	Name                  string         `json:"name" db:"name"`
	Type                  string         `json:"methodology_type" db:"methodology_type"`
	Version               string         `json:"version" db:"version"`
	Description           *string        `json:"description,omitempty" db:"description"`
	RequiredEvidenceTypes pq.StringArray `json:"required_evidence_types" db:"required_evidence_types"`
	MinimumConfidence     float64        `json:"minimum_confidence" db:"minimum_confidence"`
	IsActive              bool           `json:"is_active" db:"is_active"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// VerificationResult is one verification attempt for one credit under one methodology
type VerificationResult struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	CreditID           uuid.UUID      `json:"credit_id" db:"credit_id"`
	MethodologyID      uuid.UUID      `json:"methodology_id" db:"methodology_id"`
	Status             Status         `json:"status" db:"status"`
	Verified           bool           `json:"verified" db:"verified"`
	ConfidenceScore    *float64       `json:"confidence_score,omitempty" db:"confidence_score"`
	QualityScore       *float64       `json:"quality_score,omitempty" db:"quality_score"`
	QualityGrade       *string        `json:"quality_grade,omitempty" db:"quality_grade"`
	CalculationPayload datatypes.JSON `json:"calculation_payload,omitempty" db:"calculation_payload"`
	EvidenceSetHash    *string        `json:"evidence_set_hash,omitempty" db:"evidence_set_hash"`
	Notes              pq.StringArray `json:"notes" db:"notes"`
	Validator          string         `json:"validator" db:"validator"`
	SubmissionNotes    *string        `json:"submission_notes,omitempty" db:"submission_notes"`
	Reviewer           *string        `json:"reviewer,omitempty" db:"reviewer"`
	ReviewNotes        *string        `json:"review_notes,omitempty" db:"review_notes"`
	ReviewedAt         *time.Time     `json:"reviewed_at,omitempty" db:"reviewed_at"`
	VerifiedAt         *time.Time     `json:"verified_at,omitempty" db:"verified_at"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// =====================================================
// Request/Response DTOs
// =====================================================

// SubmitRequest is a verification submission
type SubmitRequest struct {
	CreditID      uuid.UUID `json:"credit_id" binding:"required"`
	MethodologyID uuid.UUID `json:"methodology_id" binding:"required"`
	Validator     string    `json:"validator" binding:"required"`
	Notes         *string   `json:"notes,omitempty"`
}

// RegisterMethodologyRequest registers a new methodology
type RegisterMethodologyRequest struct {
	Name                  string   `json:"name" binding:"required"`
	Type                  string   `json:"methodology_type" binding:"required"`
	Version               string   `json:"version" binding:"required"`
	Description           *string  `json:"description,omitempty"`
	RequiredEvidenceTypes []string `json:"required_evidence_types,omitempty"`
	MinimumConfidence     *float64 `json:"minimum_confidence,omitempty"`
	Active                *bool    `json:"active,omitempty"`
}

// SetActiveRequest toggles a methodology
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AttachEvidenceRequest records the declared properties of an uploaded evidence file
type AttachEvidenceRequest struct {
	EvidenceType     evidence.EvidenceType  `json:"evidence_type" binding:"required"`
	FileName         string                 `json:"file_name" binding:"required"`
	ContentHash      string                 `json:"content_hash" binding:"required"`
	FileSize         int64                  `json:"file_size"`
	MimeType         string                 `json:"mime_type"`
	CaptureDate      *time.Time             `json:"capture_date,omitempty"`
	CaptureDevice    *string                `json:"capture_device,omitempty"`
	CaptureLatitude  *float64               `json:"capture_latitude,omitempty"`
	CaptureLongitude *float64               `json:"capture_longitude,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	StorageLocator   *string                `json:"storage_locator,omitempty"`
}

// ProcessEvidenceRequest optionally carries base64 file contents keyed by evidence ID
type ProcessEvidenceRequest struct {
	Contents map[string]string `json:"contents,omitempty"`
}

// ReviewRequest is a reviewer action on a verification result
type ReviewRequest struct {
	Reviewer string  `json:"reviewer" binding:"required"`
	Notes    *string `json:"notes,omitempty"`
}

// StatusResponse groups a credit's verification results
type StatusResponse struct {
	CreditID uuid.UUID            `json:"credit_id"`
	Resolved []VerificationResult `json:"resolved"`
	Pending  []VerificationResult `json:"pending"`
}

// RunResult is the merged outcome of a verification run
type RunResult struct {
	Result     *VerificationResult        `json:"result"`
	Outcome    *methodology.Outcome       `json:"outcome"`
	Processing *evidence.ProcessingResult `json:"processing"`
}
