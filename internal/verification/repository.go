package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"carbon-scribe/verification-engine/internal/evidence"
)

// Repository defines the persistence the verification service needs
type Repository interface {
	evidence.Repository

	CreditExists(ctx context.Context, creditID uuid.UUID) (bool, error)

	CreateMethod(ctx context.Context, method *VerificationMethod) error
	GetMethod(ctx context.Context, id uuid.UUID) (*VerificationMethod, error)
	ListMethods(ctx context.Context) ([]VerificationMethod, error)
	SetMethodActive(ctx context.Context, id uuid.UUID, active bool) error

	CreateResult(ctx context.Context, result *VerificationResult) error
	GetResult(ctx context.Context, id uuid.UUID) (*VerificationResult, error)
	ListResultsByCredit(ctx context.Context, creditID uuid.UUID) ([]VerificationResult, error)
	UpdateResult(ctx context.Context, result *VerificationResult, from Status) error
	ListExpiring(ctx context.Context, now time.Time) ([]VerificationResult, error)

	CreateEvidenceFile(ctx context.Context, file *evidence.File) error
}

// PostgresRepository implements Repository on PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// =====================================================
// Credits
// =====================================================

func (r *PostgresRepository) CreditExists(ctx context.Context, creditID uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM credits WHERE id = $1)", creditID); err != nil {
		return false, fmt.Errorf("failed to check credit: %w", err)
	}
	return exists, nil
}

// =====================================================
// Verification Methods
// =====================================================

const methodColumns = `id, name, methodology_type, version, description, required_evidence_types,
	minimum_confidence, is_active, created_at, updated_at`

func (r *PostgresRepository) CreateMethod(ctx context.Context, method *VerificationMethod) error {
	query := `
		INSERT INTO verification_methods (
			id, name, methodology_type, version, description, required_evidence_types,
			minimum_confidence, is_active, created_at, updated_at
		) VALUES (
			:id, :name, :methodology_type, :version, :description, :required_evidence_types,
			:minimum_confidence, :is_active, :created_at, :updated_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, method); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s is already registered", ErrInvalidMethodology, method.Name, method.Version)
		}
		return fmt.Errorf("failed to create verification method: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMethod(ctx context.Context, id uuid.UUID) (*VerificationMethod, error) {
	var method VerificationMethod
	err := r.db.GetContext(ctx, &method, "SELECT "+methodColumns+" FROM verification_methods WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMethodologyNotFound
		}
		return nil, fmt.Errorf("failed to get verification method: %w", err)
	}
	return &method, nil
}

func (r *PostgresRepository) ListMethods(ctx context.Context) ([]VerificationMethod, error) {
	methods := []VerificationMethod{}
	err := r.db.SelectContext(ctx, &methods, "SELECT "+methodColumns+" FROM verification_methods ORDER BY name, version")
	if err != nil {
		return nil, fmt.Errorf("failed to list verification methods: %w", err)
	}
	return methods, nil
}

func (r *PostgresRepository) SetMethodActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE verification_methods SET is_active = $1, updated_at = $2 WHERE id = $3",
		active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update verification method: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMethodologyNotFound
	}
	return nil
}

// =====================================================
// Verification Results
// =====================================================

const resultColumns = `id, credit_id, methodology_id, status, verified, confidence_score, quality_score,
	quality_grade, calculation_payload, evidence_set_hash, notes, validator, submission_notes,
	reviewer, review_notes, reviewed_at, verified_at, expires_at, created_at, updated_at`

// CreateResult inserts a new result. The partial unique index on
// (credit_id, methodology_id) makes this the atomic duplicate check.
func (r *PostgresRepository) CreateResult(ctx context.Context, result *VerificationResult) error {
	query := `
		INSERT INTO verification_results (
			id, credit_id, methodology_id, status, verified, notes, validator,
			submission_notes, created_at, updated_at
		) VALUES (
			:id, :credit_id, :methodology_id, :status, :verified, :notes, :validator,
			:submission_notes, :created_at, :updated_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVerification
		}
		return fmt.Errorf("failed to create verification result: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetResult(ctx context.Context, id uuid.UUID) (*VerificationResult, error) {
	var result VerificationResult
	err := r.db.GetContext(ctx, &result, "SELECT "+resultColumns+" FROM verification_results WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("failed to get verification result: %w", err)
	}
	return &result, nil
}

func (r *PostgresRepository) ListResultsByCredit(ctx context.Context, creditID uuid.UUID) ([]VerificationResult, error) {
	results := []VerificationResult{}
	err := r.db.SelectContext(ctx, &results,
		"SELECT "+resultColumns+" FROM verification_results WHERE credit_id = $1 ORDER BY created_at", creditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification results: %w", err)
	}
	return results, nil
}

// UpdateResult writes result only if its stored status is still from, so
// concurrent transitions cannot both succeed.
func (r *PostgresRepository) UpdateResult(ctx context.Context, result *VerificationResult, from Status) error {
	query := `
		UPDATE verification_results SET
			status = $1, verified = $2, confidence_score = $3, quality_score = $4, quality_grade = $5,
			calculation_payload = $6, evidence_set_hash = $7, notes = $8, reviewer = $9,
			review_notes = $10, reviewed_at = $11, verified_at = $12, expires_at = $13, updated_at = $14
		WHERE id = $15 AND status = $16`

	res, err := r.db.ExecContext(ctx, query,
		result.Status, result.Verified, result.ConfidenceScore, result.QualityScore, result.QualityGrade,
		result.CalculationPayload, result.EvidenceSetHash, result.Notes, result.Reviewer,
		result.ReviewNotes, result.ReviewedAt, result.VerifiedAt, result.ExpiresAt, result.UpdatedAt,
		result.ID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update verification result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: verification %s is no longer %s", ErrInvalidTransition, result.ID, from)
	}
	return nil
}

func (r *PostgresRepository) ListExpiring(ctx context.Context, now time.Time) ([]VerificationResult, error) {
	results := []VerificationResult{}
	err := r.db.SelectContext(ctx, &results,
		"SELECT "+resultColumns+" FROM verification_results WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at",
		StatusVerified, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring verification results: %w", err)
	}
	return results, nil
}

// =====================================================
// Evidence Files
// =====================================================

const evidenceColumns = `id, verification_result_id, evidence_type, file_name, content_hash, file_size,
	mime_type, capture_date, capture_device, capture_latitude, capture_longitude, metadata,
	is_processed, is_verified, storage_locator, uploaded_at, processed_at`

func (r *PostgresRepository) CreateEvidenceFile(ctx context.Context, file *evidence.File) error {
	query := `
		INSERT INTO evidence_files (
			id, verification_result_id, evidence_type, file_name, content_hash, file_size,
			mime_type, capture_date, capture_device, capture_latitude, capture_longitude, metadata,
			is_processed, is_verified, storage_locator, uploaded_at
		) VALUES (
			:id, :verification_result_id, :evidence_type, :file_name, :content_hash, :file_size,
			:mime_type, :capture_date, :capture_device, :capture_latitude, :capture_longitude, :metadata,
			:is_processed, :is_verified, :storage_locator, :uploaded_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("failed to create evidence file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListEvidenceFiles(ctx context.Context, verificationResultID uuid.UUID) ([]evidence.File, error) {
	files := []evidence.File{}
	err := r.db.SelectContext(ctx, &files,
		"SELECT "+evidenceColumns+" FROM evidence_files WHERE verification_result_id = $1 ORDER BY uploaded_at, id",
		verificationResultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}
	return files, nil
}

func (r *PostgresRepository) UpdateEvidenceFile(ctx context.Context, file *evidence.File) error {
	query := `
		UPDATE evidence_files SET
			metadata = :metadata,
			is_processed = :is_processed,
			is_verified = :is_verified,
			storage_locator = :storage_locator,
			processed_at = :processed_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("failed to update evidence file: %w", err)
	}
	return nil
}
