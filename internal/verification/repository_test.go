package verification

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/verification-engine/internal/evidence"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresRepository_CreditExists(t *testing.T) {
	repo, mock := newMockRepository(t)
	creditID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM credits WHERE id = $1)")).
		WithArgs(creditID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.CreditExists(context.Background(), creditID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetMethodNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_methods WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetMethod(context.Background(), id)
	assert.ErrorIs(t, err, ErrMethodologyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateResultDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)
	result := resultIn(StatusPending, uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_results")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateResult(context.Background(), result)
	assert.ErrorIs(t, err, ErrDuplicateVerification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateResultFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_results")).
		WillReturnError(sqlmock.ErrCancelled)

	err := repo.CreateResult(context.Background(), resultIn(StatusPending, uuid.New()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateVerification)
}

func TestPostgresRepository_GetResult(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	creditID := uuid.New()
	methodID := uuid.New()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	columns := []string{"id", "credit_id", "methodology_id", "status", "verified", "confidence_score", "quality_score",
		"quality_grade", "calculation_payload", "evidence_set_hash", "notes", "validator", "submission_notes",
		"reviewer", "review_notes", "reviewed_at", "verified_at", "expires_at", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_results WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			id.String(), creditID.String(), methodID.String(), "in_review", true, 0.9, 0.97,
			"A", []byte(`{"methodology":"VWBA v2"}`), "abc", `{"net benefit ok","grade A"}`, "validator@example.org", nil,
			nil, nil, nil, nil, nil, now, now,
		))

	result, err := repo.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, result.Status)
	assert.Equal(t, creditID, result.CreditID)
	assert.Equal(t, 0.9, *result.ConfidenceScore)
	assert.Equal(t, "A", *result.QualityGrade)
	assert.Equal(t, pq.StringArray{"net benefit ok", "grade A"}, result.Notes)
	assert.JSONEq(t, `{"methodology":"VWBA v2"}`, string(result.CalculationPayload))
	assert.Nil(t, result.ExpiresAt)
}

func TestPostgresRepository_UpdateResultGuardsStatus(t *testing.T) {
	repo, mock := newMockRepository(t)
	result := resultIn(StatusInReview, uuid.New())
	result.Status = StatusVerified

	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_results SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateResult(context.Background(), result, StatusInReview)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_results SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateResult(context.Background(), result, StatusInReview))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SetMethodActiveMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_methods SET is_active = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetMethodActive(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, ErrMethodologyNotFound)
}

func TestPostgresRepository_ListEvidenceFiles(t *testing.T) {
	repo, mock := newMockRepository(t)
	resultID := uuid.New()
	fileID := uuid.New()
	uploaded := time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)

	columns := []string{"id", "verification_result_id", "evidence_type", "file_name", "content_hash", "file_size",
		"mime_type", "capture_date", "capture_device", "capture_latitude", "capture_longitude", "metadata",
		"is_processed", "is_verified", "storage_locator", "uploaded_at", "processed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM evidence_files WHERE verification_result_id = $1 ORDER BY uploaded_at, id")).
		WithArgs(resultID.String()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			fileID.String(), resultID.String(), "gps_coordinates", "gps.json", "ab12", 42,
			"application/json", nil, "garmin", -1.29, 36.82, []byte(`{"latitude": -1.29}`),
			false, false, nil, uploaded, nil,
		))

	files, err := repo.ListEvidenceFiles(context.Background(), resultID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, evidence.TypeGPSCoordinates, files[0].EvidenceType)
	assert.Equal(t, "garmin", *files[0].CaptureDevice)
	assert.Equal(t, -1.29, *files[0].CaptureLatitude)
	lat, ok := evidence.ToFloat(files[0].Metadata["latitude"])
	require.True(t, ok)
	assert.Equal(t, -1.29, lat)
	assert.Nil(t, files[0].StorageLocator)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateEvidenceFile(t *testing.T) {
	repo, mock := newMockRepository(t)
	locator := "sha256:ab12"
	file := &evidence.File{ID: uuid.New(), IsProcessed: true, IsVerified: true, StorageLocator: &locator}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evidence_files SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateEvidenceFile(context.Background(), file))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Init(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS verification_results_active_uniq")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Init(context.Background()))

	mock.ExpectExec("CREATE TABLE").WillReturnError(sqlmock.ErrCancelled)
	assert.ErrorContains(t, repo.Init(context.Background()), "failed to apply verification schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}
