package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"carbon-scribe/verification-engine/internal/evidence"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreditExists(ctx context.Context, creditID uuid.UUID) (bool, error) {
	args := m.Called(ctx, creditID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateMethod(ctx context.Context, method *VerificationMethod) error {
	args := m.Called(ctx, method)
	return args.Error(0)
}

func (m *MockRepository) GetMethod(ctx context.Context, id uuid.UUID) (*VerificationMethod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerificationMethod), args.Error(1)
}

func (m *MockRepository) ListMethods(ctx context.Context) ([]VerificationMethod, error) {
	args := m.Called(ctx)
	return args.Get(0).([]VerificationMethod), args.Error(1)
}

func (m *MockRepository) SetMethodActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockRepository) CreateResult(ctx context.Context, result *VerificationResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockRepository) GetResult(ctx context.Context, id uuid.UUID) (*VerificationResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerificationResult), args.Error(1)
}

func (m *MockRepository) ListResultsByCredit(ctx context.Context, creditID uuid.UUID) ([]VerificationResult, error) {
	args := m.Called(ctx, creditID)
	return args.Get(0).([]VerificationResult), args.Error(1)
}

func (m *MockRepository) UpdateResult(ctx context.Context, result *VerificationResult, from Status) error {
	args := m.Called(ctx, result, from)
	return args.Error(0)
}

func (m *MockRepository) ListExpiring(ctx context.Context, now time.Time) ([]VerificationResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]VerificationResult), args.Error(1)
}

func (m *MockRepository) CreateEvidenceFile(ctx context.Context, file *evidence.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockRepository) ListEvidenceFiles(ctx context.Context, verificationResultID uuid.UUID) ([]evidence.File, error) {
	args := m.Called(ctx, verificationResultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// each caller gets its own slice, as with a real query
	return append([]evidence.File(nil), args.Get(0).([]evidence.File)...), args.Error(1)
}

func (m *MockRepository) UpdateEvidenceFile(ctx context.Context, file *evidence.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}
