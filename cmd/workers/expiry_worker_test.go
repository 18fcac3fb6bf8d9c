package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockExpirer struct {
	mock.Mock
}

func (m *MockExpirer) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func TestExpiryWorker_StartSweepsImmediately(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expirer := new(MockExpirer)
	expirer.On("ExpireDue", mock.Anything, now).Return(2, nil).Once()

	worker := NewExpiryWorker(expirer, zap.NewNop(), DefaultExpiryWorkerConfig())
	worker.now = func() time.Time { return now }

	require.NoError(t, worker.Start(context.Background()))
	defer worker.Stop()

	expirer.AssertExpectations(t)
	assert.Error(t, worker.Start(context.Background()), "second start is rejected")
}

func TestExpiryWorker_SweepErrorIsLogged(t *testing.T) {
	expirer := new(MockExpirer)
	expirer.On("ExpireDue", mock.Anything, mock.Anything).Return(0, errors.New("connection refused"))

	worker := NewExpiryWorker(expirer, zap.NewNop(), DefaultExpiryWorkerConfig())
	worker.sweep(context.Background())

	expirer.AssertNumberOfCalls(t, "ExpireDue", 1)
}

func TestExpiryWorker_InvalidSchedule(t *testing.T) {
	worker := NewExpiryWorker(new(MockExpirer), zap.NewNop(), ExpiryWorkerConfig{
		Schedule:     "every hour",
		SweepTimeout: time.Second,
	})

	err := worker.Start(context.Background())
	assert.ErrorContains(t, err, "invalid expiry schedule")
	worker.Stop()
}
