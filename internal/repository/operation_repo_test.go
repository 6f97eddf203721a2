package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// MockOperationRepository is a mock implementation of OperationRepository for testing.
type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Create(ctx context.Context, op *models.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationRepository) GetByID(ctx context.Context, id int64) (*models.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Operation), args.Error(1)
}

func (m *MockOperationRepository) UpdateStepDescription(ctx context.Context, id int64, description string) error {
	args := m.Called(ctx, id, description)
	return args.Error(0)
}

func (m *MockOperationRepository) MarkSucceeded(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOperationRepository) MarkFailed(ctx context.Context, id int64, description string) error {
	args := m.Called(ctx, id, description)
	return args.Error(0)
}

func (m *MockOperationRepository) GetActiveByInstance(ctx context.Context, instanceID string) (*models.Operation, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Operation), args.Error(1)
}

func (m *MockOperationRepository) ListInProgress(ctx context.Context) ([]*models.Operation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Operation), args.Error(1)
}

var _ OperationRepository = (*MockOperationRepository)(nil)

func TestMockOperationRepository_Create_RejectsConcurrentActive(t *testing.T) {
	repo := new(MockOperationRepository)
	op := &models.Operation{ServiceInstanceID: "inst-1", Action: models.OperationActionUpdate}
	repo.On("Create", mock.Anything, op).Return(apierrors.ErrActiveOperationExists)

	err := repo.Create(context.Background(), op)
	assert.ErrorIs(t, err, apierrors.ErrActiveOperationExists)
}

func TestMockOperationRepository_ListInProgress(t *testing.T) {
	repo := new(MockOperationRepository)
	inProgress := []*models.Operation{{ID: 1, State: models.OperationStateInProgress}}
	repo.On("ListInProgress", mock.Anything).Return(inProgress, nil)

	got, err := repo.ListInProgress(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, inProgress, got)
}

func TestMockOperationRepository_MarkFailed(t *testing.T) {
	repo := new(MockOperationRepository)
	repo.On("MarkFailed", mock.Anything, int64(7), "acme order expired").Return(nil)

	err := repo.MarkFailed(context.Background(), 7, "acme order expired")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
