package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// MockServiceInstanceRepository is a mock implementation of
// ServiceInstanceRepository for testing.
type MockServiceInstanceRepository struct {
	mock.Mock
}

func (m *MockServiceInstanceRepository) Create(ctx context.Context, instance *models.ServiceInstance) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockServiceInstanceRepository) GetByID(ctx context.Context, id string) (*models.ServiceInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceInstance), args.Error(1)
}

func (m *MockServiceInstanceRepository) Update(ctx context.Context, instance *models.ServiceInstance) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockServiceInstanceRepository) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockServiceInstanceRepository) FindActiveByDomain(ctx context.Context, domain string) (*models.ServiceInstance, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceInstance), args.Error(1)
}

func (m *MockServiceInstanceRepository) ListAll(ctx context.Context) ([]*models.ServiceInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ServiceInstance), args.Error(1)
}

var _ ServiceInstanceRepository = (*MockServiceInstanceRepository)(nil)

func TestMockServiceInstanceRepository_FindActiveByDomain_NoOwner(t *testing.T) {
	repo := new(MockServiceInstanceRepository)
	repo.On("FindActiveByDomain", mock.Anything, "foo.example").Return(nil, nil)

	owner, err := repo.FindActiveByDomain(context.Background(), "foo.example")
	assert.NoError(t, err)
	assert.Nil(t, owner)
}

func TestMockServiceInstanceRepository_FindActiveByDomain_Owned(t *testing.T) {
	repo := new(MockServiceInstanceRepository)
	owner := &models.ServiceInstance{ID: "inst-1"}
	repo.On("FindActiveByDomain", mock.Anything, "foo.example").Return(owner, nil)

	got, err := repo.FindActiveByDomain(context.Background(), "foo.example")
	assert.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestMockServiceInstanceRepository_Deactivate(t *testing.T) {
	repo := new(MockServiceInstanceRepository)
	repo.On("Deactivate", mock.Anything, "inst-1").Return(nil)

	err := repo.Deactivate(context.Background(), "inst-1")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
