package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// MockCertificateRepository is a mock implementation of CertificateRepository for testing.
type MockCertificateRepository struct {
	mock.Mock
}

func (m *MockCertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	args := m.Called(ctx, cert)
	if args.Error(0) == nil && cert.CreatedAt.IsZero() {
		cert.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockCertificateRepository) GetByID(ctx context.Context, id int64) (*models.Certificate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Certificate), args.Error(1)
}

func (m *MockCertificateRepository) Update(ctx context.Context, cert *models.Certificate) error {
	args := m.Called(ctx, cert)
	return args.Error(0)
}

func (m *MockCertificateRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCertificateRepository) ListDuplicatesByInstance(ctx context.Context, instanceID string, exceptID int64) ([]*models.Certificate, error) {
	args := m.Called(ctx, instanceID, exceptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Certificate), args.Error(1)
}

var _ CertificateRepository = (*MockCertificateRepository)(nil)

func TestMockCertificateRepository_Create(t *testing.T) {
	repo := new(MockCertificateRepository)
	cert := &models.Certificate{ServiceInstanceID: "inst-1", CSRPEM: "csr"}

	repo.On("Create", mock.Anything, cert).Return(nil)

	err := repo.Create(context.Background(), cert)
	assert.NoError(t, err)
	assert.False(t, cert.CreatedAt.IsZero())
	repo.AssertExpectations(t)
}

func TestMockCertificateRepository_GetByID_NotFound(t *testing.T) {
	repo := new(MockCertificateRepository)
	repo.On("GetByID", mock.Anything, int64(42)).Return(nil, nil)

	cert, err := repo.GetByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, cert)
}

func TestMockCertificateRepository_ListDuplicatesByInstance(t *testing.T) {
	repo := new(MockCertificateRepository)
	dupes := []*models.Certificate{{ID: 2}, {ID: 3}}
	repo.On("ListDuplicatesByInstance", mock.Anything, "inst-1", int64(1)).Return(dupes, nil)

	got, err := repo.ListDuplicatesByInstance(context.Background(), "inst-1", 1)
	assert.NoError(t, err)
	assert.Equal(t, dupes, got)
}
