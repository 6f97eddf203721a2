package reconciler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/banhbaoring/dns-broker/internal/models"
	"github.com/banhbaoring/dns-broker/internal/repository"
)

type mockIdentityStore struct{ mock.Mock }

func (m *mockIdentityStore) Delete(ctx context.Context, arn string) error {
	args := m.Called(ctx, arn)
	return args.Error(0)
}

type mockLoadBalancer struct{ mock.Mock }

func (m *mockLoadBalancer) ListCertificates(ctx context.Context, listenerARN string) ([]string, error) {
	args := m.Called(ctx, listenerARN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLoadBalancer) RemoveCertificate(ctx context.Context, listenerARN, certARN string) error {
	args := m.Called(ctx, listenerARN, certARN)
	return args.Error(0)
}

func TestGetMatchingALBListenerARNsForCertARNs_ShortCircuits(t *testing.T) {
	lb := new(mockLoadBalancer)
	lb.On("ListCertificates", mock.Anything, "listener-1").Return([]string{"arn-a", "arn-b"}, nil)

	r := &Reconciler{LoadBalancer: lb, Logger: slog.Default()}

	matches, err := r.GetMatchingALBListenerARNsForCertARNs(context.Background(), []string{"arn-a", "arn-b"}, []string{"listener-1", "listener-2"})

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"arn-a", "arn-b"}, matches["listener-1"])
	lb.AssertNotCalled(t, "ListCertificates", mock.Anything, "listener-2")
}

func TestFixDuplicateALBCerts_CleansUpOrphans(t *testing.T) {
	currentID := int64(2)
	instance := &models.ServiceInstance{
		ID:                   "svc-1",
		InstanceType:         models.InstanceTypeALB,
		AlbListenerARN:       "listener-1",
		CurrentCertificateID: &currentID,
	}
	dup := &models.Certificate{ID: 1, ServiceInstanceID: "svc-1", IAMServerCertificateID: "arn-old"}

	instances := new(repository.MockServiceInstanceRepository)
	instances.On("ListAll", mock.Anything).Return([]*models.ServiceInstance{instance}, nil)

	certs := new(repository.MockCertificateRepository)
	certs.On("ListDuplicatesByInstance", mock.Anything, "svc-1", currentID).Return([]*models.Certificate{dup}, nil)
	certs.On("Delete", mock.Anything, int64(1)).Return(nil)

	lb := new(mockLoadBalancer)
	lb.On("ListCertificates", mock.Anything, "listener-1").Return([]string{"arn-old"}, nil)
	lb.On("RemoveCertificate", mock.Anything, "listener-1", "arn-old").Return(nil)

	store := new(mockIdentityStore)
	store.On("Delete", mock.Anything, "arn-old").Return(nil)

	r := &Reconciler{
		Instances:     instances,
		Certificates:  certs,
		IdentityStore: store,
		LoadBalancer:  lb,
		Logger:        slog.Default(),
	}

	cleaned, err := r.FixDuplicateALBCerts(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, cleaned)
	lb.AssertCalled(t, "RemoveCertificate", mock.Anything, "listener-1", "arn-old")
	store.AssertCalled(t, "Delete", mock.Anything, "arn-old")
	certs.AssertCalled(t, "Delete", mock.Anything, int64(1))
}
