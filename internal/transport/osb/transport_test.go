package osb

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/banhbaoring/dns-broker/internal/broker"
	"github.com/banhbaoring/dns-broker/internal/config"
	"github.com/banhbaoring/dns-broker/internal/models"
	"github.com/banhbaoring/dns-broker/internal/pipeline"
	"github.com/banhbaoring/dns-broker/internal/repository"
)

type fakeCNAMEResolver struct{ target string }

func (f *fakeCNAMEResolver) LookupCNAME(ctx context.Context, domain string) (string, error) {
	return f.target, nil
}

type fakeQueue struct{}

func (fakeQueue) Enqueue(ctx context.Context, queue string, payload string) error { return nil }
func (fakeQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	return "", nil
}
func (fakeQueue) RequeueWithDelay(ctx context.Context, delayedSet string, payload string, delay time.Duration) error {
	return nil
}
func (fakeQueue) PromoteDue(ctx context.Context, delayedSet, queue string) (int, error) { return 0, nil }
func (fakeQueue) IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	return 1, nil
}

func newTestTransport(instances *repository.MockServiceInstanceRepository, operations *repository.MockOperationRepository) *Transport {
	cfg := config.BrokerConfig{
		DefaultCloudFrontOrigin: "origin.internal.example.com",
		DNSChallengeOwnerTarget: "broker-owned.example.com",
	}
	deps := &pipeline.Deps{Instances: instances, Operations: operations, Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	runtime := pipeline.NewRuntime(deps, fakeQueue{})
	handler := &broker.Handler{
		Instances:     instances,
		Operations:    operations,
		CNAMEResolver: &fakeCNAMEResolver{target: "broker-owned.example.com."},
		Runtime:       runtime,
		Config:        cfg,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return New(handler)
}

func TestCheckAPIVersion_MissingHeader(t *testing.T) {
	transport := newTestTransport(new(repository.MockServiceInstanceRepository), new(repository.MockOperationRepository))

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog_ReturnsServices(t *testing.T) {
	transport := newTestTransport(new(repository.MockServiceInstanceRepository), new(repository.MockOperationRepository))

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.Header.Set("X-Broker-API-Version", APIVersion)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dns-broker")
}

func TestProvision_RejectsNonUUIDInstanceID(t *testing.T) {
	transport := newTestTransport(new(repository.MockServiceInstanceRepository), new(repository.MockOperationRepository))

	body := strings.NewReader(`{"service_id":"dns-broker","plan_id":"alb","parameters":{"domains":"app.example.com"}}`)
	req := httptest.NewRequest(http.MethodPut, "/service_instances/not-a-uuid?accepts_incomplete=true", body)
	req.Header.Set("X-Broker-API-Version", APIVersion)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvision_RejectsMissingAcceptsIncomplete(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	transport := newTestTransport(instances, operations)

	body := strings.NewReader(`{"service_id":"dns-broker","plan_id":"alb","parameters":{"domains":"app.example.com"}}`)
	req := httptest.NewRequest(http.MethodPut, "/service_instances/11111111-1111-1111-1111-111111111111", body)
	req.Header.Set("X-Broker-API-Version", APIVersion)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProvision_Succeeds(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	transport := newTestTransport(instances, operations)

	instanceID := "11111111-1111-1111-1111-111111111111"
	instances.On("GetByID", mock.Anything, instanceID).Return(nil, nil)
	instances.On("FindActiveByDomain", mock.Anything, "app.example.com").Return(nil, nil)
	instances.On("Create", mock.Anything, mock.AnythingOfType("*models.ServiceInstance")).Return(nil)
	operations.On("Create", mock.Anything, mock.AnythingOfType("*models.Operation")).Run(func(args mock.Arguments) {
		op := args.Get(1).(*models.Operation)
		op.ID = 101
	}).Return(nil)

	body := strings.NewReader(`{"service_id":"dns-broker","plan_id":"alb","parameters":{"domains":"app.example.com"}}`)
	req := httptest.NewRequest(http.MethodPut, "/service_instances/"+instanceID+"?accepts_incomplete=true", body)
	req.Header.Set("X-Broker-API-Version", APIVersion)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp operationResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, formatOperationID(101), resp.Operation)
}

func TestLastOperation_RequiresOperationParam(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	transport := newTestTransport(instances, operations)

	instanceID := "11111111-1111-1111-1111-111111111111"
	instances.On("GetByID", mock.Anything, instanceID).Return(&models.ServiceInstance{ID: instanceID}, nil)

	req := httptest.NewRequest(http.MethodGet, "/service_instances/"+instanceID+"/last_operation", nil)
	req.Header.Set("X-Broker-API-Version", APIVersion)
	rec := httptest.NewRecorder()
	transport.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
