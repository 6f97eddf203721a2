package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/banhbaoring/dns-broker/internal/config"
	"github.com/banhbaoring/dns-broker/internal/models"
	"github.com/banhbaoring/dns-broker/internal/pipeline"
	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
	"github.com/banhbaoring/dns-broker/internal/repository"
)

// fakeCNAMEResolver reports a fixed target for every domain, so validators
// pass without a real DNS lookup.
type fakeCNAMEResolver struct {
	target string
}

func (f *fakeCNAMEResolver) LookupCNAME(ctx context.Context, domain string) (string, error) {
	return f.target, nil
}

// fakeQueue is an in-memory stand-in for the Redis-backed queue, just
// capacious enough for Runtime.Enqueue to succeed without a real Redis.
type fakeQueue struct {
	enqueued []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, queue string, payload string) error {
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	return "", nil
}

func (q *fakeQueue) RequeueWithDelay(ctx context.Context, delayedSet string, payload string, delay time.Duration) error {
	return nil
}

func (q *fakeQueue) PromoteDue(ctx context.Context, delayedSet, queue string) (int, error) {
	return 0, nil
}

func (q *fakeQueue) IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	return 1, nil
}

func testHandler(instances *repository.MockServiceInstanceRepository, operations *repository.MockOperationRepository) *Handler {
	cfg := config.BrokerConfig{
		DefaultCloudFrontOrigin: "origin.internal.example.com",
		DNSChallengeOwnerTarget: "broker-owned.example.com",
		AlbListenerARN:          "arn:aws:elasticloadbalancing:listener/app/fixture",
		AlbARN:                  "arn:aws:elasticloadbalancing:loadbalancer/app/fixture",
		AlbDomainInternal:       "fixture.elb.amazonaws.com",
		HostedZoneID:            "Z111111",
	}
	deps := &pipeline.Deps{Instances: instances, Operations: operations, Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	runtime := pipeline.NewRuntime(deps, &fakeQueue{})
	return &Handler{
		Instances:     instances,
		Operations:    operations,
		CNAMEResolver: &fakeCNAMEResolver{target: "broker-owned.example.com."},
		Runtime:       runtime,
		Config:        cfg,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProvision_ALB_CreatesInstanceAndOperation(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	domains := "app.example.com"
	params := Params{Domains: &domains}

	instances.On("GetByID", mock.Anything, "inst-1").Return(nil, nil)
	instances.On("FindActiveByDomain", mock.Anything, "app.example.com").Return(nil, nil)
	instances.On("Create", mock.Anything, mock.AnythingOfType("*models.ServiceInstance")).Return(nil)
	operations.On("Create", mock.Anything, mock.AnythingOfType("*models.Operation")).Run(func(args mock.Arguments) {
		op := args.Get(1).(*models.Operation)
		op.ID = 42
	}).Return(nil)

	opID, err := h.Provision(context.Background(), "inst-1", PlanALB, params, true, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), opID)
	instances.AssertExpectations(t)
	operations.AssertExpectations(t)
}

func TestProvision_RequiresAsync(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	_, err := h.Provision(context.Background(), "inst-1", PlanALB, Params{}, false, "")
	assert.ErrorIs(t, err, apierrors.ErrAsyncRequired)
}

func TestProvision_RequiresDomains(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	_, err := h.Provision(context.Background(), "inst-1", PlanALB, Params{}, true, "")
	assert.Error(t, err)
}

func TestProvision_CDN_AppliesDefaults(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	domains := "cdn.example.com"
	params := Params{Domains: &domains}

	instances.On("GetByID", mock.Anything, "inst-2").Return(nil, nil)
	instances.On("FindActiveByDomain", mock.Anything, "cdn.example.com").Return(nil, nil)

	var created *models.ServiceInstance
	instances.On("Create", mock.Anything, mock.AnythingOfType("*models.ServiceInstance")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.ServiceInstance)
	}).Return(nil)
	operations.On("Create", mock.Anything, mock.AnythingOfType("*models.Operation")).Run(func(args mock.Arguments) {
		op := args.Get(1).(*models.Operation)
		op.ID = 7
	}).Return(nil)

	opID, err := h.Provision(context.Background(), "inst-2", PlanCDN, params, true, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), opID)
	assert.Equal(t, "origin.internal.example.com", created.CloudFrontOriginHostname)
	assert.Equal(t, models.CookiePolicyAll, created.ForwardCookiePolicy)
	assert.Contains(t, created.ForwardedHeaders, "HOST")
	assert.Equal(t, models.OriginProtocolHTTPSOnly, created.OriginProtocolPolicy)
}

func TestProvision_Conflict(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	domains := "app.example.com"
	params := Params{Domains: &domains}
	instances.On("GetByID", mock.Anything, "inst-1").Return(&models.ServiceInstance{ID: "inst-1"}, nil)

	_, err := h.Provision(context.Background(), "inst-1", PlanALB, params, true, "")
	assert.ErrorIs(t, err, apierrors.ErrConflict)
}

func TestUpdate_DomainsNoopOnALB_IsNoop(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	existing := &models.ServiceInstance{
		ID:           "inst-1",
		InstanceType: models.InstanceTypeALB,
		DomainNames:  []string{"app.example.com"},
	}
	instances.On("GetByID", mock.Anything, "inst-1").Return(existing, nil)
	operations.On("GetActiveByInstance", mock.Anything, "inst-1").Return(nil, nil)
	instances.On("FindActiveByDomain", mock.Anything, "app.example.com").Return(existing, nil)

	domains := "app.example.com"
	opID, created, err := h.Update(context.Background(), "inst-1", Params{Domains: &domains}, true, "")
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(0), opID)
}

func TestUpdate_CDN_NoopDomains_StillAppliesParamChange(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	certID := int64(9)
	existing := &models.ServiceInstance{
		ID:                       "inst-2",
		InstanceType:             models.InstanceTypeCDN,
		DomainNames:              []string{"cdn.example.com"},
		CurrentCertificateID:     &certID,
		CloudFrontOriginHostname: "origin.internal.example.com",
	}
	instances.On("GetByID", mock.Anything, "inst-2").Return(existing, nil)
	operations.On("GetActiveByInstance", mock.Anything, "inst-2").Return(nil, nil)
	instances.On("FindActiveByDomain", mock.Anything, "cdn.example.com").Return(existing, nil)
	instances.On("Update", mock.Anything, mock.AnythingOfType("*models.ServiceInstance")).Return(nil)
	operations.On("Create", mock.Anything, mock.AnythingOfType("*models.Operation")).Run(func(args mock.Arguments) {
		op := args.Get(1).(*models.Operation)
		op.ID = 11
	}).Return(nil)

	domains := "cdn.example.com"
	path := "/v2"
	opID, created, err := h.Update(context.Background(), "inst-2", Params{Domains: &domains, Path: &path}, true, "")
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(11), opID)
	assert.Equal(t, "/v2", existing.CloudFrontOriginPath)
	assert.NotNil(t, existing.NewCertificateID)
	assert.Equal(t, certID, *existing.NewCertificateID)
}

func TestUpdate_RejectsWhenActiveOperationExists(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	existing := &models.ServiceInstance{ID: "inst-1", InstanceType: models.InstanceTypeALB}
	instances.On("GetByID", mock.Anything, "inst-1").Return(existing, nil)
	operations.On("GetActiveByInstance", mock.Anything, "inst-1").Return(&models.Operation{ID: 1, State: models.OperationStateInProgress}, nil)

	_, _, err := h.Update(context.Background(), "inst-1", Params{}, true, "")
	assert.ErrorIs(t, err, apierrors.ErrActiveOperationExists)
}

func TestUpdate_RejectsDeactivatedInstance(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	now := time.Now()
	existing := &models.ServiceInstance{ID: "inst-1", InstanceType: models.InstanceTypeALB, DeactivatedAt: &now}
	instances.On("GetByID", mock.Anything, "inst-1").Return(existing, nil)

	_, _, err := h.Update(context.Background(), "inst-1", Params{}, true, "")
	assert.ErrorIs(t, err, apierrors.ErrInstanceDeactivated)
}

func TestDeprovision_UnknownInstance(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	instances.On("GetByID", mock.Anything, "missing").Return(nil, nil)

	_, err := h.Deprovision(context.Background(), "missing", true, "")
	assert.ErrorIs(t, err, apierrors.ErrInstanceDoesNotExist)
}

func TestLastOperation_RejectsMismatchedInstance(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	instances.On("GetByID", mock.Anything, "inst-1").Return(&models.ServiceInstance{ID: "inst-1"}, nil)
	operations.On("GetByID", mock.Anything, int64(5)).Return(&models.Operation{ID: 5, ServiceInstanceID: "other-instance"}, nil)

	_, _, err := h.LastOperation(context.Background(), "inst-1", 5)
	assert.Error(t, err)
}

func TestLastOperation_ReturnsState(t *testing.T) {
	instances := new(repository.MockServiceInstanceRepository)
	operations := new(repository.MockOperationRepository)
	h := testHandler(instances, operations)

	instances.On("GetByID", mock.Anything, "inst-1").Return(&models.ServiceInstance{ID: "inst-1"}, nil)
	operations.On("GetByID", mock.Anything, int64(5)).Return(&models.Operation{
		ID: 5, ServiceInstanceID: "inst-1", State: models.OperationStateInProgress, StepDescription: "requesting a TLS certificate",
	}, nil)

	state, desc, err := h.LastOperation(context.Background(), "inst-1", 5)
	assert.NoError(t, err)
	assert.Equal(t, models.OperationStateInProgress, state)
	assert.Equal(t, "requesting a TLS certificate", desc)
}
