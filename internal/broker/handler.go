package broker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/banhbaoring/dns-broker/internal/config"
	"github.com/banhbaoring/dns-broker/internal/models"
	"github.com/banhbaoring/dns-broker/internal/pipeline"
	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
	"github.com/banhbaoring/dns-broker/internal/pkg/ulid"
	"github.com/banhbaoring/dns-broker/internal/repository"
	"github.com/banhbaoring/dns-broker/internal/validators"
)

// Handler implements the broker contract: catalog, provision, update,
// deprovision, last_operation. It validates input, mutates the instance
// aggregate, opens an operation row, and dispatches the matching pipeline;
// it has no HTTP-specific knowledge.
type Handler struct {
	Instances    repository.ServiceInstanceRepository
	Operations   repository.OperationRepository
	CNAMEResolver validators.CNAMEResolver
	Runtime      *pipeline.Runtime
	Config       config.BrokerConfig
	Logger       *slog.Logger
}

// Catalog returns the static catalog document.
func (h *Handler) Catalog() Catalog {
	return GetCatalog()
}

// Provision creates a new service instance and enqueues its provision
// pipeline, returning the new operation's id.
func (h *Handler) Provision(ctx context.Context, instanceID, planID string, params Params, acceptsIncomplete bool, correlationID string) (int64, error) {
	if !acceptsIncomplete {
		return 0, apierrors.ErrAsyncRequired
	}

	instanceType, ok := planToInstanceType[planID]
	if !ok {
		return 0, apierrors.ErrNotImplemented
	}

	if params.Domains == nil {
		return 0, apierrors.NewBadRequestError("domains is required")
	}
	domains := ParseDomains(*params.Domains)
	if len(domains) == 0 {
		return 0, apierrors.NewBadRequestError("domains must not be empty")
	}

	existing, err := h.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return 0, apierrors.NewInternalError(err.Error())
	}
	if existing != nil {
		return 0, apierrors.ErrConflict
	}

	if err := validators.ValidateCNAME(ctx, h.CNAMEResolver, domains, h.Config.DNSChallengeOwnerTarget); err != nil {
		return 0, err
	}
	if err := validators.ValidateUniqueDomains(ctx, h.Instances, domains, ""); err != nil {
		return 0, err
	}

	instance := &models.ServiceInstance{
		ID:           instanceID,
		InstanceType: instanceType,
		DomainNames:  domains,
	}

	switch instanceType {
	case models.InstanceTypeALB:
		instance.AlbListenerARN = h.Config.AlbListenerARN
		instance.AlbARN = h.Config.AlbARN
		instance.DomainInternal = h.Config.AlbDomainInternal
		instance.Route53AliasHostedZone = h.Config.HostedZoneID
	case models.InstanceTypeCDN, models.InstanceTypeCDNDedicatedWAF:
		if err := applyCDNParams(instance, params, h.Config, false); err != nil {
			return 0, err
		}
	}

	if err := h.Instances.Create(ctx, instance); err != nil {
		return 0, apierrors.NewInternalError(err.Error())
	}

	return h.openOperation(ctx, instance, models.OperationActionProvision, correlationID)
}

// Update applies a parameter change to an existing instance. It returns the
// new operation id and true if an operation was created, or (0, false, nil)
// for a recognised no-op.
func (h *Handler) Update(ctx context.Context, instanceID string, params Params, acceptsIncomplete bool, correlationID string) (int64, bool, error) {
	if !acceptsIncomplete {
		return 0, false, apierrors.ErrAsyncRequired
	}

	instance, err := h.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return 0, false, apierrors.NewInternalError(err.Error())
	}
	if instance == nil {
		return 0, false, apierrors.ErrInstanceDoesNotExist
	}
	if instance.IsDeactivated() {
		return 0, false, apierrors.ErrInstanceDeactivated
	}

	active, err := h.Operations.GetActiveByInstance(ctx, instanceID)
	if err != nil {
		return 0, false, apierrors.NewInternalError(err.Error())
	}
	if active != nil {
		return 0, false, apierrors.ErrActiveOperationExists
	}

	domainsNoop := true
	if params.Domains != nil {
		newDomains := ParseDomains(*params.Domains)
		if len(newDomains) > 0 {
			if err := validators.ValidateUniqueDomains(ctx, h.Instances, newDomains, instanceID); err != nil {
				return 0, false, err
			}
			domainsNoop = sameDomains(newDomains, instance.DomainNames)
			if !domainsNoop {
				instance.DomainNames = newDomains
			} else if instance.IsCDN() {
				// Domains re-asserted unchanged: skip reissuing a certificate.
				instance.NewCertificateID = instance.CurrentCertificateID
			}
		}
	}

	if instance.IsCDN() {
		if err := applyCDNParams(instance, params, h.Config, true); err != nil {
			return 0, false, err
		}
	}

	noop := domainsNoop && !instance.IsCDN()
	if noop {
		return 0, false, nil
	}

	if err := h.Instances.Update(ctx, instance); err != nil {
		return 0, false, apierrors.NewInternalError(err.Error())
	}

	id, err := h.openOperation(ctx, instance, models.OperationActionUpdate, correlationID)
	return id, err == nil, err
}

// Deprovision tears down an instance, returning the new operation id.
func (h *Handler) Deprovision(ctx context.Context, instanceID string, acceptsIncomplete bool, correlationID string) (int64, error) {
	if !acceptsIncomplete {
		return 0, apierrors.ErrAsyncRequired
	}

	instance, err := h.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return 0, apierrors.NewInternalError(err.Error())
	}
	if instance == nil {
		return 0, apierrors.ErrInstanceDoesNotExist
	}

	return h.openOperation(ctx, instance, models.OperationActionDeprovision, correlationID)
}

// LastOperation reports an operation's current state and step description.
func (h *Handler) LastOperation(ctx context.Context, instanceID string, operationID int64) (models.OperationState, string, error) {
	instance, err := h.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return "", "", apierrors.NewInternalError(err.Error())
	}
	if instance == nil {
		return "", "", apierrors.ErrInstanceDoesNotExist
	}

	op, err := h.Operations.GetByID(ctx, operationID)
	if err != nil {
		return "", "", apierrors.NewInternalError(err.Error())
	}
	if op == nil || op.ServiceInstanceID != instanceID {
		return "", "", apierrors.NewBadRequestError("unknown operation id for this instance")
	}

	return op.State, op.StepDescription, nil
}

func (h *Handler) openOperation(ctx context.Context, instance *models.ServiceInstance, action models.OperationAction, correlationID string) (int64, error) {
	if correlationID == "" {
		correlationID = ulid.New()
	}

	op := &models.Operation{
		ServiceInstanceID: instance.ID,
		Action:            action,
		State:             models.OperationStateInProgress,
		StepDescription:   "Queuing tasks",
		CorrelationID:     correlationID,
	}
	if err := h.Operations.Create(ctx, op); err != nil {
		return 0, apierrors.NewInternalError(err.Error())
	}

	if err := h.Runtime.Enqueue(ctx, op, instance); err != nil {
		h.Logger.Error("enqueuing pipeline failed", "operation_id", op.ID, "error", err)
		return 0, apierrors.NewInternalError(err.Error())
	}

	return op.ID, nil
}

// applyCDNParams computes the CDN-specific aggregate fields from params. In
// provision mode (forUpdate=false) every field is (re)computed from params,
// falling back to defaults. In update mode (forUpdate=true) a field is only
// recomputed when its parameter key was explicitly present in the request —
// presence matters, not truthiness — so an absent key leaves the previously
// stored value untouched.
func applyCDNParams(instance *models.ServiceInstance, params Params, cfg config.BrokerConfig, forUpdate bool) error {
	if !forUpdate || params.Origin != nil {
		origin := cfg.DefaultCloudFrontOrigin
		if params.Origin != nil && strings.TrimSpace(*params.Origin) != "" {
			origin = strings.TrimSpace(*params.Origin)
		}
		instance.CloudFrontOriginHostname = origin
	}

	if !forUpdate || params.Path != nil {
		path := ""
		if params.Path != nil {
			path = *params.Path
		}
		instance.CloudFrontOriginPath = path
	}

	if !forUpdate || params.ForwardCookies != nil {
		opts := parseCookieOptions(params.ForwardCookies)
		instance.ForwardCookiePolicy = opts.policy
		instance.ForwardedCookies = opts.cookies
	}

	if !forUpdate || params.ForwardHeaders != nil {
		headers := parseHeaderOptions(params.ForwardHeaders)
		if instance.CloudFrontOriginHostname == cfg.DefaultCloudFrontOrigin {
			headers = append(headers, "HOST")
		}
		instance.ForwardedHeaders = normalizeHeaders(headers)
	}

	if !forUpdate || params.InsecureOrigin != nil {
		insecure := params.InsecureOrigin != nil && *params.InsecureOrigin
		if insecure && instance.CloudFrontOriginHostname == cfg.DefaultCloudFrontOrigin {
			return apierrors.NewBadRequestError("insecure_origin requires an explicit, non-default origin")
		}
		if insecure {
			instance.OriginProtocolPolicy = models.OriginProtocolHTTPOnly
		} else {
			instance.OriginProtocolPolicy = models.OriginProtocolHTTPSOnly
		}
	}

	if params.ErrorResponses != nil {
		instance.ErrorResponses = params.ErrorResponses
	}

	return nil
}
