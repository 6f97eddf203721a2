package pipeline

import (
	"context"
	"errors"
	"time"

	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"github.com/banhbaoring/dns-broker/internal/adapters"
	"github.com/banhbaoring/dns-broker/internal/models"
)

// Step is a single retryable unit of pipeline work. It loads nothing itself;
// the runtime hands it the already-loaded operation and instance aggregate,
// and the step persists its own mutations through deps.
type Step func(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error

// Step names, referenced from the pipeline catalog. Kept as constants so a
// typo in the catalog is a compile error, not a silent missing step.
const (
	StepIssueCertificate     = "issue_certificate"
	StepUploadCertificate    = "upload_certificate"
	StepAttachALBListener    = "attach_alb_listener"
	StepApplyCDNDistribution = "apply_cdn_distribution"
	StepCreateDedicatedWAF   = "create_dedicated_waf"
	StepCreateHealthChecks   = "create_health_checks"
	StepSwapCertificate      = "swap_certificate"
	StepCleanupOldCert       = "cleanup_old_certificate"

	StepDetachALBListener   = "detach_alb_listener"
	StepDeleteCDN           = "delete_cdn_distribution"
	StepDeleteDedicatedWAF  = "delete_dedicated_waf"
	StepDeleteHealthChecks  = "delete_health_checks"
	StepDeleteCurrentCert   = "delete_current_certificate"
	StepDeactivateInstance  = "deactivate_instance"
)

// registry maps a step name to its implementation. Defined as a plain table,
// not a meta-programming/decorator layer: a named function plus operation id
// is all a task ever needs.
var registry = map[string]Step{
	StepIssueCertificate:     stepIssueCertificate,
	StepUploadCertificate:    stepUploadCertificate,
	StepAttachALBListener:    stepAttachALBListener,
	StepApplyCDNDistribution: stepApplyCDNDistribution,
	StepCreateDedicatedWAF:   stepCreateDedicatedWAF,
	StepCreateHealthChecks:   stepCreateHealthChecks,
	StepSwapCertificate:      stepSwapCertificate,
	StepCleanupOldCert:       stepCleanupOldCert,

	StepDetachALBListener:  stepDetachALBListener,
	StepDeleteCDN:          stepDeleteCDN,
	StepDeleteDedicatedWAF: stepDeleteDedicatedWAF,
	StepDeleteHealthChecks: stepDeleteHealthChecks,
	StepDeleteCurrentCert:  stepDeleteCurrentCert,
	StepDeactivateInstance: stepDeactivateInstance,
}

// Lookup returns the step implementation registered under name.
func Lookup(name string) (Step, bool) {
	step, ok := registry[name]
	return step, ok
}

// cloudFrontHostedZoneID is AWS's fixed, global hosted zone id for aliasing
// to any CloudFront distribution.
const cloudFrontHostedZoneID = "Z2FDTNDATAQYW2"

func stepIssueCertificate(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.NewCertificateID != nil && instance.CurrentCertificateID != nil &&
		*instance.NewCertificateID == *instance.CurrentCertificateID {
		return nil // preserved across a noop-domain update; nothing to reissue
	}

	client, _, err := deps.CA.Register(ctx)
	if err != nil {
		return Retryable(err)
	}

	issued, err := deps.CA.RequestCertificate(ctx, client, instance.DomainNames)
	if err != nil {
		return Retryable(err)
	}

	cert := &models.Certificate{
		ServiceInstanceID: instance.ID,
		PrivateKeyPEM:     issued.PrivateKeyPEM,
		LeafPEM:           issued.LeafPEM,
		FullChainPEM:      issued.FullChainPEM,
		CSRPEM:            issued.CSRPEM,
		OrderJSON:         issued.OrderJSON,
	}
	if err := deps.Certificates.Create(ctx, cert); err != nil {
		return Permanent(err)
	}

	instance.NewCertificateID = &cert.ID
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepUploadCertificate(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	cert, err := loadCert(ctx, deps, instance.NewCertificateID)
	if err != nil {
		return err
	}
	if cert.IsUploaded() {
		return nil
	}

	arn, err := deps.IdentityStore.Upload(ctx, cert.LeafPEM, cert.PrivateKeyPEM, cert.FullChainPEM)
	if err != nil {
		return Retryable(err)
	}

	cert.IAMServerCertificateID = arn
	if err := deps.Certificates.Update(ctx, cert); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepAttachALBListener(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	cert, err := loadCert(ctx, deps, instance.NewCertificateID)
	if err != nil {
		return err
	}

	if err := deps.LoadBalancer.AddCertificate(ctx, instance.AlbListenerARN, cert.IAMServerCertificateID); err != nil {
		return Retryable(err)
	}

	for _, domain := range instance.DomainNames {
		if err := deps.DNS.UpsertAlias(ctx, domain, instance.DomainInternal, instance.Route53AliasHostedZone); err != nil {
			return Retryable(err)
		}
	}
	return nil
}

func stepApplyCDNDistribution(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	cert, err := loadCert(ctx, deps, instance.NewCertificateID)
	if err != nil {
		return err
	}

	params := adapters.CDNParams{
		CallerReference:      instance.ID,
		Aliases:              instance.DomainNames,
		OriginHostname:       instance.CloudFrontOriginHostname,
		OriginPath:           instance.CloudFrontOriginPath,
		OriginProtocolPolicy: cdnOriginProtocolPolicy(instance.OriginProtocolPolicy),
		ForwardedHeaders:     instance.ForwardedHeaders,
		ForwardCookiePolicy:  cdnCookiePolicy(instance.ForwardCookiePolicy),
		ForwardedCookies:     instance.ForwardedCookies,
		WebACLID:             instance.DedicatedWAFWebACLARN,
		ViewerCertificateARN: cert.IAMServerCertificateID,
	}

	var domainName string
	if instance.CloudFrontDistributionID == "" {
		id, arn, dn, err := deps.CDN.CreateDistribution(ctx, params)
		if err != nil {
			return Retryable(err)
		}
		instance.CloudFrontDistributionID = id
		instance.CloudFrontDistributionARN = arn
		domainName = dn
	} else {
		if err := deps.CDN.UpdateDistribution(ctx, instance.CloudFrontDistributionID, params); err != nil {
			return Retryable(err)
		}
	}

	if err := deps.CDN.WaitForDeployed(ctx, instance.CloudFrontDistributionID, 20*time.Minute); err != nil {
		return Retryable(err)
	}

	if domainName != "" {
		for _, domain := range instance.DomainNames {
			if err := deps.DNS.UpsertAlias(ctx, domain, domainName, cloudFrontHostedZoneID); err != nil {
				return Retryable(err)
			}
		}
	}

	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepCreateDedicatedWAF(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if !instance.HasDedicatedWAF() || instance.DedicatedWAFWebACLID != "" {
		return nil
	}

	name := "dns-broker-" + instance.ID
	id, arn, err := deps.Firewall.Create(ctx, name, deps.Config.WAFRateLimitRuleARN)
	if err != nil {
		return Retryable(err)
	}
	if err := deps.Firewall.PutLoggingConfiguration(ctx, arn, deps.Config.CloudWatchLogGroupARN); err != nil {
		return Retryable(err)
	}

	instance.DedicatedWAFWebACLID = id
	instance.DedicatedWAFWebACLARN = arn
	instance.DedicatedWAFWebACLName = name
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepCreateHealthChecks(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if !instance.HasDedicatedWAF() {
		return nil
	}

	have := make(map[string]bool, len(instance.Route53HealthChecks))
	for _, hc := range instance.Route53HealthChecks {
		have[hc.DomainName] = true
	}

	for _, domain := range instance.DomainNames {
		if have[domain] {
			continue
		}
		id, err := deps.DNS.CreateHealthCheck(ctx, domain)
		if err != nil {
			return Retryable(err)
		}
		instance.Route53HealthChecks = append(instance.Route53HealthChecks, models.Route53HealthCheck{
			DomainName:    domain,
			HealthCheckID: id,
		})
	}

	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepSwapCertificate(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.NewCertificateID == nil {
		return Permanent(errors.New("swap_certificate: no new certificate to swap in"))
	}
	instance.CurrentCertificateID = instance.NewCertificateID
	instance.NewCertificateID = nil
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepCleanupOldCert(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.CurrentCertificateID == nil {
		return nil
	}

	duplicates, err := deps.Certificates.ListDuplicatesByInstance(ctx, instance.ID, *instance.CurrentCertificateID)
	if err != nil {
		return Permanent(err)
	}

	for _, dup := range duplicates {
		if dup.IAMServerCertificateID != "" {
			if err := deps.IdentityStore.Delete(ctx, dup.IAMServerCertificateID); err != nil {
				return Retryable(err)
			}
		}
		if err := deps.Certificates.Delete(ctx, dup.ID); err != nil {
			return Permanent(err)
		}
	}
	return nil
}

func stepDetachALBListener(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.CurrentCertificateID != nil {
		cert, err := deps.Certificates.GetByID(ctx, *instance.CurrentCertificateID)
		if err != nil {
			return Retryable(err)
		}
		if cert != nil && cert.IAMServerCertificateID != "" {
			if err := deps.LoadBalancer.RemoveCertificate(ctx, instance.AlbListenerARN, cert.IAMServerCertificateID); err != nil {
				return Retryable(err)
			}
		}
	}

	for _, domain := range instance.DomainNames {
		if err := deps.DNS.DeleteAlias(ctx, domain, instance.DomainInternal, instance.Route53AliasHostedZone); err != nil {
			return Retryable(err)
		}
	}
	return nil
}

func stepDeleteCDN(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.CloudFrontDistributionID == "" {
		return nil
	}
	if err := deps.CDN.DeleteDistribution(ctx, instance.CloudFrontDistributionID); err != nil {
		return Retryable(err)
	}
	instance.CloudFrontDistributionID = ""
	instance.CloudFrontDistributionARN = ""
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepDeleteDedicatedWAF(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.DedicatedWAFWebACLID == "" {
		return nil
	}
	// WebACL.Delete already exhausts its own lock-contention retry budget;
	// a further failure here is not worth the runtime's retry budget too.
	if err := deps.Firewall.Delete(ctx, instance.DedicatedWAFWebACLID, instance.DedicatedWAFWebACLName, deps.Config.WAFDeleteMaxAttempts); err != nil {
		return Permanent(err)
	}
	instance.DedicatedWAFWebACLID = ""
	instance.DedicatedWAFWebACLARN = ""
	instance.DedicatedWAFWebACLName = ""
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepDeleteHealthChecks(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	for _, hc := range instance.Route53HealthChecks {
		if err := deps.DNS.DeleteHealthCheck(ctx, hc.HealthCheckID); err != nil {
			return Retryable(err)
		}
	}
	instance.Route53HealthChecks = nil
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepDeleteCurrentCert(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if instance.CurrentCertificateID == nil {
		return nil
	}
	cert, err := deps.Certificates.GetByID(ctx, *instance.CurrentCertificateID)
	if err != nil {
		return Retryable(err)
	}
	if cert != nil {
		if cert.IAMServerCertificateID != "" {
			if err := deps.IdentityStore.Delete(ctx, cert.IAMServerCertificateID); err != nil {
				return Retryable(err)
			}
		}
		if err := deps.Certificates.Delete(ctx, cert.ID); err != nil {
			return Permanent(err)
		}
	}
	instance.CurrentCertificateID = nil
	if err := deps.Instances.Update(ctx, instance); err != nil {
		return Permanent(err)
	}
	return nil
}

func stepDeactivateInstance(ctx context.Context, deps *Deps, op *models.Operation, instance *models.ServiceInstance) error {
	if err := deps.Instances.Deactivate(ctx, instance.ID); err != nil {
		return Permanent(err)
	}
	return nil
}

func cdnOriginProtocolPolicy(p models.OriginProtocolPolicy) cftypes.OriginProtocolPolicy {
	if p == models.OriginProtocolHTTPOnly {
		return cftypes.OriginProtocolPolicyHttpOnly
	}
	return cftypes.OriginProtocolPolicyHttpsOnly
}

func cdnCookiePolicy(p models.CookiePolicy) cftypes.ItemSelection {
	switch p {
	case models.CookiePolicyAll:
		return cftypes.ItemSelectionAll
	case models.CookiePolicyWhitelist:
		return cftypes.ItemSelectionWhitelist
	default:
		return cftypes.ItemSelectionNone
	}
}

func loadCert(ctx context.Context, deps *Deps, id *int64) (*models.Certificate, error) {
	if id == nil {
		return nil, Permanent(errors.New("no certificate id set on instance"))
	}
	cert, err := deps.Certificates.GetByID(ctx, *id)
	if err != nil {
		return nil, Retryable(err)
	}
	if cert == nil {
		return nil, Permanent(errors.New("referenced certificate row not found"))
	}
	return cert, nil
}
