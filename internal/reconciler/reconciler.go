// Package reconciler finds and cleans up certificates left behind by a
// certificate swap: every successful provision or update pipeline eventually
// calls cleanup_old_certificate, but a process crash between swap_certificate
// and cleanup_old_certificate can leave a duplicate row and its cloud-side
// identity-store entry orphaned. The reconciler is the backstop sweep.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/banhbaoring/dns-broker/internal/middleware"
	"github.com/banhbaoring/dns-broker/internal/models"
	"github.com/banhbaoring/dns-broker/internal/repository"
)

// IdentityStore is the subset of the ACM adapter the reconciler needs.
type IdentityStore interface {
	Delete(ctx context.Context, arn string) error
}

// LoadBalancer is the subset of the ALB adapter the reconciler needs.
type LoadBalancer interface {
	ListCertificates(ctx context.Context, listenerARN string) ([]string, error)
	RemoveCertificate(ctx context.Context, listenerARN, certARN string) error
}

// Reconciler periodically sweeps every active instance for duplicate
// certificates and removes them.
type Reconciler struct {
	Instances     repository.ServiceInstanceRepository
	Certificates  repository.CertificateRepository
	IdentityStore IdentityStore
	LoadBalancer  LoadBalancer
	Logger        *slog.Logger
}

// GetDuplicateCertsForService returns every certificate owned by instanceID
// other than its current one.
func (r *Reconciler) GetDuplicateCertsForService(ctx context.Context, instance *models.ServiceInstance) ([]*models.Certificate, error) {
	if instance.CurrentCertificateID == nil {
		return nil, nil
	}
	return r.Certificates.ListDuplicatesByInstance(ctx, instance.ID, *instance.CurrentCertificateID)
}

// GetMatchingALBListenerARNsForCertARNs returns, for each listener ARN, the
// subset of certARNs currently attached to it. It stops listing a listener's
// certificates as soon as every requested cert ARN has been matched to some
// listener, since there is nothing left to find.
func (r *Reconciler) GetMatchingALBListenerARNsForCertARNs(ctx context.Context, certARNs, listenerARNs []string) (map[string][]string, error) {
	remaining := make(map[string]bool, len(certARNs))
	for _, arn := range certARNs {
		remaining[arn] = true
	}

	matches := make(map[string][]string)
	for _, listenerARN := range listenerARNs {
		if len(remaining) == 0 {
			break
		}

		attached, err := r.LoadBalancer.ListCertificates(ctx, listenerARN)
		if err != nil {
			return nil, fmt.Errorf("listing certificates on listener %s: %w", listenerARN, err)
		}

		for _, arn := range attached {
			if remaining[arn] {
				matches[listenerARN] = append(matches[listenerARN], arn)
				delete(remaining, arn)
			}
		}
	}
	return matches, nil
}

// FixDuplicateALBCerts sweeps every active instance, detaching any duplicate
// certificate still attached to its ALB listener, deleting it from the
// identity store, and removing its row. Returns the number of certificates
// cleaned up.
func (r *Reconciler) FixDuplicateALBCerts(ctx context.Context) (int, error) {
	instances, err := r.Instances.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing instances for reconciliation: %w", err)
	}

	cleaned := 0
	for _, instance := range instances {
		if !instance.IsALB() {
			continue
		}

		duplicates, err := r.GetDuplicateCertsForService(ctx, instance)
		if err != nil {
			r.Logger.Error("listing duplicate certificates failed", "instance_id", instance.ID, "error", err)
			continue
		}
		if len(duplicates) == 0 {
			continue
		}

		certARNs := make([]string, 0, len(duplicates))
		byARN := make(map[string]*models.Certificate, len(duplicates))
		for _, dup := range duplicates {
			if dup.IAMServerCertificateID == "" {
				continue
			}
			certARNs = append(certARNs, dup.IAMServerCertificateID)
			byARN[dup.IAMServerCertificateID] = dup
		}

		matches, err := r.GetMatchingALBListenerARNsForCertARNs(ctx, certARNs, []string{instance.AlbListenerARN})
		if err != nil {
			r.Logger.Error("matching duplicate certificates to listener failed", "instance_id", instance.ID, "error", err)
			continue
		}
		for listenerARN, arns := range matches {
			for _, arn := range arns {
				if err := r.LoadBalancer.RemoveCertificate(ctx, listenerARN, arn); err != nil {
					r.Logger.Error("detaching duplicate certificate failed", "instance_id", instance.ID, "arn", arn, "error", err)
				}
			}
		}

		for _, dup := range duplicates {
			if dup.IAMServerCertificateID != "" {
				if err := r.IdentityStore.Delete(ctx, dup.IAMServerCertificateID); err != nil {
					r.Logger.Error("deleting duplicate certificate from identity store failed", "instance_id", instance.ID, "id", dup.ID, "error", err)
					continue
				}
			}
			if err := r.Certificates.Delete(ctx, dup.ID); err != nil {
				r.Logger.Error("deleting duplicate certificate row failed", "instance_id", instance.ID, "id", dup.ID, "error", err)
				continue
			}
			cleaned++
		}
	}

	middleware.ReconcilerRunsTotal.Inc()
	middleware.ReconcilerCertsCleanedTotal.Add(float64(cleaned))
	return cleaned, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := r.FixDuplicateALBCerts(ctx)
			if err != nil {
				r.Logger.Error("reconciler sweep failed", "error", err)
				continue
			}
			if cleaned > 0 {
				r.Logger.Info("reconciler cleaned up duplicate certificates", "count", cleaned)
			}
		}
	}
}
