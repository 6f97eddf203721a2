package validators

import (
	"context"
	"fmt"

	"github.com/banhbaoring/dns-broker/internal/models"
	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
)

// DomainOwnerLookup finds the non-deactivated instance currently holding a
// domain, or nil if none does.
type DomainOwnerLookup interface {
	FindActiveByDomain(ctx context.Context, domain string) (*models.ServiceInstance, error)
}

// ValidateUniqueDomains ensures no other non-deactivated instance holds any
// of the given domains. exceptInstanceID is excluded from the collision set
// so an update can re-assert domains an instance already owns.
func ValidateUniqueDomains(ctx context.Context, lookup DomainOwnerLookup, domains []string, exceptInstanceID string) error {
	for _, domain := range domains {
		owner, err := lookup.FindActiveByDomain(ctx, domain)
		if err != nil {
			return fmt.Errorf("checking domain ownership for %s: %w", domain, err)
		}
		if owner != nil && owner.ID != exceptInstanceID {
			return apierrors.NewBadRequestError(fmt.Sprintf("domain %s is already in use by another service instance", domain))
		}
	}
	return nil
}
