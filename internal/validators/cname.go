// Package validators contains pure precondition checks run by the request
// handler before it mutates any aggregate. Both validators here are
// idempotent and have no side effects beyond DNS lookup.
package validators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
)

// CNAMEResolver looks up the CNAME target for a domain. It is narrow enough
// to mock without network access; the production implementation queries DNS
// directly with miekg/dns rather than relying on the standard resolver,
// which silently follows CNAMEs instead of asserting on their target.
type CNAMEResolver interface {
	LookupCNAME(ctx context.Context, domain string) (target string, err error)
}

// DNSResolver is a CNAMEResolver backed by a raw DNS query against a
// configured nameserver.
type DNSResolver struct {
	Nameserver string
	Client     *dns.Client
}

// NewDNSResolver builds a DNSResolver with a sane default dns.Client timeout.
func NewDNSResolver(nameserver string) *DNSResolver {
	return &DNSResolver{
		Nameserver: nameserver,
		Client:     &dns.Client{Timeout: 5 * time.Second},
	}
}

// LookupCNAME issues a CNAME query and returns the target name, or an empty
// string if no CNAME record exists for the domain.
func (r *DNSResolver) LookupCNAME(ctx context.Context, domain string) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeCNAME)

	in, _, err := r.Client.ExchangeContext(ctx, msg, r.Nameserver)
	if err != nil {
		return "", fmt.Errorf("querying CNAME for %s: %w", domain, err)
	}

	for _, rr := range in.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			return cname.Target, nil
		}
	}
	return "", nil
}

// ValidateCNAME asserts that every domain has a CNAME record pointing at
// ownerTarget, the well-known broker-owned target. It fails bad-request
// naming the first offending domain.
func ValidateCNAME(ctx context.Context, resolver CNAMEResolver, domains []string, ownerTarget string) error {
	want := strings.TrimSuffix(strings.ToLower(ownerTarget), ".")

	for _, domain := range domains {
		target, err := resolver.LookupCNAME(ctx, domain)
		if err != nil {
			return apierrors.NewBadRequestError(fmt.Sprintf("could not verify CNAME for %s: %s", domain, err))
		}
		got := strings.TrimSuffix(strings.ToLower(target), ".")
		if got == "" || got != want {
			return apierrors.NewBadRequestError(fmt.Sprintf("%s does not have a CNAME record pointing to %s", domain, ownerTarget))
		}
	}
	return nil
}
