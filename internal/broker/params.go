package broker

import (
	"sort"
	"strings"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// Params is the normalised, provisioning-agnostic shape of the request-body
// parameters the platform sends on provision/update. Which fields are
// present, not merely their zero-ness, drives update's presence-matters
// semantics, so every CDN field is a pointer or a map: nil means "caller did
// not mention this key".
type Params struct {
	Domains *string

	Origin          *string
	Path            *string
	ForwardCookies  *string
	ForwardHeaders  *string
	InsecureOrigin  *bool
	ErrorResponses  map[string]models.ErrorResponseOverride
}

// ParseDomains splits a comma-separated domain list, trims whitespace, and
// lower-cases each token, dropping empty tokens.
func ParseDomains(raw string) []string {
	parts := strings.Split(raw, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		d := strings.ToLower(strings.TrimSpace(p))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// cookieOptions is the result of parsing the forward_cookies parameter.
type cookieOptions struct {
	policy  models.CookiePolicy
	cookies []string
}

// parseCookieOptions implements the forward_cookies parsing rules: missing
// means "all", "" means "none", "*" means "all", anything else is an
// explicit whitelist.
func parseCookieOptions(raw *string) cookieOptions {
	if raw == nil {
		return cookieOptions{policy: models.CookiePolicyAll, cookies: []string{}}
	}
	trimmed := strings.TrimSpace(*raw)
	switch trimmed {
	case "":
		return cookieOptions{policy: models.CookiePolicyNone, cookies: []string{}}
	case "*":
		return cookieOptions{policy: models.CookiePolicyAll, cookies: []string{}}
	default:
		return cookieOptions{policy: models.CookiePolicyWhitelist, cookies: splitAndTrim(trimmed)}
	}
}

// parseHeaderOptions implements the forward_headers parsing rule: missing
// means an empty list, otherwise a trimmed comma-split.
func parseHeaderOptions(raw *string) []string {
	if raw == nil {
		return []string{}
	}
	return splitAndTrim(strings.TrimSpace(*raw))
}

// normalizeHeaders upper-cases, de-duplicates, and sorts a header list.
// Idempotent: normalizing an already-normalized list returns it unchanged.
func normalizeHeaders(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		upper := strings.ToUpper(strings.TrimSpace(h))
		if upper == "" || seen[upper] {
			continue
		}
		seen[upper] = true
		out = append(out, upper)
	}
	sort.Strings(out)
	return out
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sameDomains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
