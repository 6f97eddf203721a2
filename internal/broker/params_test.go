package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banhbaoring/dns-broker/internal/models"
)

func TestParseDomains(t *testing.T) {
	got := ParseDomains("foo.example, BAR.example ,, baz.EXAMPLE")
	assert.Equal(t, []string{"foo.example", "bar.example", "baz.example"}, got)
}

func TestParseDomains_Empty(t *testing.T) {
	assert.Empty(t, ParseDomains(""))
	assert.Empty(t, ParseDomains("   ,  ,"))
}

func TestParseCookieOptions(t *testing.T) {
	all := parseCookieOptions(nil)
	assert.Equal(t, models.CookiePolicyAll, all.policy)
	assert.Empty(t, all.cookies)

	empty := ""
	none := parseCookieOptions(&empty)
	assert.Equal(t, models.CookiePolicyNone, none.policy)
	assert.Empty(t, none.cookies)

	star := "*"
	allExplicit := parseCookieOptions(&star)
	assert.Equal(t, models.CookiePolicyAll, allExplicit.policy)
	assert.Empty(t, allExplicit.cookies)

	list := "session_id, csrf_token"
	whitelist := parseCookieOptions(&list)
	assert.Equal(t, models.CookiePolicyWhitelist, whitelist.policy)
	assert.Equal(t, []string{"session_id", "csrf_token"}, whitelist.cookies)
}

func TestParseHeaderOptions(t *testing.T) {
	assert.Empty(t, parseHeaderOptions(nil))

	raw := "x-forwarded-proto, x-custom-header"
	got := parseHeaderOptions(&raw)
	assert.Equal(t, []string{"x-forwarded-proto", "x-custom-header"}, got)
}

func TestNormalizeHeaders_Idempotent(t *testing.T) {
	once := normalizeHeaders([]string{"host", "Accept", "host", " x-forwarded-proto "})
	twice := normalizeHeaders(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"ACCEPT", "HOST", "X-FORWARDED-PROTO"}, once)
}

func TestSameDomains(t *testing.T) {
	assert.True(t, sameDomains([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameDomains([]string{"a", "b"}, []string{"a", "c"}))
	assert.False(t, sameDomains([]string{"a"}, []string{"a", "b"}))
}
