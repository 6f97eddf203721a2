package validators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCNAMEResolver struct {
	targets map[string]string
	err     error
}

func (f *fakeCNAMEResolver) LookupCNAME(_ context.Context, domain string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.targets[domain], nil
}

func TestValidateCNAME_AllMatch(t *testing.T) {
	resolver := &fakeCNAMEResolver{targets: map[string]string{
		"foo.example": "broker.example.net.",
		"bar.example": "broker.example.net",
	}}

	err := ValidateCNAME(context.Background(), resolver, []string{"foo.example", "bar.example"}, "broker.example.net")
	require.NoError(t, err)
}

func TestValidateCNAME_MissingRecord(t *testing.T) {
	resolver := &fakeCNAMEResolver{targets: map[string]string{"foo.example": ""}}

	err := ValidateCNAME(context.Background(), resolver, []string{"foo.example"}, "broker.example.net")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foo.example")
}

func TestValidateCNAME_WrongTarget(t *testing.T) {
	resolver := &fakeCNAMEResolver{targets: map[string]string{"foo.example": "someone-else.example."}}

	err := ValidateCNAME(context.Background(), resolver, []string{"foo.example"}, "broker.example.net")
	require.Error(t, err)
}

func TestValidateCNAME_ResolverError(t *testing.T) {
	resolver := &fakeCNAMEResolver{err: errors.New("dns timeout")}

	err := ValidateCNAME(context.Background(), resolver, []string{"foo.example"}, "broker.example.net")
	require.Error(t, err)
}
