package validators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banhbaoring/dns-broker/internal/models"
)

type fakeDomainOwnerLookup struct {
	owners map[string]*models.ServiceInstance
}

func (f *fakeDomainOwnerLookup) FindActiveByDomain(_ context.Context, domain string) (*models.ServiceInstance, error) {
	return f.owners[domain], nil
}

func TestValidateUniqueDomains_NoConflict(t *testing.T) {
	lookup := &fakeDomainOwnerLookup{owners: map[string]*models.ServiceInstance{}}

	err := ValidateUniqueDomains(context.Background(), lookup, []string{"foo.example"}, "")
	require.NoError(t, err)
}

func TestValidateUniqueDomains_ConflictWithOtherInstance(t *testing.T) {
	lookup := &fakeDomainOwnerLookup{owners: map[string]*models.ServiceInstance{
		"foo.example": {ID: "other-instance"},
	}}

	err := ValidateUniqueDomains(context.Background(), lookup, []string{"foo.example"}, "this-instance")
	require.Error(t, err)
}

func TestValidateUniqueDomains_ExcludesOwnInstance(t *testing.T) {
	lookup := &fakeDomainOwnerLookup{owners: map[string]*models.ServiceInstance{
		"foo.example": {ID: "this-instance"},
	}}

	err := ValidateUniqueDomains(context.Background(), lookup, []string{"foo.example"}, "this-instance")
	require.NoError(t, err)
}
