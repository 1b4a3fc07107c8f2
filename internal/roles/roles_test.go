package roles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ledgerguard/internal/roles"
	"ledgerguard/pkg/domain"
)

func TestResolve(t *testing.T) {
	issuer := domain.Address("0xaaa1")
	claimant := domain.Address("0xbbb2")

	tests := []struct {
		name string
		addr domain.Address
		want roles.Role
	}{
		{"issuer address", "0xaaa1", roles.RoleIssuer},
		{"claimant address", "0xbbb2", roles.RoleClaimant},
		{"issuer mixed case", "0xAAA1", roles.RoleIssuer},
		{"claimant mixed case", "0xBbB2", roles.RoleClaimant},
		{"stranger", "0xccc3", roles.RoleUnauthorized},
		{"empty address", "", roles.RoleUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roles.Resolve(tt.addr, issuer, claimant))
		})
	}
}

func TestResolveIssuerWinsWhenPartiesCollide(t *testing.T) {
	both := domain.Address("0xaaa1")
	assert.Equal(t, roles.RoleIssuer, roles.Resolve(both, both, both))
}

func TestCanClaim(t *testing.T) {
	issuer := domain.Address("0xaaa1")
	claimant := domain.Address("0xbbb2")

	assert.True(t, roles.CanClaim(claimant, issuer, claimant))
	assert.False(t, roles.CanClaim(issuer, issuer, claimant))
	assert.False(t, roles.CanClaim("0xccc3", issuer, claimant))
	assert.False(t, roles.CanClaim("", issuer, ""))
}

func TestCanClaimWhenIssuerIsAlsoClaimant(t *testing.T) {
	// Resolve classifies the collision as issuer, but claiming hinges only
	// on matching the claimant side.
	both := domain.Address("0xaaa1")
	assert.True(t, roles.CanClaim(both, both, both))
}
