// Package roles maps caller addresses onto escrow participant roles.
package roles

import "ledgerguard/pkg/domain"

// Role names a participant's relationship to an escrow rule.
type Role string

const (
	RoleIssuer       Role = "issuer"
	RoleClaimant     Role = "claimant"
	RoleUnauthorized Role = "unauthorized"
)

// Resolve classifies addr against a rule's parties. Comparison is
// case-insensitive; issuer wins when the same address plays both parts.
func Resolve(addr, issuer, claimant domain.Address) Role {
	switch {
	case addr.IsZero():
		return RoleUnauthorized
	case addr.Equal(issuer):
		return RoleIssuer
	case addr.Equal(claimant):
		return RoleClaimant
	default:
		return RoleUnauthorized
	}
}

// CanClaim reports whether addr may claim a rule with the given parties.
// The claimant side is checked directly rather than through Resolve, so an
// issuer escrowing to itself can still claim.
func CanClaim(addr, issuer, claimant domain.Address) bool {
	return !addr.IsZero() && addr.Equal(claimant)
}
