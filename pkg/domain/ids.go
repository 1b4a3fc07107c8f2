// Package domain holds the primitive identifier types shared across the
// ledger. Parsing functions enforce validity at trust boundaries so the rest
// of the code can assume well-formed values.
package domain

import (
	"encoding/hex"
	"strings"

	dErrors "ledgerguard/pkg/domain-errors"
)

// DigestSize is the fixed length of every content digest and generated rule
// identifier, in bytes.
const DigestSize = 32

// Digest is a fixed-length commitment to off-ledger content. It doubles as
// the storage key for records indexed by a hashed natural identifier.
type Digest [DigestSize]byte

// ParseDigest decodes a hex-encoded digest, with or without a 0x prefix.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, dErrors.New(dErrors.CodeInvalidArgument, "digest is not valid hex")
	}
	if len(raw) != DigestSize {
		return Digest{}, dErrors.New(dErrors.CodeInvalidArgument, "digest must be 32 bytes")
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the lowercase hex encoding without a prefix.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the all-zero value. The zero digest is
// never a valid content commitment.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Short returns the first eight hex characters, for log lines and feed
// entries where the full digest is noise.
func (d Digest) Short() string {
	return d.String()[:8]
}

// MarshalText encodes the digest as lowercase hex so JSON payloads carry
// strings, not byte arrays.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// RuleID identifies an escrow rule. It is generated by the ledger, never
// supplied by callers.
type RuleID [DigestSize]byte

// ParseRuleID decodes a hex-encoded rule identifier.
func ParseRuleID(s string) (RuleID, error) {
	d, err := ParseDigest(s)
	if err != nil {
		return RuleID{}, dErrors.New(dErrors.CodeInvalidArgument, "rule id is not a valid identifier")
	}
	return RuleID(d), nil
}

func (r RuleID) String() string {
	return hex.EncodeToString(r[:])
}

func (r RuleID) IsZero() bool {
	return r == RuleID{}
}

func (r RuleID) Short() string {
	return r.String()[:8]
}

func (r RuleID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RuleID) UnmarshalText(text []byte) error {
	parsed, err := ParseRuleID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Address identifies a party on the ledger. Comparison is case-insensitive;
// NormalizeAddress is applied at every boundary so stored addresses compare
// byte-for-byte.
type Address string

// NormalizeAddress lowercases and trims an address.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is empty, the null identity.
func (a Address) IsZero() bool {
	return a == ""
}

// Equal compares two addresses case-insensitively.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}
