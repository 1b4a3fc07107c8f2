// Package hashing provides the content hasher used to commit off-ledger
// payloads on-ledger and to derive storage keys from natural identifiers.
//
// The hasher is an interface so tests can swap in a deterministic stub.
package hashing

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"ledgerguard/pkg/domain"
)

// Hasher produces fixed-length digests over canonicalized content.
type Hasher interface {
	// DigestString hashes a natural-language identifier (wallet id, tx id)
	// for use as a storage key.
	DigestString(s string) domain.Digest
	// DigestFields hashes a structured payload canonically: keys sorted,
	// values JSON-encoded. Two payloads with the same fields in any order
	// produce the same digest.
	DigestFields(fields map[string]any) (domain.Digest, error)
	// Chain extends a hash chain: digest of prev followed by payload.
	Chain(prev domain.Digest, payload []byte) domain.Digest
}

// SHA256 is the production hasher.
type SHA256 struct{}

func NewSHA256() SHA256 { return SHA256{} }

func (SHA256) DigestString(s string) domain.Digest {
	return sha256.Sum256([]byte(s))
}

func (SHA256) DigestFields(fields map[string]any) (domain.Digest, error) {
	canonical, err := CanonicalJSON(fields)
	if err != nil {
		return domain.Digest{}, err
	}
	return sha256.Sum256(canonical), nil
}

func (SHA256) Chain(prev domain.Digest, payload []byte) domain.Digest {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(payload)
	var d domain.Digest
	copy(d[:], h.Sum(nil))
	return d
}

// CanonicalJSON serializes a flat field map deterministically: keys sorted
// lexicographically, values encoded with encoding/json. Nested maps are not
// supported; payloads committed on-ledger are flat by construction.
func CanonicalJSON(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		vb, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", k, err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}
