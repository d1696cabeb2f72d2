// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and content hashing. Every hash in the ledger is computed
// over the canonical form so byte-level representation differences can
// never masquerade as tampering, and real tampering can never hide.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// HashPrefix marks the digest algorithm on every stored hash.
const HashPrefix = "sha256:"

// JCS returns the RFC 8785 canonical JSON representation of v: keys
// sorted by UTF-16 code units, no HTML escaping, shortest-form numbers.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return out, nil
}

// CanonicalHash returns the prefixed SHA-256 hex digest of the canonical
// JSON representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the prefixed SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// NormalizeText returns s in Unicode NFC form. Free-text fields are
// normalized before they enter a hash input so canonically equal strings
// hash identically.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}
