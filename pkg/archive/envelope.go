package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/icl/core/pkg/signing"
)

// Envelope kinds.
const (
	KindEvidencePack = "evidence/pack"
	KindProof        = "evidence/proof"
	KindStatement    = "report/statement"
)

// MaxPayloadSize bounds archived payloads.
const MaxPayloadSize = 10 * 1024 * 1024 // 10MB

// Envelope is the signed wrapper for archived evidence.
type Envelope struct {
	Kind          string          `json:"kind"`
	SchemaVersion string          `json:"schema_version"`
	Producer      string          `json:"producer"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
	Signature     string          `json:"signature,omitempty"`
	KeyID         string          `json:"key_id,omitempty"`
}

// Registry wraps a Store with envelope signing and verification. The
// signature covers the payload bytes.
type Registry struct {
	store   Store
	keyring *signing.Keyring
}

// NewRegistry creates a Registry. The keyring may be nil; verification then
// fails closed.
func NewRegistry(store Store, keyring *signing.Keyring) *Registry {
	return &Registry{store: store, keyring: keyring}
}

// Put signs and persists an envelope, returning the content hash of the
// stored document.
func (r *Registry) Put(ctx context.Context, envelope *Envelope) (string, error) {
	if envelope == nil {
		return "", errors.New("archive: nil envelope")
	}
	if envelope.Kind == "" {
		return "", errors.New("archive: missing envelope kind")
	}
	if len(envelope.Payload) == 0 {
		return "", errors.New("archive: missing payload")
	}
	if len(envelope.Payload) > MaxPayloadSize {
		return "", fmt.Errorf("archive: payload exceeds limit of %d bytes", MaxPayloadSize)
	}
	if envelope.CreatedAt.IsZero() {
		envelope.CreatedAt = time.Now().UTC()
	}

	if r.keyring != nil {
		keyID := r.keyring.ActiveKeyID()
		sig, err := r.keyring.Sign(keyID, envelope.Payload)
		if err != nil {
			return "", fmt.Errorf("archive: sign envelope: %w", err)
		}
		envelope.Signature = sig
		envelope.KeyID = keyID
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("archive: marshal envelope: %w", err)
	}

	return r.store.Store(ctx, data)
}

// Get retrieves and unmarshals an envelope by content hash.
func (r *Registry) Get(ctx context.Context, hash string) (*Envelope, error) {
	data, err := r.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("archive: corrupt envelope: %w", err)
	}

	return &envelope, nil
}

// Verify checks the envelope's shape and signature. Unsigned or
// unverifiable envelopes are never valid.
func (r *Registry) Verify(ctx context.Context, hash string) (bool, []string, error) {
	envelope, err := r.Get(ctx, hash)
	if err != nil {
		return false, nil, err
	}

	reasons := []string{}
	valid := true

	if envelope.Kind == "" {
		valid = false
		reasons = append(reasons, "missing kind")
	}

	if envelope.Signature == "" || envelope.KeyID == "" {
		return false, append(reasons, "missing signature or key id"), nil
	}

	if r.keyring == nil {
		return false, append(reasons, "signature keyring not configured (fail-closed)"), nil
	}

	if err := r.keyring.Verify(envelope.KeyID, envelope.Payload, envelope.Signature); err != nil {
		valid = false
		reasons = append(reasons, "signature invalid")
	}

	return valid, reasons, nil
}
