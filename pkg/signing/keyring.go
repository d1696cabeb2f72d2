// Package signing provides the HMAC signing layer for ledger entries.
// Per-key-id signing keys are derived from a single master secret with
// HKDF-SHA256, so key rotation never requires redistributing secrets:
// verification of old entries only needs the master secret and the key id
// recorded on the entry.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptyMaster  = errors.New("signing: empty master secret")
	ErrEmptyKeyID   = errors.New("signing: empty key id")
	ErrBadSignature = errors.New("signing: signature mismatch")
	ErrMalformedSig = errors.New("signing: malformed signature encoding")
)

const derivedKeySize = 32

// Keyring derives and caches per-key-id HMAC keys.
type Keyring struct {
	mu     sync.Mutex
	master []byte
	active string
	keys   map[string][]byte
}

// NewKeyring creates a keyring over the master secret. activeKeyID names
// the key used for new signatures.
func NewKeyring(master []byte, activeKeyID string) (*Keyring, error) {
	if len(master) == 0 {
		return nil, ErrEmptyMaster
	}
	if activeKeyID == "" {
		return nil, ErrEmptyKeyID
	}
	secret := make([]byte, len(master))
	copy(secret, master)
	return &Keyring{
		master: secret,
		active: activeKeyID,
		keys:   make(map[string][]byte),
	}, nil
}

// ActiveKeyID returns the key id used for new signatures.
func (k *Keyring) ActiveKeyID() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// Rotate switches new signatures to keyID. Existing entries keep
// verifying under their recorded key ids.
func (k *Keyring) Rotate(keyID string) error {
	if keyID == "" {
		return ErrEmptyKeyID
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = keyID
	return nil
}

func (k *Keyring) derive(keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, ErrEmptyKeyID
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.keys[keyID]; ok {
		return key, nil
	}
	r := hkdf.New(sha256.New, k.master, nil, []byte("icl/ledger-entry/"+keyID))
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("signing: derive key %s: %w", keyID, err)
	}
	k.keys[keyID] = key
	return key, nil
}

// Sign returns the hex HMAC-SHA256 of msg under the key derived for keyID.
func (k *Keyring) Sign(keyID string, msg []byte) (string, error) {
	key, err := k.derive(keyID)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks sig against msg under keyID in constant time.
func (k *Keyring) Verify(keyID string, msg []byte, sig string) error {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSig, err)
	}
	key, err := k.derive(keyID)
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	if !hmac.Equal(mac.Sum(nil), got) {
		return fmt.Errorf("%w: key %s", ErrBadSignature, keyID)
	}
	return nil
}
