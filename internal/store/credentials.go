package store

import (
	"crypto/rand"
	"encoding/base64"

	"easypath/internal/errs"

	"golang.org/x/crypto/nacl/secretbox"
)

// CredentialBox encrypts bot tokens at rest using a symmetric key held only
// in memory, per SPEC_FULL §5 EXPANSION. golang.org/x/crypto is already an
// indirect dependency (pulled in transitively by the provider SDKs); this
// promotes it to a direct one for nacl/secretbox.
type CredentialBox struct {
	key [32]byte
}

// NewCredentialBox builds a box from a 32-byte key. Shorter/longer keys are
// rejected rather than silently truncated or padded.
func NewCredentialBox(key []byte) (*CredentialBox, error) {
	if len(key) != 32 {
		return nil, errs.New(errs.InvalidInput, "credential key must be exactly 32 bytes")
	}
	var b CredentialBox
	copy(b.key[:], key)
	return &b, nil
}

// Seal encrypts plaintext (a bot token) into a base64 string safe to store
// alongside the rest of a BotConfig record.
func (b *CredentialBox) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errs.Wrap(errs.StoreFailure, "generate credential nonce", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value previously produced by Seal.
func (b *CredentialBox) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.Wrap(errs.ParseFailure, "decode sealed credential", err)
	}
	if len(raw) < 24 {
		return "", errs.New(errs.ParseFailure, "sealed credential too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", errs.New(errs.InvariantViolation, "credential decryption failed: wrong key or tampered data")
	}
	return string(opened), nil
}
