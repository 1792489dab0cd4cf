// Package vault provides symmetric encryption for integration credentials at
// rest. Keys are derived from a master secret with PBKDF2-SHA256 and a fixed
// salt, so every service instance sharing the master secret can decrypt data
// encrypted elsewhere. Payloads are sealed with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize = 32 // AES-256

	// Iterations is the PBKDF2 work factor. Derivation is intentionally
	// slow; the derived key is computed once per Vault and cached.
	Iterations = 100_000
)

// keySalt is fixed on purpose: the same master secret must always derive the
// same key across processes. Uniqueness per message comes from the GCM nonce.
var keySalt = []byte("cascade.credential.vault.v1")

// ErrDecryption is returned when a ciphertext is malformed, tampered with, or
// encrypted under a different master secret. It is distinct from not-found
// and validation errors so callers can tell a bad key from missing data.
var ErrDecryption = errors.New("credential decryption failed")

// ErrEncryption is returned when sealing a payload fails.
var ErrEncryption = errors.New("credential encryption failed")

// defaultSensitiveHints match credential field names whose values must be
// masked for display.
var defaultSensitiveHints = []string{"password", "secret", "token", "key", "credential", "auth"}

// Vault encrypts and decrypts credential field maps.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the master secret and prepares the
// cipher. The derivation cost is paid once here.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, errors.New("vault master secret is required")
	}

	aead, err := buildAEAD(masterSecret)
	if err != nil {
		return nil, err
	}

	return &Vault{aead: aead}, nil
}

func buildAEAD(masterSecret string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(masterSecret), keySalt, Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return aead, nil
}

// Encrypt serializes the fields to canonical JSON and seals them. The output
// is nonce-prefixed ciphertext, opaque to callers.
func (v *Vault) Encrypt(fields map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(fields)
	if err != nil {
		// The payload is never included in the error.
		return nil, fmt.Errorf("%w: unserializable fields", ErrEncryption)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation", ErrEncryption)
	}

	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed or tampered input
// fails with ErrDecryption; garbage is never returned silently.
func (v *Vault) Decrypt(blob []byte) (map[string]any, error) {
	nonceSize := v.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}

	var fields map[string]any
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, ErrDecryption
	}

	return fields, nil
}

// RotateKey re-encrypts a blob from the old master secret to the new one
// without the plaintext ever leaving this function.
func RotateKey(oldSecret, newSecret string, blob []byte) ([]byte, error) {
	oldVault, err := New(oldSecret)
	if err != nil {
		return nil, err
	}

	fields, err := oldVault.Decrypt(blob)
	if err != nil {
		return nil, err
	}

	newVault, err := New(newSecret)
	if err != nil {
		return nil, err
	}

	return newVault.Encrypt(fields)
}

// MaskForDisplay renders fields for UI and log display. Values of keys that
// match a sensitive-name heuristic (or any caller-provided hint) keep only
// their first and last two characters. Never use the output for execution.
func MaskForDisplay(fields map[string]any, hints []string) map[string]string {
	masked := make(map[string]string, len(fields))

	for key, value := range fields {
		text := fmt.Sprintf("%v", value)

		if isSensitiveKey(key, hints) {
			masked[key] = maskValue(text)
		} else {
			masked[key] = text
		}
	}

	return masked
}

func isSensitiveKey(key string, hints []string) bool {
	lower := strings.ToLower(key)

	for _, hint := range defaultSensitiveHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}

	for _, hint := range hints {
		if hint != "" && strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}

	return false
}

func maskValue(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}

	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}
