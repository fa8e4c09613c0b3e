// Package secrets seals integration credentials for storage at rest.
// Credentials live in the integrations table as an opaque blob; only the
// connector cache unseals them, immediately before building a connector.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrKeyInvalid indicates the configured sealing key is malformed
	ErrKeyInvalid = errors.New("secrets: sealing key must be 32 hex-encoded bytes")
	// ErrUnsealFailed indicates the blob could not be authenticated
	ErrUnsealFailed = errors.New("secrets: unseal failed")
	// ErrInvalidBlob indicates the sealed blob is malformed
	ErrInvalidBlob = errors.New("secrets: invalid sealed blob")
)

// derivationContext binds derived keys to this use; rotating the context
// invalidates every stored blob.
const derivationContext = "truthsource-credential-sealing"

// Sealer seals and unseals credential maps
type Sealer interface {
	// Seal encrypts a credential map into an opaque storable string
	Seal(credentials map[string]string) (string, error)

	// Unseal decrypts a stored blob back into a credential map
	Unseal(blob string) (map[string]string, error)
}

// CredentialSealer implements Sealer with AES-GCM. The AEAD key is derived
// from the configured master key with HKDF-SHA256. A random nonce is
// prepended to each blob, so sealing the same credentials twice yields
// different blobs.
type CredentialSealer struct {
	aead cipher.AEAD
}

// NewCredentialSealer creates a sealer from a hex-encoded 256-bit master
// key. An empty key returns a disabled sealer that stores plain JSON,
// acceptable only in development.
func NewCredentialSealer(hexKey string) (*CredentialSealer, error) {
	if hexKey == "" {
		return &CredentialSealer{}, nil
	}

	masterKey, err := hex.DecodeString(hexKey)
	if err != nil || len(masterKey) != 32 {
		return nil, ErrKeyInvalid
	}

	derived, err := deriveKey(masterKey, []byte(derivationContext), 32)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create GCM: %w", err)
	}

	return &CredentialSealer{aead: aead}, nil
}

// deriveKey derives a key using HKDF-SHA256
func deriveKey(secret, context []byte, keyLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, context)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Enabled returns true when sealing is active
func (s *CredentialSealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal encrypts a credential map into a base64 blob
func (s *CredentialSealer) Seal(credentials map[string]string) (string, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("secrets: marshal credentials: %w", err)
	}

	if !s.Enabled() {
		return string(plaintext), nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal decrypts a stored blob back into a credential map
func (s *CredentialSealer) Unseal(blob string) (map[string]string, error) {
	if blob == "" {
		return map[string]string{}, nil
	}

	var plaintext []byte
	if !s.Enabled() {
		plaintext = []byte(blob)
	} else {
		data, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, ErrInvalidBlob
		}
		nonceSize := s.aead.NonceSize()
		if len(data) < nonceSize+s.aead.Overhead() {
			return nil, ErrInvalidBlob
		}
		plaintext, err = s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
		if err != nil {
			return nil, ErrUnsealFailed
		}
	}

	var credentials map[string]string
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, ErrInvalidBlob
	}
	return credentials, nil
}

// GenerateKey generates a random sealing key in the configured hex format
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("secrets: generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Ensure CredentialSealer implements Sealer
var _ Sealer = (*CredentialSealer)(nil)
