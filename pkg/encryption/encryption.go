// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package encryption provides field-level encryption for sensitive
// database values such as passwords and API keys.
//
// Values are encrypted with AES-256-GCM, base64-encoded and marked with
// an "ENC:" prefix. The key is loaded from a base64-encoded environment
// variable or a mounted secrets file; with neither present the manager
// is unconfigured and passes values through untouched, so a proxy can
// run without a key against plaintext data.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// nonceSize is the GCM-recommended 96-bit nonce.
	nonceSize = 12

	// Prefix marks encrypted values in storage.
	Prefix = "ENC:"

	// DefaultEnvVar names the environment variable holding the
	// base64-encoded key.
	DefaultEnvVar = "PROXY_ENCRYPTION_KEY"
	// DefaultSecretsFile is where container runtimes mount the raw key.
	DefaultSecretsFile = "/run/secrets/encryption_key"
)

// Manager holds the field-encryption key. A zero key means unconfigured:
// encryption and decryption become pass-through no-ops.
type Manager struct {
	key []byte
}

// NewManager loads the key from DefaultEnvVar, then DefaultSecretsFile.
// Unusable key material is skipped silently; the manager just stays
// unconfigured.
func NewManager() *Manager {
	return NewManagerFromSources(DefaultEnvVar, DefaultSecretsFile)
}

// NewManagerFromSources loads the key from the named environment
// variable (base64-encoded), then from a raw-bytes secrets file.
func NewManagerFromSources(envVar, secretsFile string) *Manager {
	m := &Manager{}

	if encoded := os.Getenv(envVar); encoded != "" {
		if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == KeySize {
			m.key = key
			return m
		}
	}

	if raw, err := os.ReadFile(secretsFile); err == nil {
		if key := bytes.TrimSpace(raw); len(key) == KeySize {
			m.key = key
		}
	}
	return m
}

// Configured reports whether a key is loaded.
func (m *Manager) Configured() bool {
	return len(m.key) == KeySize
}

// Key returns the loaded key, or nil.
func (m *Manager) Key() []byte {
	return m.key
}

// SetKey installs a key programmatically. Used by tests and by tooling
// that generates instance keys.
func (m *Manager) SetKey(key []byte) error {
	if key != nil && len(key) != KeySize {
		return fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	m.key = key
	return nil
}

// EncryptString encrypts a value with AES-256-GCM. Empty values, values
// already carrying the prefix, and calls on an unconfigured manager
// return the input unchanged.
func (m *Manager) EncryptString(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) || !m.Configured() {
		return plaintext, nil
	}

	aead, err := m.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Values without the prefix are
// handed back as-is so plaintext rows from before a key was configured
// stay readable.
func (m *Manager) DecryptString(value string) (string, error) {
	if value == "" || !IsEncrypted(value) || !m.Configured() {
		return value, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("invalid encrypted data: %w", err)
	}
	aead, err := m.aead()
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+aead.Overhead() {
		return "", fmt.Errorf("encrypted data too short")
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}
	return string(plaintext), nil
}

func (m *Manager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("building gcm: %w", err)
	}
	return aead, nil
}

// IsEncrypted reports whether a value carries the encryption prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// GenerateKey returns a fresh random key, base64-encoded for the
// environment variable.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// NewToken returns a URL-safe random token, the shape used for admin and
// tenant API keys.
func NewToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
