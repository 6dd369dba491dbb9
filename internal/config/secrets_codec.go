// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package config

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/models"
)

// SecretsCodec converts secrets between their API form and the single-blob
// at-rest form stored in the catalog. With MASTER_ENCRYPTION_KEY set the blob
// is AES-256-GCM ciphertext; without it the codec refuses to store secrets
// at all. Credentials never reach the catalog in plaintext. Plaintext JSON
// blobs written by old deployments still decode, read-only.
//
// An empty secrets map encodes to "" and callers store NULL. Decoding ""
// yields an empty map, so readers never branch on presence.
type SecretsCodec struct {
	enc *CredentialEncryptor
}

// NewSecretsCodec builds a codec for the given master key. An empty key is
// not an error: the service boots, but every mutation carrying secret
// material is rejected until a key is configured.
func NewSecretsCodec(masterKey string) (*SecretsCodec, error) {
	if masterKey == "" {
		return &SecretsCodec{}, nil
	}
	enc, err := NewCredentialEncryptor(masterKey)
	if err != nil {
		return nil, err
	}
	return &SecretsCodec{enc: enc}, nil
}

// Encrypted reports whether stored secrets are encrypted at rest.
func (c *SecretsCodec) Encrypted() bool {
	return c.enc != nil
}

// EncodeSecrets serializes a secrets map into its at-rest blob. Empty maps
// encode to "". A non-empty map without a master key is refused; there is
// no plaintext fallback on the write path.
func (c *SecretsCodec) EncodeSecrets(secrets models.Secrets) (string, error) {
	if len(secrets) == 0 {
		return "", nil
	}
	if c.enc == nil {
		return "", models.ErrEncryptionNotConfigured.New("MASTER_ENCRYPTION_KEY must be set to store secrets")
	}
	blob, err := c.enc.EncryptSecrets(secrets)
	if err != nil {
		return "", models.ErrCrypto.New("failed to encrypt secrets: %v", err)
	}
	return blob, nil
}

// DecodeSecrets reverses EncodeSecrets. Plaintext JSON blobs written before a
// master key was configured still decode after one is set; the ciphertext
// format is base64 and can never begin with '{'.
func (c *SecretsCodec) DecodeSecrets(blob string) (models.Secrets, error) {
	if blob == "" {
		return models.Secrets{}, nil
	}

	if !strings.HasPrefix(strings.TrimSpace(blob), "{") {
		if c.enc == nil {
			return nil, models.ErrCrypto.New("stored secrets are encrypted but MASTER_ENCRYPTION_KEY is not set")
		}
		secrets, err := c.enc.DecryptSecrets(blob)
		if err != nil {
			return nil, models.ErrCrypto.New("invalid secrets blob or wrong MASTER_ENCRYPTION_KEY")
		}
		return secrets, nil
	}

	secrets := models.Secrets{}
	if err := json.Unmarshal([]byte(blob), &secrets); err != nil {
		return nil, models.ErrCrypto.New("stored secrets are not a JSON object: %v", err)
	}
	return secrets, nil
}

// EncryptValue encrypts a single value, such as a schedule's backup
// encryption password. Unlike whole-secret blobs there is no plaintext
// fallback; storing a recoverable password requires the master key.
func (c *SecretsCodec) EncryptValue(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if c.enc == nil {
		return "", models.ErrEncryptionNotConfigured.New("MASTER_ENCRYPTION_KEY must be set to store encryption passwords")
	}
	blob, err := c.enc.Encrypt(value)
	if err != nil {
		return "", models.ErrCrypto.New("failed to encrypt value: %v", err)
	}
	return blob, nil
}

// DecryptValue reverses EncryptValue.
func (c *SecretsCodec) DecryptValue(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	if c.enc == nil {
		return "", models.ErrEncryptionNotConfigured.New("MASTER_ENCRYPTION_KEY must be set to read stored encryption passwords")
	}
	value, err := c.enc.Decrypt(blob)
	if err != nil {
		return "", models.ErrCrypto.New("invalid value blob or wrong MASTER_ENCRYPTION_KEY")
	}
	return value, nil
}
