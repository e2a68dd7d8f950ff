// Package privacy provides field-level encryption for sensitive data at rest.
//
// Application code works with plaintext; the persistence layer passes every
// marked column through a Cipher on its way to and from the database. Two
// independent key domains keep blast radius separated:
//
//   - DomainField: general PII (names, birth dates, notes, health answers)
//   - DomainToken: OAuth access and refresh tokens
//
// A ciphertext produced under one domain can never be decrypted under the
// other. Keys are supplied once at process start and validated eagerly;
// a missing or malformed key is a startup failure, not a per-call one.
//
// # Envelope Format
//
// Each value is encrypted with AES-256-GCM under a fresh random nonce and
// stored as a self-describing string:
//
//	v1:base64(nonce || ciphertext || tag)
//
// Encrypting the same plaintext twice yields different envelopes, so equal
// column values cannot be correlated across rows. Columns holding envelopes
// should be sized to 2x the plaintext maximum plus EnvelopeOverhead bytes.
//
// # Example Usage
//
//	cipher, err := privacy.NewCipher(privacy.Keys{
//	    Field: fieldKey, // 32 bytes
//	    Token: tokenKey, // 32 bytes
//	})
//	if err != nil {
//	    log.Fatal(err) // *privacy.ConfigurationError
//	}
//	env, _ := cipher.Encrypt(privacy.DomainField, "Jeanne")
//	name, _ := cipher.Decrypt(privacy.DomainField, env)
package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Domain names a purpose-scoped encryption key.
type Domain string

const (
	// DomainField encrypts general PII columns.
	DomainField Domain = "field"

	// DomainToken encrypts OAuth access and refresh tokens.
	DomainToken Domain = "token"
)

const (
	// KeySize is the required key length, in bytes (AES-256).
	KeySize = 32

	nonceSize = 12
	tagSize   = 16

	// EnvelopePrefix marks an encrypted envelope value.
	EnvelopePrefix = "v1:"

	// EnvelopeOverhead is the fixed per-value expansion beyond the base64
	// growth of the plaintext itself. Used for column sizing.
	EnvelopeOverhead = len(EnvelopePrefix) + (nonceSize+tagSize+2)*4/3
)

// ConfigurationError reports missing or malformed key material.
type ConfigurationError struct {
	Domain Domain
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("privacy: %s key configuration invalid: %s", e.Domain, e.Reason)
}

// DecryptionError reports an envelope that could not be opened: wrong key
// domain, truncated or malformed data, or an authentication tag mismatch.
// The stored value must be treated as unreadable; retrying cannot help.
type DecryptionError struct {
	Domain Domain
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("privacy: %s decrypt failed: %s", e.Domain, e.Reason)
}

// Keys holds the raw key material for both domains.
type Keys struct {
	Field []byte
	Token []byte
}

// KeysFromBase64 decodes base64-encoded key material as supplied via
// environment configuration.
func KeysFromBase64(fieldKey, tokenKey string) (Keys, error) {
	field, err := base64.StdEncoding.DecodeString(fieldKey)
	if err != nil {
		return Keys{}, &ConfigurationError{Domain: DomainField, Reason: "not valid base64"}
	}
	token, err := base64.StdEncoding.DecodeString(tokenKey)
	if err != nil {
		return Keys{}, &ConfigurationError{Domain: DomainToken, Reason: "not valid base64"}
	}
	return Keys{Field: field, Token: token}, nil
}

// GenerateKey returns a random 32-byte key suitable for either domain.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Cipher performs authenticated encryption per domain. It is immutable after
// construction and safe for concurrent use from any number of requests.
type Cipher struct {
	aeads map[Domain]cipher.AEAD
}

// NewCipher validates the key material for both domains and builds the AEAD
// instances once. Fails with *ConfigurationError on any invalid key.
func NewCipher(keys Keys) (*Cipher, error) {
	c := &Cipher{aeads: make(map[Domain]cipher.AEAD, 2)}
	for domain, key := range map[Domain][]byte{
		DomainField: keys.Field,
		DomainToken: keys.Token,
	} {
		if len(key) == 0 {
			return nil, &ConfigurationError{Domain: domain, Reason: "key material missing"}
		}
		if len(key) != KeySize {
			return nil, &ConfigurationError{
				Domain: domain,
				Reason: fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)),
			}
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, &ConfigurationError{Domain: domain, Reason: err.Error()}
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, &ConfigurationError{Domain: domain, Reason: err.Error()}
		}
		c.aeads[domain] = aead
	}
	return c, nil
}

func (c *Cipher) aead(domain Domain) (cipher.AEAD, error) {
	aead, ok := c.aeads[domain]
	if !ok {
		return nil, &ConfigurationError{Domain: domain, Reason: "unknown domain"}
	}
	return aead, nil
}

// Encrypt seals plaintext under the domain key and returns a storable
// envelope. A fresh nonce is drawn per call, so repeated encryption of the
// same plaintext yields different envelopes.
func (c *Cipher) Encrypt(domain Domain, plaintext string) (string, error) {
	aead, err := c.aead(domain)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("privacy: nonce generation failed: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt under the same domain.
// Fails with *DecryptionError on any malformed, foreign-domain, or tampered
// input; it never returns altered plaintext.
func (c *Cipher) Decrypt(domain Domain, envelope string) (string, error) {
	aead, err := c.aead(domain)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(envelope, EnvelopePrefix) {
		return "", &DecryptionError{Domain: domain, Reason: "unrecognized envelope format"}
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope[len(EnvelopePrefix):])
	if err != nil {
		return "", &DecryptionError{Domain: domain, Reason: "envelope is not valid base64"}
	}
	if len(sealed) < nonceSize+tagSize {
		return "", &DecryptionError{Domain: domain, Reason: "envelope truncated"}
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", &DecryptionError{Domain: domain, Reason: "integrity check failed"}
	}
	return string(plaintext), nil
}

// EncryptPtr encrypts an optional value. A nil plaintext maps to nil
// storage; no envelope is produced for absent values.
func (c *Cipher) EncryptPtr(domain Domain, plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	env, err := c.Encrypt(domain, *plaintext)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// DecryptPtr decrypts an optional stored value. Nil storage maps to nil.
func (c *Cipher) DecryptPtr(domain Domain, envelope *string) (*string, error) {
	if envelope == nil {
		return nil, nil
	}
	plain, err := c.Decrypt(domain, *envelope)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}
