// Package encryption is the confidentiality layer between sensor nodes:
// AES-256-GCM with a key every node derives from shared key material.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Engine provides AES-256-GCM encryption and decryption.
// The AEAD is built once; Engine is safe for concurrent use.
type Engine struct {
	aead cipher.AEAD
	aad  []byte // authenticated, not encrypted; binds ciphertext to a purpose
}

// NewEngine creates a new encryption engine with the given 32 byte key
func NewEngine(key []byte) (*Engine, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Engine{aead: gcm}, nil
}

// NewEngineFromPassphrase creates an engine with a key derived from a passphrase
func NewEngineFromPassphrase(passphrase string, salt []byte) (*Engine, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes", SaltSize)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
	return NewEngine(key)
}

// NewEngineFromKeyMaterial creates the engine shared by a fleet.
// Material of the form "hex:<64 hex chars>" is used as the raw key; anything
// else is treated as a passphrase and stretched with PBKDF2 over ClusterSalt.
func NewEngineFromKeyMaterial(material string) (*Engine, error) {
	if material == "" {
		return nil, ErrEmptyKeyMaterial
	}

	if encoded, ok := strings.CutPrefix(material, rawKeyPrefix); ok {
		key, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return NewEngine(key)
	}

	return NewEngineFromPassphrase(material, ClusterSalt())
}

// ClusterSalt returns the fixed salt every node uses for key derivation
func ClusterSalt() []byte {
	sum := sha256.Sum256([]byte(ClusterSaltLabel))
	return sum[:]
}

// WithAssociatedData returns an engine sharing the key that also
// authenticates aad, so ciphertext produced for one purpose fails to open
// under another
func (e *Engine) WithAssociatedData(aad string) *Engine {
	return &Engine{aead: e.aead, aad: []byte(aad)}
}

// GenerateKey generates a cryptographically secure random encryption key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyMaterial returns fresh key material in the "hex:" form
func GenerateKeyMaterial() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return rawKeyPrefix + hex.EncodeToString(key), nil
}

// Encrypt encrypts plaintext using AES-256-GCM
// Returns: nonce + ciphertext + tag concatenated
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext+tag after the nonce
	return e.aead.Seal(nonce, nonce, plaintext, e.aad), nil
}

// Decrypt decrypts ciphertext produced by Encrypt
// Input format: nonce + ciphertext + tag concatenated
func (e *Engine) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	nonce := ciphertext[:NonceSize]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext[NonceSize:], e.aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// EncryptString encrypts plaintext and returns it base64 encoded, safe to
// embed in a text request
func (e *Engine) EncryptString(plaintext []byte) (string, error) {
	ct, err := e.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString
func (e *Engine) DecryptString(encoded string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return e.Decrypt(ct)
}
