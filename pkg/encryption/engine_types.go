package encryption

import "errors"

const (
	// Encryption constants
	KeySize          = 32     // AES-256
	NonceSize        = 12     // GCM standard nonce size
	TagSize          = 16     // GCM authentication tag size
	SaltSize         = 32     // Salt for PBKDF2
	PBKDF2Iterations = 100000 // shared by every node deriving the cluster key

	// ClusterSaltLabel seeds the fixed salt shared by every node so that
	// the same key material derives the same key fleet-wide
	ClusterSaltLabel = "cluso-sensornet/cluster-key/v1"

	// DevKeyMaterial is used when no key material is configured
	DevKeyMaterial = "sensornet-development-key"

	// rawKeyPrefix marks key material given directly as 64 hex characters
	rawKeyPrefix = "hex:"
)

// Encryption errors. ErrAuthenticationFailed is the confidentiality error
// surfaced to callers when a payload fails to decrypt or verify.
var (
	ErrInvalidKey           = errors.New("invalid encryption key")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrAuthenticationFailed = errors.New("authentication failed - data may be tampered")
	ErrEmptyKeyMaterial     = errors.New("key material cannot be empty")
)
