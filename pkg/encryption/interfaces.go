package encryption

// Sealer encrypts and authenticates raw bytes.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt returns ErrAuthenticationFailed if the data has been tampered with.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// TextSealer seals bytes into text that is safe on a line-oriented wire.
// Packages that carry ciphertext in requests depend on this instead of Engine.
type TextSealer interface {
	EncryptString(plaintext []byte) (string, error)
	DecryptString(encoded string) ([]byte, error)
}

var (
	_ Sealer     = (*Engine)(nil)
	_ TextSealer = (*Engine)(nil)
)
