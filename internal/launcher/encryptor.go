package launcher

import "io"

// Encryptor seals vault blobs at rest.
// Encryption uses the public key only, so puts need no operator input.
// Reading sealed blobs requires unlocking the private key with a passphrase,
// which yields a DecryptionContext held for the life of the process.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `lcore config init`.
	// Generates a key pair, stores the public key in plaintext, and encrypts
	// the private key with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
