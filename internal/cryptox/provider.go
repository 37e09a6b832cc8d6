// Package cryptox implements the account identity and crypto provider:
// key pair lifecycle, signatures, session-key encryption and asymmetric
// session-key wrapping.
//
// Signatures are Ed25519ph over a SHA-512 digest, so one-shot signatures and
// the incremental SignatureWriter produce interchangeable results. Session
// keys are wrapped for a recipient with an anonymous X25519 sealed box, and
// bulk data is encrypted with AES-256-GCM.
//
// An account's identity is its public key string, which carries both the
// signing and the key-agreement public keys.
package cryptox

import (
	"crypto"
	"io"
)

// Verifier checks a signature made by the holder of publicKey.
type Verifier interface {
	IsSignatureValid(publicKey string, data, signature []byte) bool
}

// Provider is the capability set shared by every crypto implementation.
// Implementations must be safe for concurrent use.
type Provider interface {
	Verifier

	HasKeyPair() bool
	CreateKeyPair() error
	ClearKeyPair()
	WriteKeyPair(w io.Writer, passphrase []byte) error
	ReadKeyPair(r io.Reader, passphrase []byte) error

	// PublicKeyString returns "" when no key pair is loaded.
	PublicKeyString() string

	CreateSignature(data []byte) ([]byte, error)
	NewSignatureWriter() (*SignatureWriter, error)

	CreateSessionKey() ([]byte, error)
	Encrypt(dst io.Writer, src io.Reader, sessionKey []byte) error
	Decrypt(dst io.Writer, src io.Reader, sessionKey []byte) error
	EncryptSessionKey(sessionKey []byte, publicKey string) ([]byte, error)
	DecryptSessionKey(wrapped []byte) ([]byte, error)

	// Signer exposes the signing key for standard token formats.
	Signer() (crypto.Signer, error)
}
