package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

// DeriveMasterKey stretches a passphrase into a 32-byte AES key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// deriveLightKey is the cheap variant used by MockSecurity.
func deriveLightKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 1024, 1, 32)
}

// SealAESGCM encrypts plaintext with AES-GCM under key and returns
// nonce || ciphertext. The key must be 16, 24 or 32 bytes long.
func SealAESGCM(key, plaintext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenAESGCM reverses SealAESGCM.
func OpenAESGCM(key, sealed []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aesgcm.NonceSize()+aesgcm.Overhead() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aesgcm.NonceSize()], sealed[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
