package cryptox

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"golang.org/x/crypto/nacl/box"
)

const (
	sessionKeySize = 32
	publicKeySize  = ed25519.PublicKeySize + 32
)

var signOptions = &ed25519.Options{Hash: crypto.SHA512}

type keyPair struct {
	signPriv ed25519.PrivateKey
	signPub  ed25519.PublicKey
	boxPub   *[32]byte
	boxPriv  *[32]byte
}

// Security is the production Provider.
type Security struct {
	mu      sync.RWMutex
	kp      *keyPair
	keyRand io.Reader
	kdf     func(password, salt []byte) []byte
}

func NewSecurity() *Security {
	return &Security{keyRand: rand.Reader, kdf: DeriveMasterKey}
}

func (s *Security) HasKeyPair() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kp != nil
}

func (s *Security) CreateKeyPair() error {
	material := make([]byte, keyMaterialSize)
	if _, err := io.ReadFull(s.keyRand, material); err != nil {
		return fmt.Errorf("generate key material: %w", err)
	}
	defer common.WipeByteArray(material)

	kp, err := keyPairFromMaterial(material)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.kp = kp
	s.mu.Unlock()
	return nil
}

// ClearKeyPair forgets the key pair. Signature writers and signers handed
// out earlier keep their own reference and still produce valid signatures.
func (s *Security) ClearKeyPair() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kp = nil
}

func (s *Security) keys() (*keyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kp == nil {
		return nil, common.ErrNoKeyPair
	}
	return s.kp, nil
}

func (s *Security) PublicKeyString() string {
	kp, err := s.keys()
	if err != nil {
		return ""
	}
	return encodePublicKey(kp.signPub, kp.boxPub)
}

func (s *Security) CreateSignature(data []byte) ([]byte, error) {
	kp, err := s.keys()
	if err != nil {
		return nil, err
	}
	digest := sha512.Sum512(data)
	return kp.signPriv.Sign(nil, digest[:], signOptions)
}

func (s *Security) IsSignatureValid(publicKey string, data, signature []byte) bool {
	signPub, _, err := ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	digest := sha512.Sum512(data)
	return ed25519.VerifyWithOptions(signPub, digest[:], signature, signOptions) == nil
}

func (s *Security) NewSignatureWriter() (*SignatureWriter, error) {
	kp, err := s.keys()
	if err != nil {
		return nil, err
	}
	return &SignatureWriter{h: sha512.New(), key: kp.signPriv}, nil
}

func (s *Security) CreateSessionKey() ([]byte, error) {
	key := make([]byte, sessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	return key, nil
}

func (s *Security) Encrypt(dst io.Writer, src io.Reader, sessionKey []byte) error {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	sealed, err := SealAESGCM(sessionKey, plaintext)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	_, err = dst.Write(sealed)
	return err
}

func (s *Security) Decrypt(dst io.Writer, src io.Reader, sessionKey []byte) error {
	sealed, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	plaintext, err := OpenAESGCM(sessionKey, sealed)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	_, err = dst.Write(plaintext)
	return err
}

func (s *Security) EncryptSessionKey(sessionKey []byte, publicKey string) ([]byte, error) {
	_, boxPub, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	wrapped, err := box.SealAnonymous(nil, sessionKey, boxPub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	return wrapped, nil
}

func (s *Security) DecryptSessionKey(wrapped []byte) ([]byte, error) {
	kp, err := s.keys()
	if err != nil {
		return nil, err
	}
	key, ok := box.OpenAnonymous(nil, wrapped, kp.boxPub, kp.boxPriv)
	if !ok {
		return nil, common.ErrDecryption
	}
	return key, nil
}

func (s *Security) Signer() (crypto.Signer, error) {
	kp, err := s.keys()
	if err != nil {
		return nil, err
	}
	return kp.signPriv, nil
}

func encodePublicKey(signPub ed25519.PublicKey, boxPub *[32]byte) string {
	raw := make([]byte, 0, publicKeySize)
	raw = append(raw, signPub...)
	raw = append(raw, boxPub[:]...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParsePublicKey splits a public key string into its signing and
// key-agreement halves.
func ParsePublicKey(publicKey string) (ed25519.PublicKey, *[32]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil || len(raw) != publicKeySize {
		return nil, nil, common.ErrInvalidPublicKey
	}
	var boxPub [32]byte
	copy(boxPub[:], raw[ed25519.PublicKeySize:])
	return ed25519.PublicKey(bytes.Clone(raw[:ed25519.PublicKeySize])), &boxPub, nil
}
