package cryptox

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"golang.org/x/crypto/curve25519"
)

// Key pair file layout: version | salt | AES-GCM(nonce | sealed seeds).
const (
	keyPairVersion  = 1
	keyPairSaltSize = 16
	keyMaterialSize = ed25519.SeedSize + 32
)

func (s *Security) WriteKeyPair(w io.Writer, passphrase []byte) error {
	kp, err := s.keys()
	if err != nil {
		return err
	}

	salt := make([]byte, keyPairSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	material := make([]byte, 0, keyMaterialSize)
	material = append(material, kp.signPriv.Seed()...)
	material = append(material, kp.boxPriv[:]...)
	defer common.WipeByteArray(material)

	key := s.kdf(passphrase, salt)
	defer common.WipeByteArray(key)

	sealed, err := SealAESGCM(key, material)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}

	var buf bytes.Buffer
	buf.WriteByte(keyPairVersion)
	buf.Write(salt)
	buf.Write(sealed)

	_, err = w.Write(buf.Bytes())
	return err
}

func (s *Security) ReadKeyPair(r io.Reader, passphrase []byte) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) < 1+keyPairSaltSize || data[0] != keyPairVersion {
		return common.ErrInvalidKeyPairVersion
	}

	salt := data[1 : 1+keyPairSaltSize]
	key := s.kdf(passphrase, salt)
	defer common.WipeByteArray(key)

	material, err := OpenAESGCM(key, data[1+keyPairSaltSize:])
	if err != nil {
		return common.ErrAuthorizationFailed
	}
	defer common.WipeByteArray(material)

	kp, err := keyPairFromMaterial(material)
	if err != nil {
		return common.ErrInvalidKeyPairVersion
	}

	s.mu.Lock()
	s.kp = kp
	s.mu.Unlock()
	return nil
}

// keyPairFromMaterial expands an Ed25519 seed followed by an X25519 private
// scalar into a full key pair.
func keyPairFromMaterial(material []byte) (*keyPair, error) {
	if len(material) != keyMaterialSize {
		return nil, fmt.Errorf("key material must be %d bytes", keyMaterialSize)
	}

	signPriv := ed25519.NewKeyFromSeed(material[:ed25519.SeedSize])

	var boxPriv [32]byte
	copy(boxPriv[:], material[ed25519.SeedSize:])
	pub, err := curve25519.X25519(boxPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	var boxPub [32]byte
	copy(boxPub[:], pub)

	return &keyPair{
		signPriv: signPriv,
		signPub:  signPriv.Public().(ed25519.PublicKey),
		boxPub:   &boxPub,
		boxPriv:  &boxPriv,
	}, nil
}
