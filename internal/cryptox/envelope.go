package cryptox

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
)

// SealForSelf encrypts plaintext under a fresh session key wrapped for the
// provider's own account. Layout: uint16 wrapped length | wrapped | data.
func SealForSelf(p Provider, plaintext []byte) ([]byte, error) {
	own := p.PublicKeyString()
	if own == "" {
		return nil, common.ErrNoKeyPair
	}

	sessionKey, err := p.CreateSessionKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(sessionKey)

	wrapped, err := p.EncryptSessionKey(sessionKey, own)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(wrapped)))
	buf.Write(wrapped)
	if err := p.Encrypt(&buf, bytes.NewReader(plaintext), sessionKey); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OpenForSelf reverses SealForSelf.
func OpenForSelf(p Provider, sealed []byte) ([]byte, error) {
	if len(sealed) < 2 {
		return nil, fmt.Errorf("%w: envelope too short", common.ErrDecryption)
	}
	n := int(binary.BigEndian.Uint16(sealed))
	if len(sealed) < 2+n {
		return nil, fmt.Errorf("%w: envelope truncated", common.ErrDecryption)
	}

	sessionKey, err := p.DecryptSessionKey(sealed[2 : 2+n])
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(sessionKey)

	var out bytes.Buffer
	if err := p.Decrypt(&out, bytes.NewReader(sealed[2+n:]), sessionKey); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
