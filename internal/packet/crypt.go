package packet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
)

// SealFields encrypts the field list under a fresh session key wrapped for
// the packet's account and, when hqKey is set, for HQ as well.
func (p *Packet) SealFields(c cryptox.Provider, hqKey string) error {
	if p.Fields == nil {
		return errors.New("not a data packet")
	}
	sk, hqsk, data, err := sealBlob(c, p.UID.AccountID, hqKey, encodeFieldList(p.Fields.Fields))
	if err != nil {
		return err
	}
	p.Fields.Encrypted = true
	p.Fields.SessionKey = sk
	p.Fields.HQSessionKey = hqsk
	p.Fields.EncryptedData = data
	return nil
}

// OpenFields decrypts an encrypted field list in place. A key that cannot be
// unwrapped is an error, never an empty result.
func (p *Packet) OpenFields(c cryptox.Provider) error {
	if p.Fields == nil {
		return errors.New("not a data packet")
	}
	if !p.Fields.Encrypted {
		return nil
	}
	plain, err := openBlob(c, p.Fields.SessionKey, p.Fields.HQSessionKey, p.Fields.EncryptedData)
	if err != nil {
		return err
	}
	fields, err := decodeFieldList(plain)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDamagedPacket, err)
	}
	p.Fields.Fields = fields
	return nil
}

// NewAttachment encrypts data into an attachment packet with id uid.
func NewAttachment(uid UniversalID, label string, data []byte, c cryptox.Provider, hqKey string) (*Packet, error) {
	sk, hqsk, sealed, err := sealBlob(c, uid.AccountID, hqKey, data)
	if err != nil {
		return nil, err
	}
	return &Packet{
		Kind: KindAttachment,
		UID:  uid,
		Attachment: &Attachment{
			Label:        label,
			SessionKey:   sk,
			HQSessionKey: hqsk,
			Data:         sealed,
		},
	}, nil
}

// OpenAttachment returns the decrypted attachment bytes.
func (p *Packet) OpenAttachment(c cryptox.Provider) ([]byte, error) {
	if p.Attachment == nil {
		return nil, errors.New("not an attachment packet")
	}
	return openBlob(c, p.Attachment.SessionKey, p.Attachment.HQSessionKey, p.Attachment.Data)
}

func sealBlob(c cryptox.Provider, accountID, hqKey string, plain []byte) (sk, hqsk, data []byte, err error) {
	key, err := c.CreateSessionKey()
	if err != nil {
		return nil, nil, nil, err
	}
	defer common.WipeByteArray(key)

	var buf bytes.Buffer
	if err := c.Encrypt(&buf, bytes.NewReader(plain), key); err != nil {
		return nil, nil, nil, err
	}
	if sk, err = c.EncryptSessionKey(key, accountID); err != nil {
		return nil, nil, nil, err
	}
	if hqKey != "" {
		if hqsk, err = c.EncryptSessionKey(key, hqKey); err != nil {
			return nil, nil, nil, err
		}
	}
	return sk, hqsk, buf.Bytes(), nil
}

// openBlob tries the account's wrapped key first, then the HQ one.
func openBlob(c cryptox.Provider, sk, hqsk, data []byte) ([]byte, error) {
	if !c.HasKeyPair() {
		return nil, common.ErrNoKeyPair
	}

	var key []byte
	var err error
	for _, wrapped := range [][]byte{sk, hqsk} {
		if len(wrapped) == 0 {
			continue
		}
		if key, err = c.DecryptSessionKey(wrapped); err == nil {
			break
		}
	}
	if key == nil {
		return nil, common.ErrDecryption
	}
	defer common.WipeByteArray(key)

	var out bytes.Buffer
	if err := c.Decrypt(&out, bytes.NewReader(data), key); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
