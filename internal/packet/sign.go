package packet

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
)

var (
	sigOpen  = []byte("<!--sig=")
	sigClose = []byte("-->")

	// Strict so that every character of the trailer is significant.
	sigEncoding = base64.StdEncoding.Strict()
)

// Signer produces signatures for the local account.
type Signer interface {
	CreateSignature(data []byte) ([]byte, error)
}

// Sign serializes p and returns the persisted document (body plus
// signature trailer) and the signature itself.
func Sign(p *Packet, s Signer) (doc []byte, sig []byte, err error) {
	body, err := Serialize(p)
	if err != nil {
		return nil, nil, err
	}
	sig, err = s.CreateSignature(body)
	if err != nil {
		return nil, nil, err
	}

	doc = make([]byte, 0, len(body)+len(sig)*2)
	doc = append(doc, body...)
	doc = append(doc, sigOpen...)
	doc = append(doc, sigEncoding.EncodeToString(sig)...)
	doc = append(doc, sigClose...)
	doc = append(doc, '\n')
	return doc, sig, nil
}

// Split separates a document into its signed body and signature. The
// document must end with exactly the trailer Sign writes.
func Split(doc []byte) (body, sig []byte, err error) {
	i := bytes.LastIndex(doc, sigOpen)
	if i < 0 {
		return nil, nil, fmt.Errorf("%w: missing signature", common.ErrDamagedPacket)
	}
	rest := doc[i+len(sigOpen):]
	j := bytes.Index(rest, sigClose)
	if j < 0 {
		return nil, nil, fmt.Errorf("%w: unterminated signature", common.ErrDamagedPacket)
	}
	if !bytes.Equal(rest[j+len(sigClose):], []byte{'\n'}) {
		return nil, nil, fmt.Errorf("%w: trailing data after signature", common.ErrDamagedPacket)
	}
	sig, err = sigEncoding.DecodeString(string(rest[:j]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature encoding", common.ErrDamagedPacket)
	}
	return doc[:i], sig, nil
}

// ExtractSignature returns the inline signature without verifying it.
func ExtractSignature(doc []byte) ([]byte, error) {
	_, sig, err := Split(doc)
	return sig, err
}

// Load reads a document and verifies it. See LoadBytes.
func Load(r io.Reader, expectedSig []byte, v cryptox.Verifier) (*Packet, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return LoadBytes(doc, expectedSig, v)
}

// LoadBytes parses doc and checks its inline signature against the account
// named inside it. When expectedSig is non-nil the inline signature must
// also equal it. Any failure yields ErrDamagedPacket and no packet.
func LoadBytes(doc []byte, expectedSig []byte, v cryptox.Verifier) (*Packet, error) {
	body, sig, err := Split(doc)
	if err != nil {
		return nil, err
	}
	p, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedPacket, err)
	}
	if expectedSig != nil && !bytes.Equal(expectedSig, sig) {
		return nil, fmt.Errorf("%w: signature differs from expected", common.ErrDamagedPacket)
	}
	if !v.IsSignatureValid(p.UID.AccountID, body, sig) {
		return nil, fmt.Errorf("%w: bad signature for %s", common.ErrDamagedPacket, p.UID)
	}
	return p, nil
}

// LoadFor is LoadBytes plus a check that the packet is the one the caller
// asked for.
func LoadFor(doc []byte, want UniversalID, kind Kind, expectedSig []byte, v cryptox.Verifier) (*Packet, error) {
	p, err := LoadBytes(doc, expectedSig, v)
	if err != nil {
		return nil, err
	}
	if p.UID != want {
		return nil, fmt.Errorf("%w: expected %s, found %s", common.ErrDamagedPacket, want, p.UID)
	}
	if p.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s packet, found %s", common.ErrDamagedPacket, kind, p.Kind)
	}
	return p, nil
}

// Peek parses doc without checking its signature.
func Peek(doc []byte) (*Packet, error) {
	body, _, err := Split(doc)
	if err != nil {
		return nil, err
	}
	p, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedPacket, err)
	}
	return p, nil
}
