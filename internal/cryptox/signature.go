package cryptox

import (
	"crypto/ed25519"
	"hash"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
)

// SignatureWriter signs streamed content without buffering it. It is single
// use and must not be shared between goroutines.
type SignatureWriter struct {
	h    hash.Hash
	key  ed25519.PrivateKey
	done bool
}

func (w *SignatureWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, common.ErrSignatureFinished
	}
	return w.h.Write(p)
}

func (w *SignatureWriter) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}

// Signature finishes the digest and signs it. Further calls fail.
func (w *SignatureWriter) Signature() ([]byte, error) {
	if w.done {
		return nil, common.ErrSignatureFinished
	}
	w.done = true
	return w.key.Sign(nil, w.h.Sum(nil), signOptions)
}
