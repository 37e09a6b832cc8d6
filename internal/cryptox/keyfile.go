package cryptox

import (
	"bytes"
	"os"

	"github.com/dmitrijs2005/bulletinkeeper/internal/filex"
)

// LoadOrCreateKeyPairFile unlocks the key pair stored at path. When the file
// does not exist a new key pair is created and written there, and created
// is true. A wrong passphrase yields common.ErrAuthorizationFailed.
func LoadOrCreateKeyPairFile(p Provider, path string, passphrase []byte) (created bool, err error) {
	exists, err := filex.Exists(path)
	if err != nil {
		return false, err
	}

	if exists {
		f, err := os.Open(path)
		if err != nil {
			return false, err
		}
		defer f.Close()
		return false, p.ReadKeyPair(f, passphrase)
	}

	if err := p.CreateKeyPair(); err != nil {
		return false, err
	}
	var buf bytes.Buffer
	if err := p.WriteKeyPair(&buf, passphrase); err != nil {
		p.ClearKeyPair()
		return false, err
	}
	if err := filex.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		p.ClearKeyPair()
		return false, err
	}
	return true, nil
}
