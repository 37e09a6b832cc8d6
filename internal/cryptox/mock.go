package cryptox

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// MockSecurity is a Provider whose key pairs are derived from a name, so
// two instances built with the same name act as the same account. It also
// uses a cheap passphrase KDF. Not for production use.
type MockSecurity struct {
	*Security
}

func NewMockSecurity(name string) *MockSecurity {
	return &MockSecurity{Security: &Security{
		keyRand: newSeededReader(name),
		kdf:     deriveLightKey,
	}}
}

// CreateKeyPair restarts the seeded stream so the same name always yields
// the same keys.
func (m *MockSecurity) CreateKeyPair() error {
	if sr, ok := m.keyRand.(*seededReader); ok {
		sr.reset()
	}
	return m.Security.CreateKeyPair()
}

type seededReader struct {
	mu      sync.Mutex
	seed    [32]byte
	counter uint64
	buf     []byte
}

func newSeededReader(name string) *seededReader {
	return &seededReader{seed: sha256.Sum256([]byte(name))}
}

func (r *seededReader) reset() {
	r.mu.Lock()
	r.counter = 0
	r.buf = nil
	r.mu.Unlock()
}

func (r *seededReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) {
		if len(r.buf) == 0 {
			var block [40]byte
			copy(block[:32], r.seed[:])
			binary.BigEndian.PutUint64(block[32:], r.counter)
			r.counter++
			sum := sha256.Sum256(block[:])
			r.buf = sum[:]
		}
		c := copy(p[n:], r.buf)
		r.buf = r.buf[c:]
		n += c
	}
	return n, nil
}
