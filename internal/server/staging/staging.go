// Package staging holds partially uploaded bulletins between chunk
// requests. Entries expire after a TTL so abandoned uploads do not pile
// up.
package staging

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// Key addresses one in-progress upload.
type Key struct {
	AccountID string
	LocalID   string
}

func (k Key) bytes() []byte {
	return []byte("upload/" + k.AccountID + "/" + k.LocalID)
}

// Staging stores in-progress uploads. Load returns (nil, nil) for an
// unknown or expired key.
type Staging interface {
	Load(ctx context.Context, key Key) (*transfer.Partial, error)
	Save(ctx context.Context, key Key, p *transfer.Partial) error
	Delete(ctx context.Context, key Key) error
	Close() error
}

var errCorrupt = errors.New("corrupt staging entry")

// encode lays out the total size followed by the bytes received so far.
func encode(p *transfer.Partial) []byte {
	buf := make([]byte, 8, 8+len(p.Data))
	binary.BigEndian.PutUint64(buf, uint64(p.TotalSize))
	return append(buf, p.Data...)
}

func decode(b []byte) (*transfer.Partial, error) {
	if len(b) < 8 {
		return nil, errCorrupt
	}
	total := int64(binary.BigEndian.Uint64(b))
	if total < 0 || int64(len(b)-8) > total {
		return nil, errCorrupt
	}
	return &transfer.Partial{TotalSize: total, Data: append([]byte(nil), b[8:]...)}, nil
}
