// Package metadata is a small key/value table in the client database. It
// holds the encrypted folder index and cached server information.
package metadata

import (
	"context"
	"time"
)

// Well-known keys.
const (
	KeyFolders    = "folders"
	KeyServerInfo = "server_info"
)

// Repository returns (nil, nil) from Get when the key is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
