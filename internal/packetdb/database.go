// Package packetdb defines the keyed byte store that packets are persisted
// into, plus an in-memory implementation.
//
// Records are addressed by packet.DatabaseKey. Writes to one key are atomic:
// a reader sees either the previous or the new record, never a mix.
package packetdb

import (
	"context"

	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// Database is implemented by every packet store (memory, SQLite, Postgres,
// S3). ReadRecord returns common.ErrNotFound for a missing key and
// DeleteRecord of a missing key is not an error.
type Database interface {
	WriteRecord(ctx context.Context, key packet.DatabaseKey, data []byte) error
	ReadRecord(ctx context.Context, key packet.DatabaseKey) ([]byte, error)
	HasRecord(ctx context.Context, key packet.DatabaseKey) (bool, error)
	DeleteRecord(ctx context.Context, key packet.DatabaseKey) error

	// VisitAllRecords calls fn for every key. Returning an error from fn
	// stops the walk and is returned.
	VisitAllRecords(ctx context.Context, fn func(key packet.DatabaseKey) error) error

	// VisitAccountRecords is VisitAllRecords restricted to one account.
	VisitAccountRecords(ctx context.Context, accountID string, fn func(key packet.DatabaseKey) error) error

	// DeleteAllRecords empties the store.
	DeleteAllRecords(ctx context.Context) error
}

// Transactional is implemented by stores that can apply a group of
// writes atomically.
type Transactional interface {
	// InTx runs fn against a view of the store whose writes are committed
	// together when fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, db Database) error) error
}

// Atomic runs fn inside a transaction when db is Transactional and
// directly against db otherwise.
func Atomic(ctx context.Context, db Database, fn func(ctx context.Context, db Database) error) error {
	if t, ok := db.(Transactional); ok {
		return t.InTx(ctx, fn)
	}
	return fn(ctx, db)
}

// ListAccounts returns the accounts that own at least one record with the
// given status, in key visiting order without duplicates.
func ListAccounts(ctx context.Context, db Database, status packet.Status) ([]string, error) {
	seen := make(map[string]struct{})
	var accounts []string
	err := db.VisitAllRecords(ctx, func(key packet.DatabaseKey) error {
		if key.Status != status {
			return nil
		}
		if _, ok := seen[key.UID.AccountID]; ok {
			return nil
		}
		seen[key.UID.AccountID] = struct{}{}
		accounts = append(accounts, key.UID.AccountID)
		return nil
	})
	return accounts, err
}

// HeaderKeys lists the header packet keys of one account with the given
// status.
func HeaderKeys(ctx context.Context, db Database, accountID string, status packet.Status) ([]packet.DatabaseKey, error) {
	var keys []packet.DatabaseKey
	err := db.VisitAccountRecords(ctx, accountID, func(key packet.DatabaseKey) error {
		if key.Status == status && key.UID.IsHeader() {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}
