package packets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/dbx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InTx groups the writes of fn in one transaction. A repository already
// bound to a transaction runs fn directly.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(ctx context.Context, db packetdb.Database) error) error {
	sqlDB, ok := r.db.(*sql.DB)
	if !ok {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, sqlDB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewSQLiteRepository(tx))
	})
}

func (r *SQLiteRepository) WriteRecord(ctx context.Context, key packet.DatabaseKey, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO packets (status, account_id, local_id, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(status, account_id, local_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, string(key.Status), key.UID.AccountID, key.UID.LocalID, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write packet %s: %w", key.UID, err)
	}
	return nil
}

func (r *SQLiteRepository) ReadRecord(ctx context.Context, key packet.DatabaseKey) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM packets WHERE status = ? AND account_id = ? AND local_id = ?`,
		string(key.Status), key.UID.AccountID, key.UID.LocalID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read packet %s: %w", key.UID, err)
	}
	return data, nil
}

func (r *SQLiteRepository) HasRecord(ctx context.Context, key packet.DatabaseKey) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM packets WHERE status = ? AND account_id = ? AND local_id = ?`,
		string(key.Status), key.UID.AccountID, key.UID.LocalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check packet %s: %w", key.UID, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, key packet.DatabaseKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM packets WHERE status = ? AND account_id = ? AND local_id = ?`,
		string(key.Status), key.UID.AccountID, key.UID.LocalID)
	if err != nil {
		return fmt.Errorf("failed to delete packet %s: %w", key.UID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAllRecords(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM packets`); err != nil {
		return fmt.Errorf("failed to clear packets: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) VisitAllRecords(ctx context.Context, fn func(key packet.DatabaseKey) error) error {
	keys, err := r.keys(ctx, `SELECT status, account_id, local_id FROM packets ORDER BY status, account_id, local_id`)
	if err != nil {
		return err
	}
	return visit(ctx, keys, fn)
}

func (r *SQLiteRepository) VisitAccountRecords(ctx context.Context, accountID string, fn func(key packet.DatabaseKey) error) error {
	keys, err := r.keys(ctx, `SELECT status, account_id, local_id FROM packets WHERE account_id = ? ORDER BY status, account_id, local_id`, accountID)
	if err != nil {
		return err
	}
	return visit(ctx, keys, fn)
}

// keys reads the whole key list before returning so callbacks can write.
func (r *SQLiteRepository) keys(ctx context.Context, query string, args ...any) ([]packet.DatabaseKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list packets: %w", err)
	}
	defer rows.Close()

	var keys []packet.DatabaseKey
	for rows.Next() {
		var status string
		var k packet.DatabaseKey
		if err := rows.Scan(&status, &k.UID.AccountID, &k.UID.LocalID); err != nil {
			return nil, fmt.Errorf("failed to scan packet row: %w", err)
		}
		k.Status = packet.Status(status)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packet rows: %w", err)
	}
	return keys, nil
}

func visit(ctx context.Context, keys []packet.DatabaseKey, fn func(packet.DatabaseKey) error) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}
