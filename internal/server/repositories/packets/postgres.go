package packets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/dbx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InTx runs fn in a single transaction so a bulletin's packets land
// together. A repository already bound to a transaction runs fn directly.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context, db packetdb.Database) error) error {
	sqlDB, ok := r.db.(*sql.DB)
	if !ok {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, sqlDB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewPostgresRepository(tx))
	})
}

func (r *PostgresRepository) WriteRecord(ctx context.Context, key packet.DatabaseKey, data []byte) error {
	query :=
		`INSERT INTO packets (status, account_id, local_id, data, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (status, account_id, local_id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, string(key.Status), key.UID.AccountID, key.UID.LocalID, data); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReadRecord(ctx context.Context, key packet.DatabaseKey) ([]byte, error) {
	query :=
		`SELECT data FROM packets
		 WHERE status = $1 AND account_id = $2 AND local_id = $3`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, string(key.Status), key.UID.AccountID, key.UID.LocalID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return data, nil
}

func (r *PostgresRepository) HasRecord(ctx context.Context, key packet.DatabaseKey) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM packets
		 WHERE status = $1 AND account_id = $2 AND local_id = $3)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, string(key.Status), key.UID.AccountID, key.UID.LocalID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) DeleteRecord(ctx context.Context, key packet.DatabaseKey) error {
	query :=
		`DELETE FROM packets
		 WHERE status = $1 AND account_id = $2 AND local_id = $3`

	if _, err := r.db.ExecContext(ctx, query, string(key.Status), key.UID.AccountID, key.UID.LocalID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAllRecords(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM packets`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) VisitAllRecords(ctx context.Context, fn func(key packet.DatabaseKey) error) error {
	query :=
		`SELECT status, account_id, local_id FROM packets
		 ORDER BY status, account_id, local_id`

	keys, err := r.keys(ctx, query)
	if err != nil {
		return err
	}
	return visit(ctx, keys, fn)
}

func (r *PostgresRepository) VisitAccountRecords(ctx context.Context, accountID string, fn func(key packet.DatabaseKey) error) error {
	query :=
		`SELECT status, account_id, local_id FROM packets
		 WHERE account_id = $1
		 ORDER BY status, account_id, local_id`

	keys, err := r.keys(ctx, query, accountID)
	if err != nil {
		return err
	}
	return visit(ctx, keys, fn)
}

func (r *PostgresRepository) keys(ctx context.Context, query string, args ...any) ([]packet.DatabaseKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []packet.DatabaseKey
	for rows.Next() {
		var status string
		var k packet.DatabaseKey
		if err := rows.Scan(&status, &k.UID.AccountID, &k.UID.LocalID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		k.Status = packet.Status(status)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}

// visit runs fn after the key list is fully read, so fn may write.
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
