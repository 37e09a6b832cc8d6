package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GrantUpload(ctx context.Context, accountID string) error {
	query :=
		`INSERT INTO accounts (account_id, upload_allowed, upload_granted_at)
		 VALUES ($1, TRUE, now())
		 ON CONFLICT (account_id) DO UPDATE SET upload_allowed = TRUE`

	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CanUpload(ctx context.Context, accountID string) (bool, error) {
	query :=
		`SELECT upload_allowed FROM accounts
		 WHERE account_id = $1`

	var allowed bool
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&allowed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return allowed, nil
}
