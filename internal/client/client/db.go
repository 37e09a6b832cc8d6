package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/repositories/packets"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles the client's SQLite-backed stores.
type Repositories struct {
	Packets  *packets.SQLiteRepository
	Metadata metadata.Repository
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Packets:  packets.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite database at dsn and migrates it. SQLite
// allows one writer, so the pool is limited to one connection.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
