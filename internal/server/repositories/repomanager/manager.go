// Package repomanager vends the server's repositories for a database
// handle and runs schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bulletinkeeper/internal/dbx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Packets(db dbx.DBTX) packetdb.Database
	Accounts(db dbx.DBTX) accounts.Repository
}
