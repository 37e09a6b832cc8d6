package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bulletinkeeper/internal/dbx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/accounts"
)

// InMemoryRepositoryManager ignores the database handle and always returns
// the same in-memory repositories.
type InMemoryRepositoryManager struct {
	packets  *packetdb.MemoryDatabase
	accounts *accounts.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		packets:  packetdb.NewMemoryDatabase(),
		accounts: accounts.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *InMemoryRepositoryManager) Packets(dbx.DBTX) packetdb.Database { return m.packets }

func (m *InMemoryRepositoryManager) Accounts(dbx.DBTX) accounts.Repository { return m.accounts }
