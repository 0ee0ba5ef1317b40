package repomanager

import (
	"context"
	"database/sql"

	"github.com/multiplycharity/multiply-monorepo/internal/dbx"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/accounts"
)

// RepositoryManager vends SQL-backed repositories bound to a DBTX and owns
// the schema.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
}
