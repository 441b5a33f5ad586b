// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/migrations"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/offers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/rates"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/tiers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/users"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/wallets"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Wallets(db dbx.DBTX) wallets.Repository {
	return wallets.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Rates(db dbx.DBTX) rates.Repository {
	return rates.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Tiers(db dbx.DBTX) tiers.Repository {
	return tiers.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Transactions(db dbx.DBTX) transactions.Repository {
	return transactions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Offers(db dbx.DBTX) offers.Repository {
	return offers.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
