package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/offers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/rates"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/tiers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/users"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/wallets"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a *sql.Tx,
// so services decide the transaction boundary.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Wallets(db dbx.DBTX) wallets.Repository
	Rates(db dbx.DBTX) rates.Repository
	Tiers(db dbx.DBTX) tiers.Repository
	Transactions(db dbx.DBTX) transactions.Repository
	Offers(db dbx.DBTX) offers.Repository
}
