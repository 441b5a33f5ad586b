package wallets

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Create inserts w unless a wallet for (user, program) already exists,
	// in which case the existing wallet is returned.
	Create(ctx context.Context, w *models.Wallet) (*models.Wallet, error)
	GetByID(ctx context.Context, id string) (*models.Wallet, error)
	GetByUserProgram(ctx context.Context, userID string, program models.Program) (*models.Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Wallet, error)
	// LockForUpdate row-locks the wallet until the enclosing transaction ends.
	LockForUpdate(ctx context.Context, id string) (*models.Wallet, error)
	// Debit subtracts amount only if the balance covers it and returns the
	// new balance. It never drives a balance negative.
	Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	SetLinkedAccount(ctx context.Context, id string, account string) error
}
