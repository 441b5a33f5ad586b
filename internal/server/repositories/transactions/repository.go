package transactions

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Transaction) error
	CreateTrade(ctx context.Context, t *models.TradeTransaction) error
	// ListByUser returns the user's most recent transactions first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Transaction, error)
	GetTradeByOffer(ctx context.Context, offerID string) (*models.TradeTransaction, error)
}
