package rates

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error)
	// Upsert stores the quote, replacing any previous one for the pair.
	Upsert(ctx context.Context, rate *models.ExchangeRate) error
	List(ctx context.Context) ([]*models.ExchangeRate, error)
}
