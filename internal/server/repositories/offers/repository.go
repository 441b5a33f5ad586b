package offers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

// ListFilter narrows ListOpen. Zero-valued fields match everything.
type ListFilter struct {
	FromProgram models.Program
	ToProgram   models.Program
	Limit       int
}

type Repository interface {
	Create(ctx context.Context, o *models.TradeOffer) error
	GetByID(ctx context.Context, id string) (*models.TradeOffer, error)
	// GetByIDForUpdate locks the offer row until the enclosing transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.TradeOffer, error)
	// SetStatus moves an open offer to status. It returns
	// common.ErrOfferNotOpen when the offer has already left the open state.
	SetStatus(ctx context.Context, id string, status models.OfferStatus, at time.Time) error
	// ListExpiredOpen returns ids of open offers whose expiry is before now,
	// ordered by id and strictly after afterID ("" starts from the beginning).
	ListExpiredOpen(ctx context.Context, now time.Time, afterID string, limit int) ([]string, error)
	ListOpen(ctx context.Context, f ListFilter) ([]*models.TradeOffer, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*models.TradeOffer, error)
}
