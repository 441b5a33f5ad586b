package tiers

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type Repository interface {
	// List returns every tier ordered by ascending monthly threshold.
	List(ctx context.Context) ([]models.TierBenefit, error)
	Upsert(ctx context.Context, b models.TierBenefit) error
}
