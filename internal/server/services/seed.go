package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// SeedReferenceData inserts the default tier benefits and the reserve legs
// of base that are missing. Existing rows are never overwritten, so running
// it on every start is safe.
func SeedReferenceData(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, base map[models.Program]decimal.Decimal, now time.Time) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tiers := m.Tiers(tx)
		existing, err := tiers.List(ctx)
		if err != nil {
			return err
		}
		have := make(map[models.Tier]bool, len(existing))
		for _, b := range existing {
			have[b.Tier] = true
		}
		for _, b := range models.DefaultTierBenefits() {
			if have[b.Tier] {
				continue
			}
			if err := tiers.Upsert(ctx, b); err != nil {
				return fmt.Errorf("seeding tier %s: %w", b.Tier, err)
			}
		}

		rates := m.Rates(tx)
		for p, r := range base {
			if p.IsReserve() || !r.IsPositive() {
				continue
			}
			legs := []*models.ExchangeRate{
				{From: p, To: models.ReserveProgram, Rate: r.Round(models.RatePlaces), UpdatedAt: now},
				{From: models.ReserveProgram, To: p, Rate: models.Reciprocal(r.Round(models.RatePlaces)), UpdatedAt: now},
			}
			for _, leg := range legs {
				_, err := rates.Get(ctx, leg.From, leg.To)
				if err == nil {
					continue
				}
				if !errors.Is(err, common.ErrorNotFound) {
					return err
				}
				if err := rates.Upsert(ctx, leg); err != nil {
					return fmt.Errorf("seeding rate %s->%s: %w", leg.From, leg.To, err)
				}
			}
		}
		return nil
	})
}
