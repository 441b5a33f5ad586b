package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/shopspring/decimal"
)

// TierTable is the immutable tier reference data, loaded once at startup
// and shared by reference.
type TierTable struct {
	// ascending by MonthlyPointsThreshold
	benefits []models.TierBenefit
}

func NewTierTable(benefits []models.TierBenefit) *TierTable {
	b := make([]models.TierBenefit, len(benefits))
	copy(b, benefits)
	sort.SliceStable(b, func(i, j int) bool {
		return b[i].MonthlyPointsThreshold.LessThan(b[j].MonthlyPointsThreshold)
	})
	return &TierTable{benefits: b}
}

// LoadTierTable reads tier_benefits. An empty table falls back to the
// built-in defaults.
func LoadTierTable(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager) (*TierTable, error) {
	rows, err := m.Tiers(db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading tier benefits: %w", err)
	}
	if len(rows) == 0 {
		rows = models.DefaultTierBenefits()
	}
	return NewTierTable(rows), nil
}

// Benefit returns the row for tier, or the lowest tier when unknown.
func (t *TierTable) Benefit(tier models.Tier) models.TierBenefit {
	for _, b := range t.benefits {
		if b.Tier == tier {
			return b
		}
	}
	return t.lowest()
}

// Qualify returns the highest tier whose threshold monthly meets.
func (t *TierTable) Qualify(monthly decimal.Decimal) models.TierBenefit {
	for i := len(t.benefits) - 1; i >= 0; i-- {
		if monthly.GreaterThanOrEqual(t.benefits[i].MonthlyPointsThreshold) {
			return t.benefits[i]
		}
	}
	return t.lowest()
}

func (t *TierTable) Benefits() []models.TierBenefit {
	out := make([]models.TierBenefit, len(t.benefits))
	copy(out, t.benefits)
	return out
}

func (t *TierTable) lowest() models.TierBenefit {
	if len(t.benefits) == 0 {
		return models.TierBenefit{Tier: models.TierStandard}
	}
	return t.benefits[0]
}

// ApplyActivity folds one completed operation into u's counters and
// re-evaluates the tier. The monthly total restarts at points whenever the
// previous reset lies in another calendar month.
func ApplyActivity(u *models.User, table *TierTable, points, fee decimal.Decimal, now time.Time) {
	u.LifetimePointsConverted = u.LifetimePointsConverted.Add(points)
	u.LifetimeFeesPaid = u.LifetimeFeesPaid.Add(fee)

	if u.LastMonthlyReset == nil || !timex.SameMonth(*u.LastMonthlyReset, now) {
		u.MonthlyPointsConverted = points
		reset := now
		u.LastMonthlyReset = &reset
	} else {
		u.MonthlyPointsConverted = u.MonthlyPointsConverted.Add(points)
	}

	b := table.Qualify(u.MonthlyPointsConverted)
	if b.Tier != u.Tier || u.TierExpiresAt == nil {
		u.Tier = b.Tier
		exp := now.AddDate(0, 0, b.MonthlyExpiryDays)
		u.TierExpiresAt = &exp
	}
}

// TierEngine persists user activity and tier changes.
type TierEngine struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	table       *TierTable
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewTierEngine(db *sql.DB, m repomanager.RepositoryManager, table *TierTable, now timex.Clock, logger logging.Logger, met *metrics.Metrics) *TierEngine {
	return &TierEngine{
		db:          db,
		repomanager: m,
		table:       table,
		now:         now,
		logger:      logger.With("module", "tiers"),
		metrics:     met,
	}
}

func (e *TierEngine) Table() *TierTable { return e.table }

// RecordActivity updates the user's counters and tier in its own
// transaction, with the user row locked.
func (e *TierEngine) RecordActivity(ctx context.Context, userID string, points, fee decimal.Decimal) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := e.repomanager.Users(tx)
		u, err := repo.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			return err
		}

		before := u.Tier
		ApplyActivity(u, e.table, points, fee, e.now())
		if err := repo.UpdateActivity(ctx, u); err != nil {
			return err
		}
		if before != u.Tier {
			e.logger.Info(ctx, "tier changed", "user_id", userID, "from", before, "to", u.Tier)
		}
		return nil
	})
}

// recordBestEffort runs RecordActivity after a committed ledger unit.
// Failures are logged and counted, never returned.
func (e *TierEngine) recordBestEffort(ctx context.Context, userID string, points, fee decimal.Decimal) {
	if err := e.RecordActivity(context.WithoutCancel(ctx), userID, points, fee); err != nil {
		e.metrics.TierUpdateFailed()
		e.logger.Warn(ctx, "tier activity update failed", "user_id", userID, "error", err)
	}
}
