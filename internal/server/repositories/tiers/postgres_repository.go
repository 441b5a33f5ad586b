// Package tiers reads and seeds the tier benefit reference table.
package tiers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.TierBenefit, error) {
	query :=
		`SELECT tier, monthly_points_threshold, free_conversion_limit, conversion_fee_rate,
		 p2p_min_fee_percent, p2p_max_fee_percent, monthly_expiry_days
		 FROM tier_benefits
		 ORDER BY monthly_points_threshold
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []models.TierBenefit
	for rows.Next() {
		var b models.TierBenefit
		err := rows.Scan(&b.Tier, &b.MonthlyPointsThreshold, &b.FreeConversionLimit, &b.ConversionFeeRate,
			&b.P2PMinFeePercent, &b.P2PMaxFeePercent, &b.MonthlyExpiryDays)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, b models.TierBenefit) error {
	query :=
		`INSERT INTO tier_benefits (tier, monthly_points_threshold, free_conversion_limit, conversion_fee_rate,
		 p2p_min_fee_percent, p2p_max_fee_percent, monthly_expiry_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tier) DO UPDATE SET
		 monthly_points_threshold = EXCLUDED.monthly_points_threshold,
		 free_conversion_limit = EXCLUDED.free_conversion_limit,
		 conversion_fee_rate = EXCLUDED.conversion_fee_rate,
		 p2p_min_fee_percent = EXCLUDED.p2p_min_fee_percent,
		 p2p_max_fee_percent = EXCLUDED.p2p_max_fee_percent,
		 monthly_expiry_days = EXCLUDED.monthly_expiry_days
		 `

	_, err := r.db.ExecContext(ctx, query, b.Tier, b.MonthlyPointsThreshold, b.FreeConversionLimit,
		b.ConversionFeeRate, b.P2PMinFeePercent, b.P2PMaxFeePercent, b.MonthlyExpiryDays)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
