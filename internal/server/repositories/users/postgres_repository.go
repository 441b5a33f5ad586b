// Package users persists ledger users and their tier/activity counters.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

const userColumns = `id, username, tier, tier_expires_at, lifetime_points_converted,
		 monthly_points_converted, last_monthly_reset, lifetime_fees_paid, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, tier)
         VALUES ($1, $2)
		 RETURNING id, created_at
		 `

	if user.Tier == "" {
		user.Tier = models.TierStandard
	}

	err := r.db.QueryRowContext(ctx, query, user.UserName, user.Tier).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 FOR UPDATE
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, userName)
}

func (r *PostgresRepository) UpdateActivity(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET tier = $2, tier_expires_at = $3, lifetime_points_converted = $4,
		 monthly_points_converted = $5, last_monthly_reset = $6, lifetime_fees_paid = $7
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.Tier, user.TierExpiresAt, user.LifetimePointsConverted,
		user.MonthlyPointsConverted, user.LastMonthlyReset, user.LifetimeFeesPaid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		u          models.User
		tierExp    sql.NullTime
		monthReset sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.UserName, &u.Tier, &tierExp, &u.LifetimePointsConverted,
		&u.MonthlyPointsConverted, &monthReset, &u.LifetimeFeesPaid, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if tierExp.Valid {
		t := tierExp.Time
		u.TierExpiresAt = &t
	}
	if monthReset.Valid {
		t := monthReset.Time
		u.LastMonthlyReset = &t
	}

	return &u, nil
}
