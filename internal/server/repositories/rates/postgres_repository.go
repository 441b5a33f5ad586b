// Package rates stores directed exchange-rate quotes between programs.
package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	query :=
		`SELECT from_program, to_program, rate, updated_at FROM exchange_rates
		 WHERE from_program = $1 AND to_program = $2
		 `

	var rate models.ExchangeRate
	err := r.db.QueryRowContext(ctx, query, from, to).Scan(&rate.From, &rate.To, &rate.Rate, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rate, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rate *models.ExchangeRate) error {
	query :=
		`INSERT INTO exchange_rates (from_program, to_program, rate, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (from_program, to_program)
		 DO UPDATE SET rate = EXCLUDED.rate, updated_at = EXCLUDED.updated_at
		 `

	_, err := r.db.ExecContext(ctx, query, rate.From, rate.To, rate.Rate.Round(models.RatePlaces), rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.ExchangeRate, error) {
	query :=
		`SELECT from_program, to_program, rate, updated_at FROM exchange_rates
		 ORDER BY from_program, to_program
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.ExchangeRate
	for rows.Next() {
		var rate models.ExchangeRate
		if err := rows.Scan(&rate.From, &rate.To, &rate.Rate, &rate.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, &rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}
