// Package offers persists P2P trade offers and their state transitions.
package offers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/google/uuid"
)

const offerColumns = `id, creator_id, from_program, to_program, amount_offered, amount_requested,
		 market_rate, custom_rate, savings_percent, description, status, created_at, expires_at, closed_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o *models.TradeOffer) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OfferOpen
	}

	query :=
		`INSERT INTO trade_offers (id, creator_id, from_program, to_program, amount_offered,
		 amount_requested, market_rate, custom_rate, savings_percent, description, status,
		 created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 `

	_, err := r.db.ExecContext(ctx, query, o.ID, o.CreatorID, o.FromProgram, o.ToProgram,
		o.AmountOffered, o.AmountRequested, o.MarketRate, o.CustomRate, o.SavingsPercent,
		o.Description, o.Status, o.CreatedAt, o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.TradeOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM trade_offers
		 WHERE id = $1
		 `
	return scanOffer(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.TradeOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM trade_offers
		 WHERE id = $1
		 FOR UPDATE
		 `
	return scanOffer(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.OfferStatus, at time.Time) error {
	query :=
		`UPDATE trade_offers SET status = $2, closed_at = $3
		 WHERE id = $1 AND status = 'open'
		 `

	res, err := r.db.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrOfferNotOpen
	}
	return nil
}

func (r *PostgresRepository) ListExpiredOpen(ctx context.Context, now time.Time, afterID string, limit int) ([]string, error) {
	query :=
		`SELECT id FROM trade_offers
		 WHERE status = 'open' AND expires_at < $1 AND id::text > $2
		 ORDER BY id::text
		 LIMIT $3
		 `

	rows, err := r.db.QueryContext(ctx, query, now, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) ListOpen(ctx context.Context, f ListFilter) ([]*models.TradeOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM trade_offers
		 WHERE status = 'open'
		 AND ($1 = '' OR from_program = $1)
		 AND ($2 = '' OR to_program = $2)
		 ORDER BY created_at DESC
		 LIMIT $3
		 `
	return r.list(ctx, query, string(f.FromProgram), string(f.ToProgram), f.Limit)
}

func (r *PostgresRepository) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*models.TradeOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM trade_offers
		 WHERE creator_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2
		 `
	return r.list(ctx, query, creatorID, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.TradeOffer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.TradeOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner) (*models.TradeOffer, error) {
	var (
		o      models.TradeOffer
		closed sql.NullTime
	)
	err := row.Scan(&o.ID, &o.CreatorID, &o.FromProgram, &o.ToProgram, &o.AmountOffered,
		&o.AmountRequested, &o.MarketRate, &o.CustomRate, &o.SavingsPercent, &o.Description,
		&o.Status, &o.CreatedAt, &o.ExpiresAt, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrOfferNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if closed.Valid {
		t := closed.Time
		o.ClosedAt = &t
	}
	return &o, nil
}
