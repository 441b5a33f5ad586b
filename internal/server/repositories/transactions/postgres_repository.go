// Package transactions appends the immutable conversion and trade records.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/oklog/ulid/v2"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NewID returns a lexically sortable transaction id.
func NewID() string {
	return ulid.Make().String()
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = models.TransactionCompleted
	}

	query :=
		`INSERT INTO transactions (id, user_id, kind, from_program, to_program,
		 amount_from, amount_to, fee_applied, status, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 `

	_, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.Kind, t.FromProgram, t.ToProgram,
		t.AmountFrom, t.AmountTo, t.FeeApplied, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateTrade(ctx context.Context, t *models.TradeTransaction) error {
	if t.ID == "" {
		t.ID = NewID()
	}

	query :=
		`INSERT INTO trade_transactions (id, offer_id, seller_id, buyer_id,
		 seller_from_wallet_id, seller_to_wallet_id, buyer_from_wallet_id, buyer_to_wallet_id,
		 amount_offered, amount_requested, rate, seller_fee, buyer_fee, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 `

	_, err := r.db.ExecContext(ctx, query, t.ID, t.OfferID, t.SellerID, t.BuyerID,
		t.SellerFromWalletID, t.SellerToWalletID, t.BuyerFromWalletID, t.BuyerToWalletID,
		t.AmountOffered, t.AmountRequested, t.Rate, t.SellerFee, t.BuyerFee, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	query :=
		`SELECT id, user_id, kind, from_program, to_program, amount_from, amount_to,
		 fee_applied, status, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.FromProgram, &t.ToProgram,
			&t.AmountFrom, &t.AmountTo, &t.FeeApplied, &t.Status, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) GetTradeByOffer(ctx context.Context, offerID string) (*models.TradeTransaction, error) {
	query :=
		`SELECT id, offer_id, seller_id, buyer_id,
		 seller_from_wallet_id, seller_to_wallet_id, buyer_from_wallet_id, buyer_to_wallet_id,
		 amount_offered, amount_requested, rate, seller_fee, buyer_fee, created_at
		 FROM trade_transactions
		 WHERE offer_id = $1
		 `

	var t models.TradeTransaction
	err := r.db.QueryRowContext(ctx, query, offerID).Scan(&t.ID, &t.OfferID, &t.SellerID, &t.BuyerID,
		&t.SellerFromWalletID, &t.SellerToWalletID, &t.BuyerFromWalletID, &t.BuyerToWalletID,
		&t.AmountOffered, &t.AmountRequested, &t.Rate, &t.SellerFee, &t.BuyerFee, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &t, nil
}
