// Package wallets persists per-user, per-program balances.
//
// A uniqueness constraint on (user_id, program) prevents duplicate wallets on
// the write side. Reads still order by balance and creation time so that, if
// a legacy duplicate exists, the highest (then most recent) balance wins.
package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, program, balance, linked_account, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO wallets (id, user_id, program, balance, linked_account)
         VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, program) DO NOTHING
		 RETURNING ` + walletColumns

	created, err := scanWallet(r.db.QueryRowContext(ctx, query, w.ID, w.UserID, w.Program, w.Balance, w.LinkedAccount))
	if errors.Is(err, common.ErrorNotFound) {
		return r.GetByUserProgram(ctx, w.UserID, w.Program)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		 WHERE id = $1
		 `
	return scanWallet(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUserProgram(ctx context.Context, userID string, program models.Program) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		 WHERE user_id = $1 AND program = $2
		 ORDER BY balance DESC, created_at DESC
		 LIMIT 1
		 `
	return scanWallet(r.db.QueryRowContext(ctx, query, userID, program))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		 WHERE user_id = $1
		 ORDER BY program
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		 WHERE id = $1
		 FOR UPDATE
		 `
	return scanWallet(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	query :=
		`UPDATE wallets SET balance = balance - $2
		 WHERE id = $1 AND balance >= $2
		 RETURNING balance
		 `

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}

	// no row updated: either the wallet is gone or the balance is short
	if _, err := r.GetByID(ctx, id); err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, common.ErrInsufficientBalance
}

func (r *PostgresRepository) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	query :=
		`UPDATE wallets SET balance = balance + $2
		 WHERE id = $1
		 RETURNING balance
		 `

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, common.ErrorNotFound
		}
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) SetLinkedAccount(ctx context.Context, id string, account string) error {
	query := `UPDATE wallets SET linked_account = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, account)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (*models.Wallet, error) {
	var (
		w      models.Wallet
		linked sql.NullString
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Program, &w.Balance, &linked, &w.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if linked.Valid {
		s := linked.String
		w.LinkedAccount = &s
	}
	return &w, nil
}
