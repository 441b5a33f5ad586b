package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind tells which operation produced a Transaction row.
type TransactionKind string

const (
	TransactionConversion TransactionKind = "conversion"
	TransactionTradeBuy   TransactionKind = "trade_buy"
	TransactionTradeSell  TransactionKind = "trade_sell"
)

const TransactionCompleted = "completed"

// Transaction is an immutable record of a completed conversion or trade leg.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Kind        TransactionKind `json:"kind"`
	FromProgram Program         `json:"from_program"`
	ToProgram   Program         `json:"to_program"`
	AmountFrom  decimal.Decimal `json:"amount_from"`
	AmountTo    decimal.Decimal `json:"amount_to"`
	FeeApplied  decimal.Decimal `json:"fee_applied"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
