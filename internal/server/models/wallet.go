package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds one user's balance in one program. Balance is never negative.
type Wallet struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Program       Program         `json:"program"`
	Balance       decimal.Decimal `json:"balance"`
	LinkedAccount *string         `json:"linked_account,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
