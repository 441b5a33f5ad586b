package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatePlaces is the number of decimal places rates are stored with.
const RatePlaces = 8

// ExchangeRate is a directed quote: 1 point of From buys Rate points of To.
type ExchangeRate struct {
	From      Program         `json:"from"`
	To        Program         `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Stale reports whether the quote is older than ttl at now.
func (r *ExchangeRate) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.UpdatedAt) > ttl
}

// Reciprocal returns 1/rate truncated to RatePlaces, so that
// rate × Reciprocal(rate) never exceeds 1.
func Reciprocal(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Div(rate).RoundDown(RatePlaces)
}
