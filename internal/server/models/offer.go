package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the state of a trade offer. Every state but open is terminal.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "open"
	OfferCompleted OfferStatus = "completed"
	OfferCancelled OfferStatus = "cancelled"
	OfferExpired   OfferStatus = "expired"
)

// TradeOffer offers AmountOffered of FromProgram for AmountRequested of
// ToProgram. The offered amount sits in escrow while the offer is open.
type TradeOffer struct {
	ID              string          `json:"id"`
	CreatorID       string          `json:"creator_id"`
	FromProgram     Program         `json:"from_program"`
	ToProgram       Program         `json:"to_program"`
	AmountOffered   decimal.Decimal `json:"amount_offered"`
	AmountRequested decimal.Decimal `json:"amount_requested"`
	MarketRate      decimal.Decimal `json:"market_rate"`
	CustomRate      decimal.Decimal `json:"custom_rate"`
	SavingsPercent  decimal.Decimal `json:"savings_percent"`
	Description     string          `json:"description,omitempty"`
	Status          OfferStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
}

// IsOpen reports whether the offer can still transition.
func (o *TradeOffer) IsOpen() bool { return o.Status == OfferOpen }

// ExpiredAt reports whether an open offer is past its expiry at now.
func (o *TradeOffer) ExpiredAt(now time.Time) bool {
	return o.IsOpen() && now.After(o.ExpiresAt)
}

// TradeTransaction is the immutable settlement record of a completed offer.
// The seller is the offer creator, the buyer is the acceptor.
type TradeTransaction struct {
	ID                 string          `json:"id"`
	OfferID            string          `json:"offer_id"`
	SellerID           string          `json:"seller_id"`
	BuyerID            string          `json:"buyer_id"`
	SellerFromWalletID string          `json:"seller_from_wallet_id"`
	SellerToWalletID   string          `json:"seller_to_wallet_id"`
	BuyerFromWalletID  string          `json:"buyer_from_wallet_id"`
	BuyerToWalletID    string          `json:"buyer_to_wallet_id"`
	AmountOffered      decimal.Decimal `json:"amount_offered"`
	AmountRequested    decimal.Decimal `json:"amount_requested"`
	Rate               decimal.Decimal `json:"rate"`
	SellerFee          decimal.Decimal `json:"seller_fee"`
	BuyerFee           decimal.Decimal `json:"buyer_fee"`
	CreatedAt          time.Time       `json:"created_at"`
}
