package grpc

import (
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"github.com/shopspring/decimal"
)

// Wire messages of pointledger.v1.LedgerService. Amounts travel as decimal
// strings; numbers are accepted on input.

type RegisterUserRequest struct {
	Username string `json:"username"`
}

type RegisterUserResponse struct {
	UserID      string           `json:"user_id"`
	AccessToken string           `json:"access_token"`
	Wallets     []*models.Wallet `json:"wallets"`
}

type ConvertPointsRequest struct {
	FromProgram string          `json:"from_program"`
	ToProgram   string          `json:"to_program"`
	Amount      decimal.Decimal `json:"amount"`
}

type ConvertPointsResponse struct {
	Transaction *models.Transaction         `json:"transaction"`
	FromBalance decimal.Decimal             `json:"from_balance"`
	ToBalance   decimal.Decimal             `json:"to_balance"`
	Fee         decimal.Decimal             `json:"fee"`
	Details     *services.ConversionDetails `json:"details"`
}

type CreateTradeOfferRequest struct {
	FromProgram     string          `json:"from_program"`
	ToProgram       string          `json:"to_program"`
	AmountOffered   decimal.Decimal `json:"amount_offered"`
	AmountRequested decimal.Decimal `json:"amount_requested"`
	ExpiresInDays   int             `json:"expires_in_days"`
	Description     string          `json:"description"`
}

type OfferRequest struct {
	OfferID string `json:"offer_id"`
}

type OfferResponse struct {
	Offer *models.TradeOffer `json:"offer"`
}

type AcceptTradeOfferResponse struct {
	Trade *models.TradeTransaction `json:"trade"`
}

type ListOpenOffersRequest struct {
	FromProgram string `json:"from_program"`
	ToProgram   string `json:"to_program"`
	Limit       int    `json:"limit"`
}

type ListOffersResponse struct {
	Offers []*models.TradeOffer `json:"offers"`
}

type GetExchangeRateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ExchangeRateResponse struct {
	Rate *models.ExchangeRate `json:"rate"`
}

type GetUserStatsRequest struct{}

type UserStatsResponse struct {
	Stats *models.UserStats `json:"stats"`
}

type GetBalancesRequest struct{}

type BalancesResponse struct {
	Wallets []*models.Wallet `json:"wallets"`
}
