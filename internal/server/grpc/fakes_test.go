package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "secret"

type nopLogger = logging.Nop

type fakeUsers struct {
	reg      *services.Registration
	stats    *models.UserStats
	wallets  []*models.Wallet
	err      error
	lastName string
	lastUser string
}

func (f *fakeUsers) Register(_ context.Context, username string) (*services.Registration, error) {
	f.lastName = username
	return f.reg, f.err
}

func (f *fakeUsers) Stats(_ context.Context, userID string) (*models.UserStats, error) {
	f.lastUser = userID
	return f.stats, f.err
}

func (f *fakeUsers) Balances(_ context.Context, userID string) ([]*models.Wallet, error) {
	f.lastUser = userID
	return f.wallets, f.err
}

type fakeConversions struct {
	res      *services.ConversionResult
	err      error
	userID   string
	from, to models.Program
	amount   decimal.Decimal
}

func (f *fakeConversions) Convert(_ context.Context, userID string, from, to models.Program, amount decimal.Decimal) (*services.ConversionResult, error) {
	f.userID, f.from, f.to, f.amount = userID, from, to, amount
	return f.res, f.err
}

type fakeTrades struct {
	offer    *models.TradeOffer
	trade    *models.TradeTransaction
	list     []*models.TradeOffer
	err      error
	created  services.CreateOfferRequest
	userID   string
	offerID  string
	from, to models.Program
	limit    int
}

func (f *fakeTrades) CreateOffer(_ context.Context, req services.CreateOfferRequest) (*models.TradeOffer, error) {
	f.created = req
	return f.offer, f.err
}

func (f *fakeTrades) CancelOffer(_ context.Context, userID, offerID string) (*models.TradeOffer, error) {
	f.userID, f.offerID = userID, offerID
	return f.offer, f.err
}

func (f *fakeTrades) AcceptOffer(_ context.Context, userID, offerID string) (*models.TradeTransaction, error) {
	f.userID, f.offerID = userID, offerID
	return f.trade, f.err
}

func (f *fakeTrades) GetOffer(_ context.Context, offerID string) (*models.TradeOffer, error) {
	f.offerID = offerID
	return f.offer, f.err
}

func (f *fakeTrades) ListOpenOffers(_ context.Context, from, to models.Program, limit int) ([]*models.TradeOffer, error) {
	f.from, f.to, f.limit = from, to, limit
	return f.list, f.err
}

type fakeRates struct {
	rate *models.ExchangeRate
	err  error
}

func (f *fakeRates) Resolve(_ context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.rate
	r.From, r.To = from, to
	return &r, nil
}

type fixture struct {
	srv   *GRPCServer
	users *fakeUsers
	conv  *fakeConversions
	trade *fakeTrades
	rates *fakeRates
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: &fakeUsers{},
		conv:  &fakeConversions{},
		trade: &fakeTrades{},
		rates: &fakeRates{rate: &models.ExchangeRate{Rate: decimal.RequireFromString("1.8"), UpdatedAt: time.Now()}},
	}
	srv, err := NewGRPCServer("127.0.0.1:0", nopLogger{}, f.users, f.conv, f.trade, f.rates, testSecret, nil)
	require.NoError(t, err)
	f.srv = srv
	return f
}

func authed(userID string) context.Context {
	return context.WithValue(context.Background(), UserIDKey, userID)
}
