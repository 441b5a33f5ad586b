package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/mirror"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/offers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/rates"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/tiers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/users"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/wallets"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func fixedClock(at time.Time) timex.Clock {
	return func() time.Time { return at }
}

// movableClock is a Clock tests can advance.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordedEvents captures published mirror events.
type recordedEvents struct {
	mu     sync.Mutex
	events []mirror.Event
}

func (r *recordedEvents) Publish(_ context.Context, e mirror.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeSource quotes from a fixed table or fails with err.
type fakeSource struct {
	mu     sync.Mutex
	quotes map[[2]models.Program]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeSource) Quote(_ context.Context, from, to models.Program) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	q, ok := f.quotes[[2]models.Program{from, to}]
	if !ok {
		return decimal.Zero, common.ErrRateNotFound
	}
	return q, nil
}

// testEnv wires every service against one memStore and one sqlmock DB.
type testEnv struct {
	st     *memStore
	db     *sql.DB
	mock   sqlmock.Sqlmock
	clock  *movableClock
	met    *metrics.Metrics
	source *fakeSource
	events *recordedEvents

	ledger *Ledger
	rates  *RateResolver
	tiers  *TierEngine
	conv   *ConversionService
	trades *TradeService
}

var testEpoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMemStore()
	db, mock := newMockDB(t)
	clock := &movableClock{now: testEpoch}
	met := metrics.New("test", prometheus.NewRegistry())
	source := &fakeSource{}
	events := &recordedEvents{}
	log := logging.Nop{}

	for p, r := range DefaultReserveRates() {
		st.setRate(p, models.ReserveProgram, r.String(), testEpoch)
		st.setRate(models.ReserveProgram, p, models.Reciprocal(r).String(), testEpoch)
	}

	ledger := NewLedger(db, st, NewWalletLocker(), log, met)
	rates := NewRateResolver(db, st, source, time.Hour, clock.Now, log, met)
	tiers := NewTierEngine(db, st, defaultTable(), clock.Now, log, met)

	return &testEnv{
		st:     st,
		db:     db,
		mock:   mock,
		clock:  clock,
		met:    met,
		source: source,
		events: events,
		ledger: ledger,
		rates:  rates,
		tiers:  tiers,
		conv:   NewConversionService(db, st, ledger, rates, tiers, events, clock.Now, log, met),
		trades: NewTradeService(db, st, ledger, rates, tiers, events, clock.Now, log, met),
	}
}

// withSource rebuilds the rate resolver and the services reading it on top
// of src.
func (e *testEnv) withSource(src RateSource) {
	log := logging.Nop{}
	e.rates = NewRateResolver(e.db, e.st, src, time.Hour, e.clock.Now, log, e.met)
	e.conv = NewConversionService(e.db, e.st, e.ledger, e.rates, e.tiers, e.events, e.clock.Now, log, e.met)
	e.trades = NewTradeService(e.db, e.st, e.ledger, e.rates, e.tiers, e.events, e.clock.Now, log, e.met)
}

// expectTx expects n committed transactions.
func (e *testEnv) expectTx(n int) {
	for i := 0; i < n; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

func (e *testEnv) expectRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

// memStore is an in-memory RepositoryManager. It ignores the DBTX it is
// handed, so transaction boundaries are asserted through sqlmock instead.
type memStore struct {
	mu sync.Mutex

	users   map[string]*models.User
	wallets map[string]*models.Wallet
	rates   map[[2]models.Program]*models.ExchangeRate
	tiers   []models.TierBenefit
	txs     []*models.Transaction
	trades  []*models.TradeTransaction
	offers  map[string]*models.TradeOffer

	lockOrder []string

	creditErr   error
	rateGetErr  error
	userGetErr  error
	walletIDSeq int
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*models.User),
		wallets: make(map[string]*models.Wallet),
		rates:   make(map[[2]models.Program]*models.ExchangeRate),
		offers:  make(map[string]*models.TradeOffer),
	}
}

func (s *memStore) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (s *memStore) Users(dbx.DBTX) users.Repository               { return &memUsers{s} }
func (s *memStore) Wallets(dbx.DBTX) wallets.Repository           { return &memWallets{s} }
func (s *memStore) Rates(dbx.DBTX) rates.Repository               { return &memRates{s} }
func (s *memStore) Tiers(dbx.DBTX) tiers.Repository               { return &memTiers{s} }
func (s *memStore) Transactions(dbx.DBTX) transactions.Repository { return &memTxs{s} }
func (s *memStore) Offers(dbx.DBTX) offers.Repository             { return &memOffers{s} }

func (s *memStore) addUser(id string, tier models.Tier) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: id, UserName: id, Tier: tier, CreatedAt: time.Now()}
	s.users[id] = u
	return u
}

// addWallet stores a wallet with id "<user>-<program>".
func (s *memStore) addWallet(userID string, p models.Program, balance string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := userID + "-" + string(p)
	s.wallets[id] = &models.Wallet{ID: id, UserID: userID, Program: p, Balance: decimal.RequireFromString(balance)}
	return id
}

func (s *memStore) balance(walletID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[walletID].Balance
}

func (s *memStore) setRate(from, to models.Program, rate string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[[2]models.Program{from, to}] = &models.ExchangeRate{From: from, To: to, Rate: decimal.RequireFromString(rate), UpdatedAt: at}
}

func (s *memStore) offer(id string) models.TradeOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.offers[id]
}

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.UserName == u.UserName {
			return nil, errBoom{}
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Tier == "" {
		u.Tier = models.TierStandard
	}
	c := *u
	r.s.users[u.ID] = &c
	return u, nil
}

func (r *memUsers) get(id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userGetErr != nil {
		return nil, r.s.userGetErr
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) { return r.get(id) }

func (r *memUsers) GetByIDForUpdate(_ context.Context, id string) (*models.User, error) {
	return r.get(id)
}

func (r *memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.UserName == login {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) UpdateActivity(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return common.ErrorNotFound
	}
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

type memWallets struct{ s *memStore }

func (r *memWallets) Create(_ context.Context, w *models.Wallet) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.wallets {
		if x.UserID == w.UserID && x.Program == w.Program {
			c := *x
			return &c, nil
		}
	}
	if w.ID == "" {
		r.s.walletIDSeq++
		w.ID = w.UserID + "-" + string(w.Program)
	}
	c := *w
	r.s.wallets[w.ID] = &c
	return w, nil
}

func (r *memWallets) GetByID(_ context.Context, id string) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *w
	return &c, nil
}

func (r *memWallets) GetByUserProgram(_ context.Context, userID string, p models.Program) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID && w.Program == p {
			c := *w
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memWallets) ListByUser(_ context.Context, userID string) ([]*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Wallet
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Program < out[j].Program })
	return out, nil
}

func (r *memWallets) LockForUpdate(_ context.Context, id string) (*models.Wallet, error) {
	r.s.mu.Lock()
	r.s.lockOrder = append(r.s.lockOrder, id)
	r.s.mu.Unlock()
	return r.GetByID(context.Background(), id)
}

func (r *memWallets) Debit(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return decimal.Zero, common.ErrorNotFound
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, common.ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	return w.Balance, nil
}

func (r *memWallets) Credit(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.creditErr != nil {
		return decimal.Zero, r.s.creditErr
	}
	w, ok := r.s.wallets[id]
	if !ok {
		return decimal.Zero, common.ErrorNotFound
	}
	w.Balance = w.Balance.Add(amount)
	return w.Balance, nil
}

func (r *memWallets) SetLinkedAccount(_ context.Context, id string, account string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return common.ErrorNotFound
	}
	w.LinkedAccount = &account
	return nil
}

type memRates struct{ s *memStore }

func (r *memRates) Get(_ context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.rateGetErr != nil {
		return nil, r.s.rateGetErr
	}
	rate, ok := r.s.rates[[2]models.Program{from, to}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *rate
	return &c, nil
}

func (r *memRates) Upsert(_ context.Context, rate *models.ExchangeRate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *rate
	r.s.rates[[2]models.Program{rate.From, rate.To}] = &c
	return nil
}

func (r *memRates) List(_ context.Context) ([]*models.ExchangeRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ExchangeRate
	for _, rate := range r.s.rates {
		c := *rate
		out = append(out, &c)
	}
	return out, nil
}

type memTiers struct{ s *memStore }

func (r *memTiers) List(_ context.Context) ([]models.TierBenefit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.TierBenefit(nil), r.s.tiers...), nil
}

func (r *memTiers) Upsert(_ context.Context, b models.TierBenefit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.tiers {
		if r.s.tiers[i].Tier == b.Tier {
			r.s.tiers[i] = b
			return nil
		}
	}
	r.s.tiers = append(r.s.tiers, b)
	return nil
}

type memTxs struct{ s *memStore }

func (r *memTxs) Create(_ context.Context, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == "" {
		t.ID = transactions.NewID()
	}
	if t.Status == "" {
		t.Status = models.TransactionCompleted
	}
	c := *t
	r.s.txs = append(r.s.txs, &c)
	return nil
}

func (r *memTxs) CreateTrade(_ context.Context, t *models.TradeTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == "" {
		t.ID = transactions.NewID()
	}
	c := *t
	r.s.trades = append(r.s.trades, &c)
	return nil
}

func (r *memTxs) ListByUser(_ context.Context, userID string, limit int) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Transaction
	for i := len(r.s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.txs[i].UserID == userID {
			c := *r.s.txs[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memTxs) GetTradeByOffer(_ context.Context, offerID string) (*models.TradeTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.trades {
		if t.OfferID == offerID {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memOffers struct{ s *memStore }

func (r *memOffers) Create(_ context.Context, o *models.TradeOffer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OfferOpen
	}
	c := *o
	r.s.offers[o.ID] = &c
	return nil
}

func (r *memOffers) GetByID(_ context.Context, id string) (*models.TradeOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok {
		return nil, common.ErrOfferNotFound
	}
	c := *o
	return &c, nil
}

func (r *memOffers) GetByIDForUpdate(ctx context.Context, id string) (*models.TradeOffer, error) {
	return r.GetByID(ctx, id)
}

func (r *memOffers) SetStatus(_ context.Context, id string, status models.OfferStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok || o.Status != models.OfferOpen {
		return common.ErrOfferNotOpen
	}
	o.Status = status
	o.ClosedAt = &at
	return nil
}

func (r *memOffers) ListExpiredOpen(_ context.Context, now time.Time, afterID string, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, o := range r.s.offers {
		if o.Status == models.OfferOpen && o.ExpiresAt.Before(now) && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *memOffers) ListOpen(_ context.Context, f offers.ListFilter) ([]*models.TradeOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TradeOffer
	for _, o := range r.s.offers {
		if o.Status != models.OfferOpen {
			continue
		}
		if f.FromProgram != "" && o.FromProgram != f.FromProgram {
			continue
		}
		if f.ToProgram != "" && o.ToProgram != f.ToProgram {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memOffers) ListByCreator(_ context.Context, creatorID string, limit int) ([]*models.TradeOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TradeOffer
	for _, o := range r.s.offers {
		if o.CreatorID == creatorID {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
