package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// Posting moves Amount out of (debit) or into (credit) one wallet.
type Posting struct {
	WalletID string
	Amount   decimal.Decimal
}

// Postings is one atomic ledger unit. Debits are applied before credits.
type Postings struct {
	Debits  []Posting
	Credits []Posting
}

func (p Postings) walletIDs() []string {
	ids := make([]string, 0, len(p.Debits)+len(p.Credits))
	for _, x := range p.Debits {
		ids = append(ids, x.WalletID)
	}
	for _, x := range p.Credits {
		ids = append(ids, x.WalletID)
	}
	return sortedUnique(ids)
}

// Ledger owns every balance mutation.
type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	locker      *WalletLocker
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewLedger(db *sql.DB, m repomanager.RepositoryManager, locker *WalletLocker, logger logging.Logger, met *metrics.Metrics) *Ledger {
	return &Ledger{
		db:          db,
		repomanager: m,
		locker:      locker,
		logger:      logger.With("module", "ledger"),
		metrics:     met,
	}
}

// Balance returns the user's wallet for program.
func (l *Ledger) Balance(ctx context.Context, userID string, program models.Program) (*models.Wallet, error) {
	w, err := l.repomanager.Wallets(l.db).GetByUserProgram(ctx, userID, program)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%s wallet of user %s: %w", program, userID, common.ErrWalletNotFound)
		}
		return nil, err
	}
	return w, nil
}

// Wallets lists all wallets of a user.
func (l *Ledger) Wallets(ctx context.Context, userID string) ([]*models.Wallet, error) {
	return l.repomanager.Wallets(l.db).ListByUser(ctx, userID)
}

// EnsureWallet creates the (user, program) wallet with an opening balance
// unless it already exists, in which case the existing one is returned
// untouched.
func (l *Ledger) EnsureWallet(ctx context.Context, db dbx.DBTX, userID string, program models.Program, opening decimal.Decimal) (*models.Wallet, error) {
	if !program.Valid() {
		return nil, fmt.Errorf("%q: %w", program, common.ErrUnsupportedProgram)
	}
	return l.repomanager.Wallets(db).Create(ctx, &models.Wallet{
		UserID:  userID,
		Program: program,
		Balance: RoundPoints(opening),
	})
}

// Atomically runs fn in one database transaction while holding the
// in-process locks of walletIDs. fn should mutate balances through Apply.
func (l *Ledger) Atomically(ctx context.Context, walletIDs []string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	unlock := l.locker.Lock(walletIDs...)
	defer unlock()

	// in-flight units run to completion even if the caller goes away
	return dbx.WithTx(context.WithoutCancel(ctx), l.db, nil, fn)
}

// Apply row-locks every wallet of p in ascending id order, applies all
// debits, then all credits, and returns the resulting balances by wallet id.
//
// A credit that fails after any debit succeeded is reported as
// common.ErrLedgerIntegrity; the caller's transaction must then roll back.
func (l *Ledger) Apply(ctx context.Context, tx dbx.DBTX, p Postings) (map[string]decimal.Decimal, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	repo := l.repomanager.Wallets(tx)

	balances := make(map[string]decimal.Decimal)
	for _, id := range p.walletIDs() {
		w, err := repo.LockForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, fmt.Errorf("wallet %s: %w", id, common.ErrWalletNotFound)
			}
			return nil, err
		}
		balances[id] = w.Balance
	}

	for _, d := range p.Debits {
		bal, err := repo.Debit(ctx, d.WalletID, d.Amount)
		if err != nil {
			return nil, fmt.Errorf("debit wallet %s: %w", d.WalletID, err)
		}
		balances[d.WalletID] = bal
	}

	for _, c := range p.Credits {
		bal, err := repo.Credit(ctx, c.WalletID, c.Amount)
		if err != nil {
			if len(p.Debits) == 0 {
				return nil, fmt.Errorf("credit wallet %s: %w", c.WalletID, err)
			}
			l.metrics.IntegrityViolation()
			l.logger.Error(ctx, "credit failed after debit, rolling back unit",
				"wallet_id", c.WalletID, "amount", c.Amount, "error", err)
			return nil, fmt.Errorf("%w: credit wallet %s: %v", common.ErrLedgerIntegrity, c.WalletID, err)
		}
		balances[c.WalletID] = bal
	}

	return balances, nil
}

func (p Postings) validate() error {
	for _, x := range append(append([]Posting{}, p.Debits...), p.Credits...) {
		if !x.Amount.IsPositive() {
			return fmt.Errorf("posting %s on wallet %s: %w", x.Amount, x.WalletID, common.ErrInvalidAmount)
		}
	}
	return nil
}
