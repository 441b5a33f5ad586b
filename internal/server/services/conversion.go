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
	"github.com/dmitrijs2005/pointledger/internal/server/mirror"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/shopspring/decimal"
)

// EventPublisher receives committed ledger events. *mirror.Publisher
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, e mirror.Event)
}

// ConversionDetails explains how a conversion was priced.
type ConversionDetails struct {
	Triangulated bool `json:"triangulated"`
	// Rate is the effective from->to rate applied to the net amount.
	Rate decimal.Decimal `json:"rate"`
	// ToReserveRate and FromReserveRate are set when the reserve was used
	// as the settlement currency.
	ToReserveRate   decimal.Decimal `json:"to_reserve_rate"`
	FromReserveRate decimal.Decimal `json:"from_reserve_rate"`
	ReserveAmount   decimal.Decimal `json:"reserve_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	FreeLimit       decimal.Decimal `json:"free_limit"`
	FeeRate         decimal.Decimal `json:"fee_rate"`
	Tier            models.Tier     `json:"tier"`
}

type ConversionResult struct {
	Transaction *models.Transaction `json:"transaction"`
	FromBalance decimal.Decimal     `json:"from_balance"`
	ToBalance   decimal.Decimal     `json:"to_balance"`
	Fee         decimal.Decimal     `json:"fee"`
	Details     ConversionDetails   `json:"details"`
}

// ConversionService converts one user's points between programs.
type ConversionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      *Ledger
	rates       *RateResolver
	fees        FeeCalculator
	tiers       *TierEngine
	events      EventPublisher
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewConversionService(db *sql.DB, m repomanager.RepositoryManager, ledger *Ledger, rates *RateResolver,
	tiers *TierEngine, events EventPublisher, now timex.Clock, logger logging.Logger, met *metrics.Metrics) *ConversionService {
	return &ConversionService{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		rates:       rates,
		tiers:       tiers,
		events:      events,
		now:         now,
		logger:      logger.With("module", "conversion"),
		metrics:     met,
	}
}

// Convert debits amount from the user's source wallet and credits the
// converted net amount to the destination wallet. The fee is destroyed.
// Every rejection happens before any balance is touched.
func (s *ConversionService) Convert(ctx context.Context, userID string, from, to models.Program, amount decimal.Decimal) (*ConversionResult, error) {
	amount = RoundPoints(amount)
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if !from.Valid() {
		return nil, fmt.Errorf("%q: %w", from, common.ErrUnsupportedProgram)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%q: %w", to, common.ErrUnsupportedProgram)
	}
	if from == to {
		return nil, common.ErrSameProgram
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}

	src, err := s.ledger.Balance(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	dst, err := s.ledger.Balance(ctx, userID, to)
	if err != nil {
		return nil, err
	}
	if src.Balance.LessThan(amount) {
		return nil, common.ErrInsufficientBalance
	}

	benefit := s.tiers.Table().Benefit(user.Tier)
	fee := s.fees.ConversionFee(benefit, amount)
	details := ConversionDetails{
		NetAmount: amount.Sub(fee),
		FreeLimit: benefit.FreeConversionLimit,
		FeeRate:   benefit.ConversionFeeRate,
		Tier:      benefit.Tier,
	}

	credit, err := s.price(ctx, from, to, &details)
	if err != nil {
		return nil, err
	}
	if !credit.IsPositive() {
		return nil, fmt.Errorf("converted amount rounds to zero: %w", common.ErrInvalidAmount)
	}

	tx := &models.Transaction{
		UserID:      userID,
		Kind:        models.TransactionConversion,
		FromProgram: from,
		ToProgram:   to,
		AmountFrom:  amount,
		AmountTo:    credit,
		FeeApplied:  fee,
		Status:      models.TransactionCompleted,
		CreatedAt:   s.now(),
	}

	var balances map[string]decimal.Decimal
	err = s.ledger.Atomically(ctx, []string{src.ID, dst.ID}, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		balances, err = s.ledger.Apply(ctx, db, Postings{
			Debits:  []Posting{{WalletID: src.ID, Amount: amount}},
			Credits: []Posting{{WalletID: dst.ID, Amount: credit}},
		})
		if err != nil {
			return err
		}
		return s.repomanager.Transactions(db).Create(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.tiers.recordBestEffort(ctx, userID, amount, fee)
	s.metrics.ConversionCompleted(string(from), string(to), fee)
	s.publish(ctx, mirror.Event{Type: mirror.ConversionCompleted, UserID: userID, OccurredAt: tx.CreatedAt, Data: tx})
	s.logger.Info(ctx, "conversion completed", "user_id", userID, "from", from, "to", to,
		"amount", amount, "credit", credit, "fee", fee, "transaction_id", tx.ID)

	return &ConversionResult{
		Transaction: tx,
		FromBalance: balances[src.ID],
		ToBalance:   balances[dst.ID],
		Fee:         fee,
		Details:     details,
	}, nil
}

// Quote prices a conversion without executing it.
func (s *ConversionService) Quote(ctx context.Context, tier models.Tier, from, to models.Program, amount decimal.Decimal) (decimal.Decimal, *ConversionDetails, error) {
	amount = RoundPoints(amount)
	if !amount.IsPositive() {
		return decimal.Zero, nil, common.ErrInvalidAmount
	}
	if from == to {
		return decimal.Zero, nil, common.ErrSameProgram
	}
	benefit := s.tiers.Table().Benefit(tier)
	fee := s.fees.ConversionFee(benefit, amount)
	details := &ConversionDetails{
		NetAmount: amount.Sub(fee),
		FreeLimit: benefit.FreeConversionLimit,
		FeeRate:   benefit.ConversionFeeRate,
		Tier:      benefit.Tier,
	}
	credit, err := s.price(ctx, from, to, details)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return credit, details, nil
}

// price converts details.NetAmount into the destination program. Between
// two non-reserve programs the amount settles through the reserve and is
// truncated at each hop.
func (s *ConversionService) price(ctx context.Context, from, to models.Program, details *ConversionDetails) (decimal.Decimal, error) {
	if from.IsReserve() || to.IsReserve() {
		rate, err := s.rates.Resolve(ctx, from, to)
		if err != nil {
			return decimal.Zero, err
		}
		credit := FloorPoints(details.NetAmount.Mul(rate.Rate))
		details.Rate = rate.Rate
		if from.IsReserve() {
			details.ReserveAmount = details.NetAmount
		} else {
			details.ReserveAmount = credit
		}
		return credit, nil
	}

	toReserve, err := s.rates.Resolve(ctx, from, models.ReserveProgram)
	if err != nil {
		return decimal.Zero, err
	}
	fromReserve, err := s.rates.Resolve(ctx, models.ReserveProgram, to)
	if err != nil {
		return decimal.Zero, err
	}

	reserve := FloorPoints(details.NetAmount.Mul(toReserve.Rate))
	credit := FloorPoints(reserve.Mul(fromReserve.Rate))

	details.Triangulated = true
	details.ToReserveRate = toReserve.Rate
	details.FromReserveRate = fromReserve.Rate
	details.Rate = toReserve.Rate.Mul(fromReserve.Rate).Round(models.RatePlaces)
	details.ReserveAmount = reserve
	return credit, nil
}

func (s *ConversionService) publish(ctx context.Context, e mirror.Event) {
	if s.events != nil {
		s.events.Publish(ctx, e)
	}
}
