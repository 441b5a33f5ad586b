package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/mirror"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/offers"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/shopspring/decimal"
)

const (
	DefaultOfferDays = 7
	MinOfferDays     = 1
	MaxOfferDays     = 30

	defaultListLimit = 50
	maxListLimit     = 500
)

// CreateOfferRequest is the input of CreateOffer.
type CreateOfferRequest struct {
	UserID          string
	FromProgram     models.Program
	ToProgram       models.Program
	AmountOffered   decimal.Decimal
	AmountRequested decimal.Decimal
	// ExpiresInDays of 0 means DefaultOfferDays; other values are clamped
	// to [MinOfferDays, MaxOfferDays].
	ExpiresInDays int
	Description   string
}

// TradeService runs the P2P offer lifecycle:
//
//	open -> completed | cancelled | expired
//
// Every transition out of open is terminal. The offered amount leaves the
// creator's wallet at creation (escrow) and is released on cancel or
// expiry, or handed to the acceptor on completion.
type TradeService struct {
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

func NewTradeService(db *sql.DB, m repomanager.RepositoryManager, ledger *Ledger, rates *RateResolver,
	tiers *TierEngine, events EventPublisher, now timex.Clock, logger logging.Logger, met *metrics.Metrics) *TradeService {
	return &TradeService{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		rates:       rates,
		tiers:       tiers,
		events:      events,
		now:         now,
		logger:      logger.With("module", "trades"),
		metrics:     met,
	}
}

func clampOfferDays(days int) int {
	switch {
	case days == 0:
		return DefaultOfferDays
	case days < MinOfferDays:
		return MinOfferDays
	case days > MaxOfferDays:
		return MaxOfferDays
	}
	return days
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// CreateOffer validates the offer, moves AmountOffered into escrow and
// stores the offer as open, in one unit.
func (s *TradeService) CreateOffer(ctx context.Context, req CreateOfferRequest) (*models.TradeOffer, error) {
	offered := RoundPoints(req.AmountOffered)
	requested := RoundPoints(req.AmountRequested)
	if !offered.IsPositive() || !requested.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if !req.FromProgram.Valid() {
		return nil, fmt.Errorf("%q: %w", req.FromProgram, common.ErrUnsupportedProgram)
	}
	if !req.ToProgram.Valid() {
		return nil, fmt.Errorf("%q: %w", req.ToProgram, common.ErrUnsupportedProgram)
	}
	if req.FromProgram == req.ToProgram {
		return nil, common.ErrSameProgram
	}

	if _, err := s.user(ctx, req.UserID); err != nil {
		return nil, err
	}
	src, err := s.ledger.Balance(ctx, req.UserID, req.FromProgram)
	if err != nil {
		return nil, err
	}
	// the creator must be able to receive the requested program
	if _, err := s.ledger.Balance(ctx, req.UserID, req.ToProgram); err != nil {
		return nil, err
	}
	if src.Balance.LessThan(offered) {
		return nil, common.ErrInsufficientBalance
	}

	market, err := s.rates.Resolve(ctx, req.FromProgram, req.ToProgram)
	if err != nil {
		return nil, err
	}
	custom := requested.DivRound(offered, models.RatePlaces)
	savings := market.Rate.Sub(custom).Div(market.Rate).Mul(hundred).Round(4)

	now := s.now()
	offer := &models.TradeOffer{
		CreatorID:       req.UserID,
		FromProgram:     req.FromProgram,
		ToProgram:       req.ToProgram,
		AmountOffered:   offered,
		AmountRequested: requested,
		MarketRate:      market.Rate,
		CustomRate:      custom,
		SavingsPercent:  savings,
		Description:     req.Description,
		Status:          models.OfferOpen,
		CreatedAt:       now,
		ExpiresAt:       now.AddDate(0, 0, clampOfferDays(req.ExpiresInDays)),
	}

	err = s.ledger.Atomically(ctx, []string{src.ID}, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.ledger.Apply(ctx, tx, Postings{
			Debits: []Posting{{WalletID: src.ID, Amount: offered}},
		}); err != nil {
			return err
		}
		return s.repomanager.Offers(tx).Create(ctx, offer)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TradeAction("create")
	s.publish(ctx, mirror.Event{Type: mirror.OfferCreated, UserID: offer.CreatorID, OccurredAt: now, Data: offer})
	s.logger.Info(ctx, "trade offer created", "offer_id", offer.ID, "user_id", req.UserID,
		"from", req.FromProgram, "to", req.ToProgram, "offered", offered, "requested", requested, "savings_percent", savings)
	return offer, nil
}

// GetOffer returns the offer, expiring it first when it is past due.
func (s *TradeService) GetOffer(ctx context.Context, offerID string) (*models.TradeOffer, error) {
	o, err := s.repomanager.Offers(s.db).GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.ExpiredAt(s.now()) {
		return s.expire(ctx, o)
	}
	return o, nil
}

// CancelOffer releases the escrow of an open offer back to its creator.
// An offer found past due is expired (and that expiry committed) before the
// caller is told it is no longer open.
func (s *TradeService) CancelOffer(ctx context.Context, userID, offerID string) (*models.TradeOffer, error) {
	o, err := s.repomanager.Offers(s.db).GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.ledger.Balance(ctx, o.CreatorID, o.FromProgram)
	if err != nil {
		return nil, err
	}

	var (
		rejected error
		expired  bool
	)
	now := s.now()
	err = s.ledger.Atomically(ctx, []string{escrow.ID}, func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := s.repomanager.Offers(tx).GetByIDForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		o = cur

		if o.ExpiredAt(now) {
			if err := s.release(ctx, tx, o, escrow.ID, models.OfferExpired, now); err != nil {
				return err
			}
			expired = true
		}
		if o.CreatorID != userID {
			rejected = common.ErrNotOfferOwner
			return nil
		}
		if !o.IsOpen() {
			rejected = fmt.Errorf("offer %s is %s: %w", o.ID, o.Status, common.ErrOfferNotOpen)
			return nil
		}
		return s.release(ctx, tx, o, escrow.ID, models.OfferCancelled, now)
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.expired(ctx, o)
	}
	if rejected != nil {
		return nil, rejected
	}

	s.metrics.TradeAction("cancel")
	s.publish(ctx, mirror.Event{Type: mirror.OfferCancelled, UserID: o.CreatorID, OccurredAt: now, Data: o})
	s.logger.Info(ctx, "trade offer cancelled", "offer_id", o.ID, "user_id", userID)
	return o, nil
}

// AcceptOffer settles an open offer between its creator (seller) and
// userID (buyer). The buyer pays AmountRequested and receives the escrowed
// AmountOffered without fee; the seller receives AmountRequested less a fee
// derived from the seller's tier and the offer's discount to market.
func (s *TradeService) AcceptOffer(ctx context.Context, userID, offerID string) (*models.TradeTransaction, error) {
	o, err := s.repomanager.Offers(s.db).GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !o.IsOpen() {
		return nil, fmt.Errorf("offer %s is %s: %w", o.ID, o.Status, common.ErrOfferNotOpen)
	}
	if o.ExpiredAt(s.now()) {
		if _, err := s.expire(ctx, o); err != nil {
			return nil, err
		}
		return nil, common.ErrOfferExpired
	}
	if o.CreatorID == userID {
		return nil, common.ErrCannotAcceptOwnOffer
	}

	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	seller, err := s.user(ctx, o.CreatorID)
	if err != nil {
		return nil, err
	}

	buyerPays, err := s.ledger.Balance(ctx, userID, o.ToProgram)
	if err != nil {
		return nil, err
	}
	buyerGets, err := s.ledger.Balance(ctx, userID, o.FromProgram)
	if err != nil {
		return nil, err
	}
	sellerGets, err := s.ledger.Balance(ctx, o.CreatorID, o.ToProgram)
	if err != nil {
		return nil, err
	}
	sellerEscrow, err := s.ledger.Balance(ctx, o.CreatorID, o.FromProgram)
	if err != nil {
		return nil, err
	}
	if buyerPays.Balance.LessThan(o.AmountRequested) {
		return nil, common.ErrInsufficientBalance
	}

	benefit := s.tiers.Table().Benefit(seller.Tier)
	feePercent := s.fees.TradeFeePercent(benefit, o.SavingsPercent)
	sellerFee := s.fees.SellerFee(o.AmountRequested, feePercent)

	now := s.now()
	trade := &models.TradeTransaction{
		OfferID:            o.ID,
		SellerID:           o.CreatorID,
		BuyerID:            userID,
		SellerFromWalletID: sellerEscrow.ID,
		SellerToWalletID:   sellerGets.ID,
		BuyerFromWalletID:  buyerPays.ID,
		BuyerToWalletID:    buyerGets.ID,
		AmountOffered:      o.AmountOffered,
		AmountRequested:    o.AmountRequested,
		Rate:               o.CustomRate,
		SellerFee:          sellerFee,
		BuyerFee:           decimal.Zero,
		CreatedAt:          now,
	}

	var (
		rejected error
		expired  bool
	)
	ids := []string{buyerPays.ID, buyerGets.ID, sellerGets.ID, sellerEscrow.ID}
	err = s.ledger.Atomically(ctx, ids, func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := s.repomanager.Offers(tx).GetByIDForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		o = cur

		if !o.IsOpen() {
			rejected = fmt.Errorf("offer %s is %s: %w", o.ID, o.Status, common.ErrOfferNotOpen)
			return nil
		}
		if o.ExpiredAt(now) {
			if err := s.release(ctx, tx, o, sellerEscrow.ID, models.OfferExpired, now); err != nil {
				return err
			}
			expired = true
			rejected = common.ErrOfferExpired
			return nil
		}

		if _, err := s.ledger.Apply(ctx, tx, Postings{
			Debits: []Posting{{WalletID: buyerPays.ID, Amount: o.AmountRequested}},
			Credits: []Posting{
				{WalletID: buyerGets.ID, Amount: o.AmountOffered},
				{WalletID: sellerGets.ID, Amount: o.AmountRequested.Sub(sellerFee)},
			},
		}); err != nil {
			return err
		}

		if err := s.repomanager.Offers(tx).SetStatus(ctx, o.ID, models.OfferCompleted, now); err != nil {
			return err
		}
		o.Status = models.OfferCompleted
		o.ClosedAt = &now

		txRepo := s.repomanager.Transactions(tx)
		if err := txRepo.CreateTrade(ctx, trade); err != nil {
			return err
		}
		if err := txRepo.Create(ctx, &models.Transaction{
			UserID:      o.CreatorID,
			Kind:        models.TransactionTradeSell,
			FromProgram: o.FromProgram,
			ToProgram:   o.ToProgram,
			AmountFrom:  o.AmountOffered,
			AmountTo:    o.AmountRequested.Sub(sellerFee),
			FeeApplied:  sellerFee,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return txRepo.Create(ctx, &models.Transaction{
			UserID:      userID,
			Kind:        models.TransactionTradeBuy,
			FromProgram: o.ToProgram,
			ToProgram:   o.FromProgram,
			AmountFrom:  o.AmountRequested,
			AmountTo:    o.AmountOffered,
			FeeApplied:  decimal.Zero,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.expired(ctx, o)
	}
	if rejected != nil {
		return nil, rejected
	}

	s.tiers.recordBestEffort(ctx, o.CreatorID, o.AmountOffered, sellerFee)
	s.tiers.recordBestEffort(ctx, userID, o.AmountRequested, decimal.Zero)
	s.metrics.TradeAction("accept")
	s.metrics.FeeCollected("trade", sellerFee)
	s.publish(ctx, mirror.Event{Type: mirror.TradeCompleted, UserID: userID, OccurredAt: now, Data: trade})
	s.logger.Info(ctx, "trade offer accepted", "offer_id", o.ID, "seller_id", o.CreatorID, "buyer_id", userID,
		"seller_fee", sellerFee, "fee_percent", feePercent)
	return trade, nil
}

// ExpireDue expires up to limit past-due open offers with ids after afterID
// and returns how many it expired, plus the cursor for the next page ("" when
// none remain). Individual failures are logged and skipped, and the cursor
// still moves past them.
func (s *TradeService) ExpireDue(ctx context.Context, afterID string, limit int) (int, string, error) {
	limit = clampLimit(limit)
	ids, err := s.repomanager.Offers(s.db).ListExpiredOpen(ctx, s.now(), afterID, limit)
	if err != nil {
		return 0, "", err
	}

	n := 0
	for _, id := range ids {
		o, err := s.repomanager.Offers(s.db).GetByID(ctx, id)
		if err != nil {
			s.logger.Warn(ctx, "loading offer to expire", "offer_id", id, "error", err)
			continue
		}
		o, err = s.expire(ctx, o)
		if err != nil {
			s.logger.Warn(ctx, "expiring offer", "offer_id", id, "error", err)
			continue
		}
		if o.Status == models.OfferExpired {
			n++
		}
	}
	next := ""
	if len(ids) == limit {
		next = ids[len(ids)-1]
	}
	return n, next, nil
}

// ListOpenOffers lists open, unexpired offers, newest first. Zero-valued
// programs match any program.
func (s *TradeService) ListOpenOffers(ctx context.Context, from, to models.Program, limit int) ([]*models.TradeOffer, error) {
	list, err := s.repomanager.Offers(s.db).ListOpen(ctx, offers.ListFilter{
		FromProgram: from,
		ToProgram:   to,
		Limit:       clampLimit(limit),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := list[:0]
	for _, o := range list {
		if !o.ExpiredAt(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListUserOffers lists offers created by userID in any state, newest first.
func (s *TradeService) ListUserOffers(ctx context.Context, userID string, limit int) ([]*models.TradeOffer, error) {
	return s.repomanager.Offers(s.db).ListByCreator(ctx, userID, clampLimit(limit))
}

// expire moves a past-due open offer to expired and returns the escrow to
// its creator. It returns the offer as stored after the attempt.
func (s *TradeService) expire(ctx context.Context, o *models.TradeOffer) (*models.TradeOffer, error) {
	escrow, err := s.ledger.Balance(ctx, o.CreatorID, o.FromProgram)
	if err != nil {
		return nil, err
	}

	var expired bool
	now := s.now()
	err = s.ledger.Atomically(ctx, []string{escrow.ID}, func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := s.repomanager.Offers(tx).GetByIDForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		o = cur
		if !o.ExpiredAt(now) {
			return nil
		}
		expired = true
		return s.release(ctx, tx, o, escrow.ID, models.OfferExpired, now)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.expired(ctx, o)
	}
	return o, nil
}

// release credits the escrow back and closes the offer with status.
func (s *TradeService) release(ctx context.Context, tx dbx.DBTX, o *models.TradeOffer, escrowWalletID string, status models.OfferStatus, at time.Time) error {
	if _, err := s.ledger.Apply(ctx, tx, Postings{
		Credits: []Posting{{WalletID: escrowWalletID, Amount: o.AmountOffered}},
	}); err != nil {
		return err
	}
	if err := s.repomanager.Offers(tx).SetStatus(ctx, o.ID, status, at); err != nil {
		return err
	}
	o.Status = status
	o.ClosedAt = &at
	return nil
}

func (s *TradeService) expired(ctx context.Context, o *models.TradeOffer) {
	s.metrics.OfferExpired()
	s.metrics.TradeAction("expire")
	s.publish(ctx, mirror.Event{Type: mirror.OfferExpired, UserID: o.CreatorID, Data: o})
	s.logger.Info(ctx, "trade offer expired", "offer_id", o.ID, "user_id", o.CreatorID, "released", o.AmountOffered)
}

func (s *TradeService) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *TradeService) publish(ctx context.Context, e mirror.Event) {
	if s.events != nil {
		s.events.Publish(ctx, e)
	}
}
