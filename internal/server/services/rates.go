package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointledger/internal/timex"
	"github.com/shopspring/decimal"
)

// RateSource quotes a fresh rate for a directed pair.
type RateSource interface {
	Quote(ctx context.Context, from, to models.Program) (decimal.Decimal, error)
}

// RateCache is an optional read-through cache of resolved rates. Misses and
// failures are indistinguishable to the resolver.
type RateCache interface {
	GetRate(ctx context.Context, from, to models.Program) (*models.ExchangeRate, bool)
	SetRate(ctx context.Context, rate *models.ExchangeRate)
}

// DefaultReserveRates is how many reserve points one point of each program
// buys. The reverse leg is the reciprocal.
func DefaultReserveRates() map[models.Program]decimal.Decimal {
	d := decimal.RequireFromString
	return map[models.Program]decimal.Decimal{
		models.ProgramQantas:   d("1.8"),
		models.ProgramVelocity: d("1.5"),
		models.ProgramAmex:     d("1.2"),
		models.ProgramFlybuys:  d("0.5"),
		models.ProgramGYG:      d("0.8"),
		models.ProgramHilton:   d("0.4"),
		models.ProgramMarriott: d("0.9"),
		models.ProgramDelta:    d("1.1"),
		models.ProgramAirbnb:   d("2.0"),
	}
}

// StubRateSource quotes programs against the reserve from a base table
// with bounded multiplicative jitter. A program's jitter is drawn when its
// program->reserve leg is quoted; the reserve->program leg is the truncated
// reciprocal of the last draw. Pairs without a reserve endpoint are never
// quoted.
type StubRateSource struct {
	base   map[models.Program]decimal.Decimal
	jitter float64

	mu   sync.Mutex
	rnd  *rand.Rand
	last map[models.Program]decimal.Decimal
}

func NewStubRateSource(base map[models.Program]decimal.Decimal, jitter float64, seed uint64) *StubRateSource {
	return &StubRateSource{
		base:   base,
		jitter: jitter,
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last:   make(map[models.Program]decimal.Decimal),
	}
}

func (s *StubRateSource) Quote(_ context.Context, from, to models.Program) (decimal.Decimal, error) {
	switch {
	case to.IsReserve() && !from.IsReserve():
		return s.draw(from)
	case from.IsReserve() && !to.IsReserve():
		s.mu.Lock()
		mid, ok := s.last[to]
		s.mu.Unlock()
		if !ok {
			var err error
			if mid, err = s.draw(to); err != nil {
				return decimal.Zero, err
			}
		}
		return models.Reciprocal(mid), nil
	default:
		return decimal.Zero, fmt.Errorf("%s->%s is not quoted: %w", from, to, common.ErrRateNotFound)
	}
}

func (s *StubRateSource) draw(p models.Program) (decimal.Decimal, error) {
	b, ok := s.base[p]
	if !ok || !b.IsPositive() {
		return decimal.Zero, fmt.Errorf("no quote for %s: %w", p, common.ErrRateNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	factor := 1 + s.jitter*(2*s.rnd.Float64()-1)
	mid := b.Mul(decimal.NewFromFloat(factor)).Round(models.RatePlaces)
	s.last[p] = mid
	return mid, nil
}

// RateResolver returns the rate between any two supported programs,
// triangulating through the reserve when no direct quote exists.
type RateResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	source      RateSource
	cache       RateCache
	ttl         time.Duration
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewRateResolver(db *sql.DB, m repomanager.RepositoryManager, source RateSource, ttl time.Duration,
	now timex.Clock, logger logging.Logger, met *metrics.Metrics) *RateResolver {
	return &RateResolver{
		db:          db,
		repomanager: m,
		source:      source,
		ttl:         ttl,
		now:         now,
		logger:      logger.With("module", "rates"),
		metrics:     met,
	}
}

// WithCache enables the read-through cache.
func (r *RateResolver) WithCache(c RateCache) *RateResolver {
	r.cache = c
	return r
}

// Resolve never fails because of a stale quote or an unavailable source
// once some rate for the pair (or its reserve legs) has been stored.
func (r *RateResolver) Resolve(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("%q: %w", from, common.ErrUnsupportedProgram)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%q: %w", to, common.ErrUnsupportedProgram)
	}
	if from == to {
		return &models.ExchangeRate{From: from, To: to, Rate: decimal.NewFromInt(1), UpdatedAt: r.now()}, nil
	}

	if r.cache != nil {
		if rate, ok := r.cache.GetRate(ctx, from, to); ok {
			return rate, nil
		}
	}

	rate, err := r.resolve(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetRate(ctx, rate)
	}
	return rate, nil
}

func (r *RateResolver) resolve(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	if from.IsReserve() || to.IsReserve() {
		return r.reserveLeg(ctx, from, to)
	}

	stored, err := r.stored(ctx, from, to)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if stored != nil && !stored.Stale(now, r.ttl) {
		return stored, nil
	}

	if q, qErr := r.quote(ctx, from, to); qErr == nil {
		fresh := &models.ExchangeRate{From: from, To: to, Rate: q, UpdatedAt: now}
		r.store(ctx, fresh)
		r.metrics.RateRefresh("ok")
		return fresh, nil
	}

	composed, err := r.compose(ctx, from, to)
	switch {
	case err == nil && (stored == nil || !composed.UpdatedAt.Before(stored.UpdatedAt)):
		if stored != nil {
			r.metrics.RateRefresh("composed")
		}
		return composed, nil
	case err != nil && !errors.Is(err, common.ErrRateNotFound):
		return nil, err
	case stored != nil:
		r.metrics.RateRefresh("fallback")
		r.logger.Warn(ctx, "rate refresh failed, using last known rate",
			"from", from, "to", to, "age", now.Sub(stored.UpdatedAt))
		return stored, nil
	}
	return nil, err
}

// compose prices from->to through the reserve. The result is as old as its
// oldest leg.
func (r *RateResolver) compose(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	toReserve, err := r.reserveLeg(ctx, from, models.ReserveProgram)
	if err != nil {
		return nil, err
	}
	fromReserve, err := r.reserveLeg(ctx, models.ReserveProgram, to)
	if err != nil {
		return nil, err
	}

	updated := toReserve.UpdatedAt
	if fromReserve.UpdatedAt.Before(updated) {
		updated = fromReserve.UpdatedAt
	}
	return &models.ExchangeRate{
		From:      from,
		To:        to,
		Rate:      toReserve.Rate.Mul(fromReserve.Rate).Round(models.RatePlaces),
		UpdatedAt: updated,
	}, nil
}

// reserveLeg returns a stored program<->reserve quote, refreshing it when
// missing or stale. Both directions of a program are refreshed from one
// source quote, the reverse being its truncated reciprocal, so a round trip
// through the reserve never gains points.
func (r *RateResolver) reserveLeg(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	stored, err := r.stored(ctx, from, to)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if stored != nil && !stored.Stale(now, r.ttl) {
		return stored, nil
	}

	program := from
	if from.IsReserve() {
		program = to
	}

	q, qErr := r.quote(ctx, program, models.ReserveProgram)
	if qErr == nil {
		forward := &models.ExchangeRate{From: program, To: models.ReserveProgram, Rate: q, UpdatedAt: now}
		reverse := &models.ExchangeRate{From: models.ReserveProgram, To: program, Rate: models.Reciprocal(q), UpdatedAt: now}
		r.store(ctx, forward)
		r.store(ctx, reverse)
		r.metrics.RateRefresh("ok")
		if from.IsReserve() {
			return reverse, nil
		}
		return forward, nil
	}

	if stored != nil {
		r.metrics.RateRefresh("fallback")
		r.logger.Warn(ctx, "rate refresh failed, using last known rate",
			"from", from, "to", to, "age", now.Sub(stored.UpdatedAt), "error", qErr)
		return stored, nil
	}

	return nil, fmt.Errorf("%s->%s: %w", from, to, common.ErrRateNotFound)
}

func (r *RateResolver) stored(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error) {
	rate, err := r.repomanager.Rates(r.db).Get(ctx, from, to)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return rate, err
}

func (r *RateResolver) store(ctx context.Context, rate *models.ExchangeRate) {
	if err := r.repomanager.Rates(r.db).Upsert(ctx, rate); err != nil {
		r.logger.Warn(ctx, "storing refreshed rate failed", "from", rate.From, "to", rate.To, "error", err)
	}
}

func (r *RateResolver) quote(ctx context.Context, from, to models.Program) (decimal.Decimal, error) {
	if r.source == nil {
		return decimal.Zero, common.ErrRateNotFound
	}
	q, err := r.source.Quote(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive quote %s for %s->%s", q, from, to)
	}
	return q.Round(models.RatePlaces), nil
}
