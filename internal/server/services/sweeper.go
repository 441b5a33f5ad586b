package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
)

// Sweeper periodically expires open offers nobody touches again, so their
// escrow does not stay locked forever.
type Sweeper struct {
	trades   *TradeService
	interval time.Duration
	batch    int
	logger   logging.Logger
}

func NewSweeper(trades *TradeService, interval time.Duration, batch int, logger logging.Logger) *Sweeper {
	return &Sweeper{
		trades:   trades,
		interval: interval,
		batch:    batch,
		logger:   logger.With("module", "sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "offer sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains every past-due offer, one batch at a time.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	total := 0
	cursor := ""
	for ctx.Err() == nil {
		n, next, err := s.trades.ExpireDue(ctx, cursor, s.batch)
		if err != nil {
			s.logger.Error(ctx, "offer sweep failed", "error", err)
			break
		}
		total += n
		if next == "" {
			break
		}
		cursor = next
	}
	if total > 0 {
		s.logger.Info(ctx, "expired stale offers", "count", total)
	}
	return total
}
