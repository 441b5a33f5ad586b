// Package httpapi serves the read-only operations API: health, Prometheus
// metrics, rates, quotes, user stats and the open-offer marketplace.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type RateService interface {
	Resolve(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error)
}

type StatsService interface {
	Stats(ctx context.Context, userID string) (*models.UserStats, error)
}

type OfferService interface {
	ListOpenOffers(ctx context.Context, from, to models.Program, limit int) ([]*models.TradeOffer, error)
}

type QuoteService interface {
	Quote(ctx context.Context, tier models.Tier, from, to models.Program, amount decimal.Decimal) (decimal.Decimal, *services.ConversionDetails, error)
}

// Dependencies are the services the routes read from.
type Dependencies struct {
	Rates  RateService
	Users  StatsService
	Offers OfferService
	Quotes QuoteService
	// Gatherer backs /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server wraps an http.Server with the ops routes mounted.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
	deps       Dependencies
}

func New(addr string, logger logging.Logger, deps Dependencies) *Server {
	s := &Server{
		logger: logger.With("module", "http_server"),
		deps:   deps,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/rates/{from}/{to}", s.handleRate)
		r.Get("/quote", s.handleQuote)
		r.Get("/users/{id}/stats", s.handleUserStats)
		r.Get("/offers", s.handleOffers)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
