// Package grpc exposes the ledger services as pointledger.v1.LedgerService
// over gRPC with a JSON wire codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
)

type UserService interface {
	Register(ctx context.Context, username string) (*services.Registration, error)
	Stats(ctx context.Context, userID string) (*models.UserStats, error)
	Balances(ctx context.Context, userID string) ([]*models.Wallet, error)
}

type ConversionService interface {
	Convert(ctx context.Context, userID string, from, to models.Program, amount decimal.Decimal) (*services.ConversionResult, error)
}

type TradeService interface {
	CreateOffer(ctx context.Context, req services.CreateOfferRequest) (*models.TradeOffer, error)
	CancelOffer(ctx context.Context, userID, offerID string) (*models.TradeOffer, error)
	AcceptOffer(ctx context.Context, userID, offerID string) (*models.TradeTransaction, error)
	GetOffer(ctx context.Context, offerID string) (*models.TradeOffer, error)
	ListOpenOffers(ctx context.Context, from, to models.Program, limit int) ([]*models.TradeOffer, error)
}

type RateService interface {
	Resolve(ctx context.Context, from, to models.Program) (*models.ExchangeRate, error)
}

type GRPCServer struct {
	address     string
	users       UserService
	conversions ConversionService
	trades      TradeService
	rates       RateService
	logger      logging.Logger
	metrics     *metrics.Metrics
	jwtSecret   []byte
}

func NewGRPCServer(a string, l logging.Logger, us UserService, cs ConversionService, ts TradeService, rs RateService,
	secretKey string, met *metrics.Metrics) (*GRPCServer, error) {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		users:       us,
		conversions: cs,
		trades:      ts,
		rates:       rs,
		metrics:     met,
		jwtSecret:   []byte(secretKey),
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor))
	srv.RegisterService(&ledgerServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
