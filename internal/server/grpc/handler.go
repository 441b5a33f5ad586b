package grpc

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/services"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var _ LedgerServer = (*GRPCServer)(nil)

func (s *GRPCServer) RegisterUser(ctx context.Context, req *RegisterUserRequest) (*RegisterUserResponse, error) {

	s.logger.Info(ctx, "Registration request")

	reg, err := s.users.Register(ctx, req.Username)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Registered", "user_id", reg.User.ID)
	return &RegisterUserResponse{UserID: reg.User.ID, AccessToken: reg.AccessToken, Wallets: reg.Wallets}, nil
}

func (s *GRPCServer) ConvertPoints(ctx context.Context, req *ConvertPointsRequest) (*ConvertPointsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	from, to, err := parsePair(req.FromProgram, req.ToProgram)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.conversions.Convert(ctx, userID, from, to, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}

	return &ConvertPointsResponse{
		Transaction: res.Transaction,
		FromBalance: res.FromBalance,
		ToBalance:   res.ToBalance,
		Fee:         res.Fee,
		Details:     &res.Details,
	}, nil
}

func (s *GRPCServer) CreateTradeOffer(ctx context.Context, req *CreateTradeOfferRequest) (*OfferResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	from, to, err := parsePair(req.FromProgram, req.ToProgram)
	if err != nil {
		return nil, toStatus(err)
	}

	offer, err := s.trades.CreateOffer(ctx, services.CreateOfferRequest{
		UserID:          userID,
		FromProgram:     from,
		ToProgram:       to,
		AmountOffered:   req.AmountOffered,
		AmountRequested: req.AmountRequested,
		ExpiresInDays:   req.ExpiresInDays,
		Description:     req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &OfferResponse{Offer: offer}, nil
}

func (s *GRPCServer) CancelTradeOffer(ctx context.Context, req *OfferRequest) (*OfferResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	offer, err := s.trades.CancelOffer(ctx, userID, req.OfferID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OfferResponse{Offer: offer}, nil
}

func (s *GRPCServer) AcceptTradeOffer(ctx context.Context, req *OfferRequest) (*AcceptTradeOfferResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	trade, err := s.trades.AcceptOffer(ctx, userID, req.OfferID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AcceptTradeOfferResponse{Trade: trade}, nil
}

func (s *GRPCServer) GetTradeOffer(ctx context.Context, req *OfferRequest) (*OfferResponse, error) {
	offer, err := s.trades.GetOffer(ctx, req.OfferID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OfferResponse{Offer: offer}, nil
}

func (s *GRPCServer) ListOpenOffers(ctx context.Context, req *ListOpenOffersRequest) (*ListOffersResponse, error) {
	var from, to models.Program
	var err error
	if req.FromProgram != "" {
		if from, err = models.ParseProgram(req.FromProgram); err != nil {
			return nil, toStatus(err)
		}
	}
	if req.ToProgram != "" {
		if to, err = models.ParseProgram(req.ToProgram); err != nil {
			return nil, toStatus(err)
		}
	}

	list, err := s.trades.ListOpenOffers(ctx, from, to, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOffersResponse{Offers: list}, nil
}

func (s *GRPCServer) GetExchangeRate(ctx context.Context, req *GetExchangeRateRequest) (*ExchangeRateResponse, error) {
	from, to, err := parsePair(req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	rate, err := s.rates.Resolve(ctx, from, to)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExchangeRateResponse{Rate: rate}, nil
}

func (s *GRPCServer) GetUserStats(ctx context.Context, _ *GetUserStatsRequest) (*UserStatsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.users.Stats(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UserStatsResponse{Stats: stats}, nil
}

func (s *GRPCServer) GetBalances(ctx context.Context, _ *GetBalancesRequest) (*BalancesResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	wallets, err := s.users.Balances(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalancesResponse{Wallets: wallets}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {

	return wrapperspb.String("OK"), nil

}

func parsePair(from, to string) (models.Program, models.Program, error) {
	f, err := models.ParseProgram(from)
	if err != nil {
		return "", "", err
	}
	t, err := models.ParseProgram(to)
	if err != nil {
		return "", "", err
	}
	return f, t, nil
}
