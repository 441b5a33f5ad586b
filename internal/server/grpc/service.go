package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pointledger.v1.LedgerService"

// LedgerServer is the server API of pointledger.v1.LedgerService.
type LedgerServer interface {
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	ConvertPoints(context.Context, *ConvertPointsRequest) (*ConvertPointsResponse, error)
	CreateTradeOffer(context.Context, *CreateTradeOfferRequest) (*OfferResponse, error)
	CancelTradeOffer(context.Context, *OfferRequest) (*OfferResponse, error)
	AcceptTradeOffer(context.Context, *OfferRequest) (*AcceptTradeOfferResponse, error)
	GetTradeOffer(context.Context, *OfferRequest) (*OfferResponse, error)
	ListOpenOffers(context.Context, *ListOpenOffersRequest) (*ListOffersResponse, error)
	GetExchangeRate(context.Context, *GetExchangeRateRequest) (*ExchangeRateResponse, error)
	GetUserStats(context.Context, *GetUserStatsRequest) (*UserStatsResponse, error)
	GetBalances(context.Context, *GetBalancesRequest) (*BalancesResponse, error)
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// FullMethod returns "/pointledger.v1.LedgerService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterUser", LedgerServer.RegisterUser),
		unary("ConvertPoints", LedgerServer.ConvertPoints),
		unary("CreateTradeOffer", LedgerServer.CreateTradeOffer),
		unary("CancelTradeOffer", LedgerServer.CancelTradeOffer),
		unary("AcceptTradeOffer", LedgerServer.AcceptTradeOffer),
		unary("GetTradeOffer", LedgerServer.GetTradeOffer),
		unary("ListOpenOffers", LedgerServer.ListOpenOffers),
		unary("GetExchangeRate", LedgerServer.GetExchangeRate),
		unary("GetUserStats", LedgerServer.GetUserStats),
		unary("GetBalances", LedgerServer.GetBalances),
		unary("Ping", LedgerServer.Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pointledger/v1/ledger",
}

// publicMethods can be called without an access token.
var publicMethods = map[string]bool{
	FullMethod("RegisterUser"):    true,
	FullMethod("GetExchangeRate"): true,
	FullMethod("ListOpenOffers"):  true,
	FullMethod("Ping"):            true,
}
