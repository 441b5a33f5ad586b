package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes. Unknown errors are
// reported as Internal without leaking their text.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, common.ErrLedgerIntegrity):
		return status.Error(codes.Internal, common.ErrLedgerIntegrity.Error())
	case errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrSameProgram),
		errors.Is(err, common.ErrUnsupportedProgram),
		errors.Is(err, common.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrWalletNotFound),
		errors.Is(err, common.ErrRateNotFound),
		errors.Is(err, common.ErrOfferNotFound),
		errors.Is(err, common.ErrorNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrOfferNotOpen),
		errors.Is(err, common.ErrOfferExpired),
		errors.Is(err, common.ErrCannotAcceptOwnOffer):
		code = codes.FailedPrecondition
	case errors.Is(err, common.ErrNotOfferOwner):
		code = codes.PermissionDenied
	case errors.Is(err, common.ErrUserExists):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
