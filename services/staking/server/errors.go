package server

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgererrors "vestake/core/errors"
)

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := ledgererrors.Code(err)
	switch code {
	case ledgererrors.CodeInvalidAmount, ledgererrors.CodeParameterOutOfRange, ledgererrors.CodeInvalidAddress:
		return status.Errorf(codes.InvalidArgument, "%s: %v", code, err)
	case ledgererrors.CodeUnauthorized:
		return status.Errorf(codes.PermissionDenied, "%s: %v", code, err)
	case ledgererrors.CodeInsufficientBalance,
		ledgererrors.CodeInsufficientAllowance,
		ledgererrors.CodeNothingStaked,
		ledgererrors.CodeOwnershipRenunciationForbidden:
		return status.Errorf(codes.FailedPrecondition, "%s: %v", code, err)
	case ledgererrors.CodeNotInitialised:
		return status.Errorf(codes.Unavailable, "%s: ledger not initialised", code)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
