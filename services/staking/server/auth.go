package server

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"vestake/crypto"
	"vestake/gateway/middleware"
	"vestake/services/staking/wire"
)

// TokenVerifier checks bearer tokens. *middleware.Authenticator satisfies it.
type TokenVerifier interface {
	Enabled() bool
	Authenticate(token string) (common.Address, error)
}

// NewAuthInterceptor binds the caller for mutating RPCs. With a nil or
// disabled verifier the caller is read from the x-vestake-caller metadata.
func NewAuthInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !isMsgMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		caller, err := authenticate(ctx, verifier)
		if err != nil {
			return nil, err
		}
		return handler(middleware.WithCaller(ctx, caller), req)
	}
}

func authenticate(ctx context.Context, verifier TokenVerifier) (common.Address, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if verifier == nil || !verifier.Enabled() {
		for _, value := range md.Get(wire.CallerMetadataKey) {
			if caller, err := crypto.ParseAccount(value); err == nil {
				return caller, nil
			}
		}
		return common.Address{}, status.Error(codes.Unauthenticated, "caller identity required")
	}
	for _, header := range md.Get("authorization") {
		token := parseBearerToken(header)
		if token == "" {
			continue
		}
		caller, err := verifier.Authenticate(token)
		if err != nil {
			return common.Address{}, status.Error(codes.Unauthenticated, "invalid token")
		}
		return caller, nil
	}
	return common.Address{}, status.Error(codes.Unauthenticated, "authentication required")
}

func parseBearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func isMsgMethod(fullMethod string) bool {
	switch fullMethod {
	case wire.MethodDeposit, wire.MethodWithdraw, wire.MethodClaim:
		return true
	default:
		return false
	}
}
