package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vestake/core"
	"vestake/core/events"
	"vestake/crypto"
	"vestake/gateway/middleware"
	"vestake/native/vestaking"
	"vestake/services/staking/wire"
)

const streamBuffer = 128

// Ledger is the subset of core.Node served over gRPC.
type Ledger interface {
	Deposit(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error)
	Withdraw(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error)
	Claim(ctx context.Context, user common.Address) (*vestaking.Settlement, error)
	UpdateRewardVars(ctx context.Context) (*vestaking.GlobalState, error)
	Quote(user common.Address) (*vestaking.Settlement, error)
	UserInfo(user common.Address) (*vestaking.UserInfo, error)
	Ledger() (*core.LedgerView, error)
	Params() (vestaking.Params, error)
}

// StakingServer is the handler set registered under ServiceDesc.
type StakingServer interface {
	Deposit(context.Context, *wire.AmountRequest) (*vestaking.Settlement, error)
	Withdraw(context.Context, *wire.AmountRequest) (*vestaking.Settlement, error)
	Claim(context.Context, *wire.Empty) (*vestaking.Settlement, error)
	UpdateRewardVars(context.Context, *wire.Empty) (*vestaking.GlobalState, error)
	PendingReward(context.Context, *wire.AccountRequest) (*wire.PendingReply, error)
	GetUser(context.Context, *wire.AccountRequest) (*vestaking.UserInfo, error)
	GetLedger(context.Context, *wire.Empty) (*core.LedgerView, error)
	GetParams(context.Context, *wire.Empty) (*vestaking.Params, error)
	StreamEvents(*wire.EventsRequest, grpc.ServerStream) error
}

// Service implements StakingServer over a Ledger. It is also an events.Sink
// feeding StreamEvents subscribers.
type Service struct {
	ledger Ledger
	feed   *events.Broadcaster
	logger *slog.Logger
}

func New(ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, feed: events.NewBroadcaster(), logger: logger}
}

// Register attaches the service to a gRPC server.
func (s *Service) Register(registrar grpc.ServiceRegistrar) {
	registrar.RegisterService(&ServiceDesc, s)
}

// Publish implements events.Sink.
func (s *Service) Publish(records []events.Record) { s.feed.Publish(records) }

// Subscribers reports the number of open event streams.
func (s *Service) Subscribers() int { return s.feed.Len() }

func (s *Service) Deposit(ctx context.Context, req *wire.AmountRequest) (*vestaking.Settlement, error) {
	caller, amount, err := callerAndAmount(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.ledger.Deposit(ctx, caller, amount)
	return result, toStatus(err)
}

func (s *Service) Withdraw(ctx context.Context, req *wire.AmountRequest) (*vestaking.Settlement, error) {
	caller, amount, err := callerAndAmount(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.ledger.Withdraw(ctx, caller, amount)
	return result, toStatus(err)
}

func (s *Service) Claim(ctx context.Context, _ *wire.Empty) (*vestaking.Settlement, error) {
	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller identity required")
	}
	result, err := s.ledger.Claim(ctx, caller)
	return result, toStatus(err)
}

func (s *Service) UpdateRewardVars(ctx context.Context, _ *wire.Empty) (*vestaking.GlobalState, error) {
	global, err := s.ledger.UpdateRewardVars(ctx)
	return global, toStatus(err)
}

func (s *Service) PendingReward(_ context.Context, req *wire.AccountRequest) (*wire.PendingReply, error) {
	addr, err := parseAccount(req.Account)
	if err != nil {
		return nil, err
	}
	quote, err := s.ledger.Quote(addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.PendingReply{Account: addr, Pending: quote.Minted, Quote: quote}, nil
}

func (s *Service) GetUser(_ context.Context, req *wire.AccountRequest) (*vestaking.UserInfo, error) {
	addr, err := parseAccount(req.Account)
	if err != nil {
		return nil, err
	}
	info, err := s.ledger.UserInfo(addr)
	return info, toStatus(err)
}

func (s *Service) GetLedger(context.Context, *wire.Empty) (*core.LedgerView, error) {
	view, err := s.ledger.Ledger()
	return view, toStatus(err)
}

func (s *Service) GetParams(context.Context, *wire.Empty) (*vestaking.Params, error) {
	params, err := s.ledger.Params()
	if err != nil {
		return nil, toStatus(err)
	}
	return &params, nil
}

// StreamEvents sends committed records matching req until the client goes
// away. Streams that fall behind end with ResourceExhausted.
func (s *Service) StreamEvents(req *wire.EventsRequest, stream grpc.ServerStream) error {
	filter := events.Filter{Type: strings.TrimSpace(req.Type)}
	if account := strings.TrimSpace(req.Account); account != "" {
		addr, err := parseAccount(account)
		if err != nil {
			return err
		}
		filter.Account = addr.Hex()
	}
	sub := s.feed.Subscribe(filter, streamBuffer)
	defer sub.Close()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Dropped():
			s.logger.Warn("staking rpc: dropping slow event stream")
			return status.Error(codes.ResourceExhausted, "event stream fell behind")
		case record := <-sub.C:
			if err := stream.SendMsg(&record); err != nil {
				return err
			}
		}
	}
}

func callerAndAmount(ctx context.Context, req *wire.AmountRequest) (common.Address, *uint256.Int, error) {
	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		return common.Address{}, nil, status.Error(codes.Unauthenticated, "caller identity required")
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(req.Amount))
	if err != nil {
		return common.Address{}, nil, status.Errorf(codes.InvalidArgument, "InvalidAmount: %v", err)
	}
	return caller, amount, nil
}

func parseAccount(value string) (common.Address, error) {
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return common.Address{}, status.Errorf(codes.InvalidArgument, "InvalidAddress: %v", err)
	}
	return addr, nil
}
