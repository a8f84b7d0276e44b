package server_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"vestake/core"
	"vestake/core/events"
	"vestake/core/genesis"
	"vestake/gateway/middleware"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
	"vestake/services/staking/client"
	"vestake/services/staking/server"
	"vestake/services/staking/wire"
	"vestake/storage"
)

const bufSize = 1 << 20

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	issuer = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func wei(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), vestaking.Precision)
}

type harness struct {
	node    *core.Node
	service *server.Service
	client  *client.Client
	now     *atomic.Int64
}

func newHarness(t *testing.T, verifier server.TokenVerifier) *harness {
	t.Helper()
	h := &harness{now: &atomic.Int64{}}
	h.now.Store(1_700_000_000)
	gen := &genesis.Genesis{
		Time:  time.Unix(h.now.Load(), 0),
		Admin: admin,
		Asset: bank.AssetInfo{Name: "Stake", Symbol: "STAKE", Decimals: 18, Issuer: issuer},
		Token: vetoken.Metadata{Name: "Vote Escrowed Stake", Symbol: "VESTAKE", Decimals: 18},
		Params: vestaking.Params{
			BaseRatePerSharePerSec:    wei(1),
			SpeedUpRatePerSharePerSec: wei(1),
			SpeedUpThresholdPct:       5,
			SpeedUpDurationSec:        50,
			MaxCapPct:                 20_000,
		},
		Alloc: []genesis.Allocation{{Account: alice, Amount: wei(1_000)}},
	}
	node, err := core.NewNode(storage.NewMemDB(), gen, core.WithClock(h.now.Load))
	require.NoError(t, err)
	h.node = node
	h.service = server.New(node, nil)
	node.AddSink(h.service)

	listener := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		otelgrpc.UnaryServerInterceptor(),
		server.NewAuthInterceptor(verifier),
	), grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()))
	h.service.Register(grpcServer)
	go func() {
		if err := grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			t.Errorf("serve bufconn: %v", err)
		}
	}()
	t.Cleanup(grpcServer.Stop)

	c, err := client.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	h.client = c
	return h
}

func asCaller(ctx context.Context, caller common.Address) context.Context {
	return metadata.AppendToOutgoingContext(ctx, wire.CallerMetadataKey, caller.Hex())
}

func TestDepositClaimOverGRPC(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.node.Approve(ctx, alice, h.node.Module(), wei(100)))

	result, err := h.client.Deposit(asCaller(ctx, alice), wei(100))
	require.NoError(t, err)
	require.Equal(t, alice, result.Account)

	h.now.Add(50)
	pending, err := h.client.PendingReward(ctx, alice.Hex())
	require.NoError(t, err)
	require.Equal(t, wei(10_000), pending.Pending)

	claimed, err := h.client.Claim(asCaller(ctx, alice))
	require.NoError(t, err)
	require.Equal(t, wei(10_000), claimed.Minted)

	info, err := h.client.GetUser(ctx, alice.Hex())
	require.NoError(t, err)
	require.Equal(t, wei(100), info.Balance)

	view, err := h.client.GetLedger(ctx)
	require.NoError(t, err)
	require.Equal(t, admin, view.Admin)

	params, err := h.client.GetParams(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), params.MaxCapPct)
}

func TestStatusCodes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.client.Claim(ctx)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client.Deposit(asCaller(ctx, alice), uint256.NewInt(0))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Deposit(asCaller(ctx, alice), uint256.NewInt(1))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.Contains(t, status.Convert(err).Message(), "InsufficientAllowance")

	_, err = h.client.Withdraw(asCaller(ctx, alice), uint256.NewInt(1))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.GetUser(ctx, "0x1234")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTokenAuthentication(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "s3cret"}, nil)
	h := newHarness(t, auth)
	ctx := context.Background()
	require.NoError(t, h.node.Approve(ctx, alice, h.node.Module(), uint256.NewInt(10)))

	// Metadata callers are ignored once tokens are required.
	_, err := h.client.Deposit(asCaller(ctx, alice), uint256.NewInt(10))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client.WithToken("garbage").Deposit(ctx, uint256.NewInt(10))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	token, err := middleware.IssueToken(middleware.TokenRequest{Secret: "s3cret", Subject: alice})
	require.NoError(t, err)
	result, err := h.client.WithToken(token).Deposit(ctx, uint256.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, alice, result.Account)

	// Reads stay open.
	_, err = h.client.GetLedger(ctx)
	require.NoError(t, err)
}

func TestStreamEventsDeliversCommittedRecords(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.client.StreamEvents(ctx, wire.EventsRequest{Type: events.TypeStakeDeposited, Account: alice.Hex()})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.service.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.node.Approve(ctx, alice, h.node.Module(), uint256.NewInt(3)))
	_, err = h.node.Deposit(ctx, alice, uint256.NewInt(3))
	require.NoError(t, err)

	record, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, events.TypeStakeDeposited, record.Type)
	require.Equal(t, "3", record.Attributes["amount"])
}
