package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"vestake/core/events"
	"vestake/core/genesis"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
	"vestake/storage"
)

var (
	testAdmin  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	testIssuer = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	testUser   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type clock struct {
	mu  sync.Mutex
	now int64
}

func (c *clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]events.Record
}

func (s *recordingSink) Publish(records []events.Record) {
	s.mu.Lock()
	s.batches = append(s.batches, records)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, batch := range s.batches {
		for _, record := range batch {
			out = append(out, record.Type)
		}
	}
	return out
}

func wei(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), vestaking.Precision)
}

func testGenesis() *genesis.Genesis {
	return &genesis.Genesis{
		Time:  time.Unix(1_700_000_000, 0),
		Admin: testAdmin,
		Asset: bank.AssetInfo{Name: "Stake", Symbol: "STAKE", Decimals: 18, Issuer: testIssuer},
		Token: vetoken.Metadata{Name: "Vote Escrowed Stake", Symbol: "VESTAKE", Decimals: 18},
		Params: vestaking.Params{
			BaseRatePerSharePerSec:    wei(1),
			SpeedUpRatePerSharePerSec: wei(1),
			SpeedUpThresholdPct:       5,
			SpeedUpDurationSec:        50,
			MaxCapPct:                 20_000,
		},
		Alloc: []genesis.Allocation{{Account: testUser, Amount: wei(1_000)}},
	}
}

func newTestNode(t *testing.T, db storage.Database, c *clock, sink events.Sink) *Node {
	t.Helper()
	node, err := NewNode(db, testGenesis(), WithClock(c.Now), WithSink(sink))
	require.NoError(t, err)
	return node
}

func TestNodeAppliesGenesis(t *testing.T) {
	c := &clock{now: 1_700_000_000}
	node := newTestNode(t, storage.NewMemDB(), c, nil)

	balance, err := node.AssetBalance(testUser)
	require.NoError(t, err)
	require.Equal(t, wei(1_000), balance)

	meta, err := node.TokenMetadata()
	require.NoError(t, err)
	require.Equal(t, vestaking.ModuleAddress, meta.Owner)

	view, err := node.Ledger()
	require.NoError(t, err)
	require.Equal(t, testAdmin, view.Admin)
	require.Equal(t, uint64(c.Now()), view.LastRewardTimestamp)
}

func TestNodeDepositClaimPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	c := &clock{now: 1_700_000_000}
	sink := &recordingSink{}
	ctx := context.Background()

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node := newTestNode(t, db, c, sink)

	require.NoError(t, node.Approve(ctx, testUser, node.Module(), wei(100)))
	_, err = node.Deposit(ctx, testUser, wei(100))
	require.NoError(t, err)
	c.Advance(50)
	result, err := node.Claim(ctx, testUser)
	require.NoError(t, err)
	require.Equal(t, wei(10_000), result.Minted)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	reopened := newTestNode(t, db, c, nil)

	derived, err := reopened.TokenBalance(testUser)
	require.NoError(t, err)
	require.Equal(t, wei(10_000), derived)
	info, err := reopened.UserInfo(testUser)
	require.NoError(t, err)
	require.Equal(t, wei(100), info.Balance)
	held, err := reopened.AssetBalance(vestaking.ModuleAddress)
	require.NoError(t, err)
	require.Equal(t, wei(100), held)

	require.Contains(t, sink.types(), events.TypeAssetApproval)
	require.Contains(t, sink.types(), events.TypeStakeDeposited)
	require.Contains(t, sink.types(), events.TypeTokenMinted)
}

func TestNodeFailedOperationPublishesNothing(t *testing.T) {
	c := &clock{now: 1_700_000_000}
	sink := &recordingSink{}
	db := storage.NewMemDB()
	node := newTestNode(t, db, c, sink)
	ctx := context.Background()
	committed := db.Len()
	published := len(sink.types())
	before, err := node.Ledger()
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, before.CommitDigest)

	_, err = node.Deposit(ctx, testUser, wei(10))
	require.ErrorIs(t, err, bank.ErrInsufficientAllowance)
	require.Len(t, sink.types(), published)
	require.Equal(t, committed, db.Len())
	after, err := node.Ledger()
	require.NoError(t, err)
	require.Equal(t, before.CommitDigest, after.CommitDigest)

	info, err := node.UserInfo(testUser)
	require.NoError(t, err)
	require.True(t, info.Balance.IsZero())
}

func TestNodeSetParam(t *testing.T) {
	c := &clock{now: 1_700_000_000}
	node := newTestNode(t, storage.NewMemDB(), c, nil)
	ctx := context.Background()

	require.ErrorIs(t, node.SetParam(ctx, testAdmin, "bogus", "1"), vestaking.ErrParameterOutOfRange)
	require.ErrorIs(t, node.SetParam(ctx, testAdmin, vestaking.ParamMaxCapPct, "ten"), vestaking.ErrParameterOutOfRange)
	require.ErrorIs(t, node.SetParam(ctx, testUser, vestaking.ParamMaxCapPct, "30000"), vestaking.ErrUnauthorized)
	require.NoError(t, node.SetParam(ctx, testAdmin, vestaking.ParamMaxCapPct, "30000"))
	require.NoError(t, node.SetParam(ctx, testAdmin, vestaking.ParamBaseRate, "2000000000000000000"))
	require.NoError(t, node.SetParam(ctx, testAdmin, vestaking.ParamSpeedUpThreshold, "10"))
	require.NoError(t, node.SetParam(ctx, testAdmin, vestaking.ParamSpeedUpDuration, "3600"))

	params, err := node.Params()
	require.NoError(t, err)
	require.Equal(t, uint64(30_000), params.MaxCapPct)
	require.Equal(t, wei(2), params.BaseRatePerSharePerSec)
	require.Equal(t, uint64(10), params.SpeedUpThresholdPct)
	require.Equal(t, uint64(3600), params.SpeedUpDurationSec)
}

func TestNodeConcurrentDeposits(t *testing.T) {
	c := &clock{now: 1_700_000_000}
	node := newTestNode(t, storage.NewMemDB(), c, nil)
	ctx := context.Background()
	users := make([]common.Address, 8)
	for i := range users {
		users[i] = common.BigToAddress(uint256.NewInt(uint64(0x100 + i)).ToBig())
		require.NoError(t, node.Mint(ctx, testIssuer, users[i], wei(10)))
		require.NoError(t, node.Approve(ctx, users[i], node.Module(), wei(10)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(users)*5)
	for _, user := range users {
		wg.Add(1)
		go func(user common.Address) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := node.Deposit(ctx, user, wei(2)); err != nil {
					errs <- err
				}
			}
		}(user)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := node.Ledger()
	require.NoError(t, err)
	require.Equal(t, wei(80), view.TotalStaked)
	held, err := node.AssetBalance(node.Module())
	require.NoError(t, err)
	require.Equal(t, wei(80), held)
}
