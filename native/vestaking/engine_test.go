package vestaking_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"vestake/core/events"
	"vestake/core/state"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
	"vestake/storage"
)

const genesisTime int64 = 1_700_000_000

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	issuer = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type harness struct {
	t       *testing.T
	manager *state.Manager
	ledger  *vestaking.Engine
	token   *vetoken.Engine
	asset   *bank.Engine
	events  *events.Buffer
	now     int64
}

func testParams() vestaking.Params {
	return vestaking.Params{
		BaseRatePerSharePerSec:    ether(1),
		SpeedUpRatePerSharePerSec: ether(1),
		SpeedUpThresholdPct:       5,
		SpeedUpDurationSec:        50,
		MaxCapPct:                 20_000,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: genesisTime, events: &events.Buffer{}}
	h.manager = state.NewManager(storage.NewMemDB())

	h.asset = bank.NewEngine("STAKE")
	h.asset.SetState(h.manager)
	h.asset.SetEmitter(h.events)
	require.NoError(t, h.asset.Register(bank.AssetInfo{Name: "Stake", Symbol: "STAKE", Decimals: 18, Issuer: issuer}))

	h.token = vetoken.NewEngine("VESTAKE")
	h.token.SetState(h.manager)
	h.token.SetEmitter(h.events)
	require.NoError(t, h.token.Register(vetoken.Metadata{
		Name:     "Vote Escrowed Stake",
		Symbol:   "VESTAKE",
		Decimals: vetoken.DefaultDecimals,
		Owner:    vestaking.ModuleAddress,
	}))

	h.ledger = vestaking.NewEngine()
	h.ledger.SetState(h.manager)
	h.ledger.SetToken(h.token)
	h.ledger.SetAsset(h.asset)
	h.ledger.SetEmitter(h.events)
	h.ledger.SetNowFunc(func() int64 { return h.now })
	require.NoError(t, h.ledger.Initialise(admin, testParams()))
	h.events.Reset()
	return h
}

func ether(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), vestaking.Precision)
}

func (h *harness) advance(seconds int64) { h.now += seconds }

func (h *harness) fund(user common.Address, amount *uint256.Int) {
	h.t.Helper()
	require.NoError(h.t, h.asset.Mint(issuer, user, amount))
	allowance, err := h.asset.Allowance(user, vestaking.ModuleAddress)
	require.NoError(h.t, err)
	require.NoError(h.t, h.asset.Approve(user, vestaking.ModuleAddress, new(uint256.Int).Add(allowance, amount)))
}

func (h *harness) deposit(user common.Address, amount *uint256.Int) *vestaking.Settlement {
	h.t.Helper()
	h.fund(user, amount)
	result, err := h.ledger.Deposit(user, amount)
	require.NoError(h.t, err)
	return result
}

func (h *harness) derived(user common.Address) *uint256.Int {
	h.t.Helper()
	balance, err := h.token.BalanceOf(user)
	require.NoError(h.t, err)
	return balance
}

func (h *harness) user(user common.Address) *vestaking.UserInfo {
	h.t.Helper()
	info, err := h.ledger.UserInfo(user)
	require.NoError(h.t, err)
	return info
}

func TestClaimAfterFullSpeedUpWindow(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	require.Equal(t, uint64(genesisTime+50), h.user(alice).SpeedUpEndTimestamp)

	h.advance(50)
	pending, err := h.ledger.PendingReward(alice)
	require.NoError(t, err)
	require.Equal(t, ether(10_000), pending)

	result, err := h.ledger.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, ether(5_000), result.Base)
	require.Equal(t, ether(5_000), result.SpeedUp)
	require.Equal(t, ether(10_000), result.Minted)
	require.Equal(t, ether(10_000), h.derived(alice))

	info := h.user(alice)
	require.Zero(t, info.SpeedUpEndTimestamp)
	require.Equal(t, uint64(h.now), info.LastClaimTimestamp)

	pending, err = h.ledger.PendingReward(alice)
	require.NoError(t, err)
	require.True(t, pending.IsZero())
}

func TestSmallSecondDepositSettlesWithoutNewWindow(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))

	// 30s of base plus 30s of speed-up on 100 staked.
	h.advance(30)
	result := h.deposit(alice, ether(1))
	require.Equal(t, ether(6_000), result.Minted)
	require.Equal(t, ether(6_000), h.derived(alice))

	info := h.user(alice)
	require.Equal(t, ether(101), info.Balance)
	require.Zero(t, info.SpeedUpEndTimestamp)

	// Only base accrues once the window is forfeited.
	h.advance(10)
	pending, err := h.ledger.PendingReward(alice)
	require.NoError(t, err)
	require.Equal(t, ether(1_010), pending)
}

func TestLargeSecondDepositRestartsWindow(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(10)

	result := h.deposit(alice, ether(5))
	require.Equal(t, ether(2_000), result.Minted)
	require.Equal(t, uint64(h.now+50), h.user(alice).SpeedUpEndTimestamp)
}

func TestSpeedUpThresholdRules(t *testing.T) {
	cases := []struct {
		name     string
		first    uint64
		second   uint64
		expected bool
	}{
		{name: "first deposit always qualifies", first: 0, second: 1, expected: true},
		{name: "exactly at threshold", first: 100, second: 5, expected: true},
		{name: "below threshold", first: 100, second: 4, expected: false},
		{name: "well above threshold", first: 100, second: 100, expected: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.first > 0 {
				h.deposit(alice, ether(tc.first))
				h.advance(60)
			}
			h.deposit(alice, ether(tc.second))
			info := h.user(alice)
			if tc.expected {
				require.Equal(t, uint64(h.now+50), info.SpeedUpEndTimestamp)
			} else {
				require.Zero(t, info.SpeedUpEndTimestamp)
			}
		})
	}
}

func TestSpeedUpStopsAtWindowEnd(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(80)

	result, err := h.ledger.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, ether(8_000), result.Base)
	require.Equal(t, ether(5_000), result.SpeedUp)
}

func TestMultiRateAccrual(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))

	h.advance(10)
	require.NoError(t, h.ledger.SetBaseRate(admin, ether(2)))
	h.advance(10)
	require.NoError(t, h.ledger.SetBaseRate(admin, uint256.NewInt(1_500_000_000_000_000_000)))
	h.advance(10)

	result, err := h.ledger.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, ether(4_500), result.Base)
	require.Equal(t, ether(3_000), result.SpeedUp)
	require.Equal(t, ether(7_500), result.Minted)

	acc, err := h.ledger.AccPerShare()
	require.NoError(t, err)
	require.Equal(t, ether(45), acc)
}

func TestCapSaturation(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(19_999)

	result, err := h.ledger.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, ether(20_000), result.Minted)
	require.Equal(t, ether(20_000), result.Cap)
	require.False(t, result.Discarded.IsZero())
	require.Equal(t, ether(20_000), h.derived(alice))

	h.advance(100)
	pending, err := h.ledger.PendingReward(alice)
	require.NoError(t, err)
	require.True(t, pending.IsZero())

	result, err = h.ledger.Claim(alice)
	require.NoError(t, err)
	require.True(t, result.Minted.IsZero())
	require.Equal(t, ether(20_000), h.derived(alice))

	// Raising the cap opens headroom for rewards accrued since the last claim.
	h.advance(100)
	require.NoError(t, h.ledger.SetMaxCapPct(admin, 30_000))
	pending, err = h.ledger.PendingReward(alice)
	require.NoError(t, err)
	require.Equal(t, ether(10_000), pending)
}

func TestSetMaxCapPct(t *testing.T) {
	cases := []struct {
		name   string
		caller common.Address
		value  uint64
		err    error
	}{
		{name: "non admin", caller: alice, value: 30_000, err: vestaking.ErrUnauthorized},
		{name: "unchanged", caller: admin, value: 20_000, err: vestaking.ErrParameterOutOfRange},
		{name: "lower", caller: admin, value: 10_000, err: vestaking.ErrParameterOutOfRange},
		{name: "above ceiling", caller: admin, value: vestaking.MaxCapPctCeiling + 1, err: vestaking.ErrParameterOutOfRange},
		{name: "at ceiling", caller: admin, value: vestaking.MaxCapPctCeiling},
		{name: "higher", caller: admin, value: 30_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			err := h.ledger.SetMaxCapPct(tc.caller, tc.value)
			params, perr := h.ledger.Params()
			require.NoError(t, perr)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.Equal(t, uint64(20_000), params.MaxCapPct)
				require.Zero(t, h.events.Len())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.value, params.MaxCapPct)
			require.Equal(t, 1, h.events.Len())
		})
	}
}

func TestParameterSetterBounds(t *testing.T) {
	h := newHarness(t)
	tooFast := new(uint256.Int).AddUint64(vestaking.MaxRatePerSharePerSec, 1)

	require.ErrorIs(t, h.ledger.SetBaseRate(alice, ether(2)), vestaking.ErrUnauthorized)
	require.ErrorIs(t, h.ledger.SetBaseRate(admin, tooFast), vestaking.ErrParameterOutOfRange)
	require.NoError(t, h.ledger.SetBaseRate(admin, vestaking.MaxRatePerSharePerSec))

	require.ErrorIs(t, h.ledger.SetSpeedUpRate(alice, ether(2)), vestaking.ErrUnauthorized)
	require.ErrorIs(t, h.ledger.SetSpeedUpRate(admin, tooFast), vestaking.ErrParameterOutOfRange)
	require.NoError(t, h.ledger.SetSpeedUpRate(admin, ether(3)))

	require.ErrorIs(t, h.ledger.SetSpeedUpThresholdPct(admin, 0), vestaking.ErrParameterOutOfRange)
	require.ErrorIs(t, h.ledger.SetSpeedUpThresholdPct(admin, 101), vestaking.ErrParameterOutOfRange)
	require.ErrorIs(t, h.ledger.SetSpeedUpThresholdPct(bob, 10), vestaking.ErrUnauthorized)
	require.NoError(t, h.ledger.SetSpeedUpThresholdPct(admin, 100))

	require.ErrorIs(t, h.ledger.SetSpeedUpDuration(admin, vestaking.MaxSpeedUpDurationSec+1), vestaking.ErrParameterOutOfRange)
	require.NoError(t, h.ledger.SetSpeedUpDuration(admin, vestaking.MaxSpeedUpDurationSec))

	params, err := h.ledger.Params()
	require.NoError(t, err)
	require.Equal(t, vestaking.MaxRatePerSharePerSec, params.BaseRatePerSharePerSec)
	require.Equal(t, ether(3), params.SpeedUpRatePerSharePerSec)
	require.Equal(t, uint64(100), params.SpeedUpThresholdPct)
	require.Equal(t, vestaking.MaxSpeedUpDurationSec, params.SpeedUpDurationSec)
}

func TestTransferAdmin(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.ledger.TransferAdmin(admin, common.Address{}), vestaking.ErrInvalidAddress)
	require.ErrorIs(t, h.ledger.TransferAdmin(alice, bob), vestaking.ErrUnauthorized)
	require.NoError(t, h.ledger.TransferAdmin(admin, bob))

	current, err := h.ledger.Admin()
	require.NoError(t, err)
	require.Equal(t, bob, current)
	require.ErrorIs(t, h.ledger.SetMaxCapPct(admin, 30_000), vestaking.ErrUnauthorized)
	require.NoError(t, h.ledger.SetMaxCapPct(bob, 30_000))
}

func TestSetBoostAggregatorForwardsToToken(t *testing.T) {
	h := newHarness(t)
	aggregator := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	require.ErrorIs(t, h.ledger.SetBoostAggregator(alice, aggregator), vestaking.ErrUnauthorized)
	require.NoError(t, h.ledger.SetBoostAggregator(admin, aggregator))

	got, err := h.ledger.BoostAggregator()
	require.NoError(t, err)
	require.Equal(t, aggregator, got)
	onToken, err := h.token.BoostAggregator()
	require.NoError(t, err)
	require.Equal(t, aggregator, onToken)
}

func TestWithdrawMoreThanStakedLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(10)
	before := h.user(alice)
	lastReward, err := h.ledger.LastRewardTimestamp()
	require.NoError(t, err)
	h.events.Reset()

	_, err = h.ledger.Withdraw(alice, ether(101))
	require.ErrorIs(t, err, vestaking.ErrInsufficientBalance)

	require.Equal(t, before, h.user(alice))
	require.True(t, h.derived(alice).IsZero())
	after, err := h.ledger.LastRewardTimestamp()
	require.NoError(t, err)
	require.Equal(t, lastReward, after)
	require.Zero(t, h.events.Len())
}

func TestWithdrawBurnsDerivedBalance(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(10)

	result, err := h.ledger.Withdraw(alice, ether(40))
	require.NoError(t, err)
	require.Equal(t, ether(2_000), result.Minted)
	require.Equal(t, ether(2_000), result.Burned)
	require.True(t, h.derived(alice).IsZero())

	supply, err := h.token.TotalSupply()
	require.NoError(t, err)
	require.True(t, supply.IsZero())

	returned, err := h.asset.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, ether(40), returned)

	info := h.user(alice)
	require.Equal(t, ether(60), info.Balance)
	require.Zero(t, info.SpeedUpEndTimestamp)
}

func TestWithdrawEverythingKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(10))
	h.advance(5)
	_, err := h.ledger.Withdraw(alice, ether(10))
	require.NoError(t, err)

	info := h.user(alice)
	require.True(t, info.Balance.IsZero())
	require.True(t, info.RewardDebt.IsZero())
	require.Equal(t, uint64(h.now), info.LastClaimTimestamp)

	_, err = h.ledger.Claim(alice)
	require.ErrorIs(t, err, vestaking.ErrNothingStaked)
}

func TestZeroAmountsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Deposit(alice, new(uint256.Int))
	require.ErrorIs(t, err, vestaking.ErrInvalidAmount)
	_, err = h.ledger.Withdraw(alice, nil)
	require.ErrorIs(t, err, vestaking.ErrInvalidAmount)
	_, err = h.ledger.Claim(alice)
	require.ErrorIs(t, err, vestaking.ErrNothingStaked)
}

func TestFailedDepositRollsBackSettlement(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(10)
	before := h.user(alice)
	h.events.Reset()

	// No allowance left: settlement would mint but the transfer fails.
	_, err := h.ledger.Deposit(alice, ether(50))
	require.ErrorIs(t, err, bank.ErrInsufficientAllowance)

	require.True(t, h.derived(alice).IsZero())
	require.Equal(t, before, h.user(alice))
	staked, err := h.ledger.TotalStaked()
	require.NoError(t, err)
	require.Equal(t, ether(100), staked)
	require.Zero(t, h.events.Len())
}

func TestHoldingsMatchSumOfBalances(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(7)
	h.deposit(bob, ether(50))
	h.advance(3)
	h.deposit(carol, ether(10))
	_, err := h.ledger.Withdraw(alice, ether(20))
	require.NoError(t, err)
	h.advance(11)
	_, err = h.ledger.Withdraw(carol, ether(10))
	require.NoError(t, err)

	sum := new(uint256.Int)
	for _, user := range []common.Address{alice, bob, carol} {
		sum.Add(sum, h.user(user).Balance)
	}
	holdings, err := h.asset.BalanceOf(vestaking.ModuleAddress)
	require.NoError(t, err)
	staked, err := h.ledger.TotalStaked()
	require.NoError(t, err)
	require.Equal(t, ether(130), sum)
	require.Equal(t, sum, holdings)
	require.Equal(t, sum, staked)
}

func TestAccumulatorAccruesWhileEmpty(t *testing.T) {
	h := newHarness(t)
	h.advance(30)
	global, err := h.ledger.UpdateRewardVars()
	require.NoError(t, err)
	require.Equal(t, ether(30), global.AccPerShare)
	require.Equal(t, uint64(h.now), global.LastRewardTimestamp)

	h.deposit(alice, ether(1))
	_, err = h.ledger.Withdraw(alice, ether(1))
	require.NoError(t, err)
	h.advance(10)
	global, err = h.ledger.UpdateRewardVars()
	require.NoError(t, err)
	require.Equal(t, ether(40), global.AccPerShare)

	// A second refresh at the same instant changes nothing.
	again, err := h.ledger.UpdateRewardVars()
	require.NoError(t, err)
	require.Equal(t, global, again)
}

func TestDerivedBalanceNeverExceedsCap(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(3))
	for i := 0; i < 20; i++ {
		h.advance(1_500)
		if i%3 == 0 {
			h.deposit(alice, ether(1))
		} else {
			_, err := h.ledger.Claim(alice)
			require.NoError(t, err)
		}
		info := h.user(alice)
		params, err := h.ledger.Params()
		require.NoError(t, err)
		limit := new(uint256.Int).Div(new(uint256.Int).Mul(info.Balance, uint256.NewInt(params.MaxCapPct)), uint256.NewInt(100))
		require.LessOrEqual(t, h.derived(alice).Cmp(limit), 0)
	}
}

func TestEventsEmittedOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, ether(100))
	h.advance(50)
	h.events.Reset()
	_, err := h.ledger.Claim(alice)
	require.NoError(t, err)

	records := h.events.Drain(uint64(h.now))
	position := map[string]int{}
	for i, record := range records {
		if _, seen := position[record.Type]; !seen {
			position[record.Type] = i
		}
	}
	require.Contains(t, position, events.TypeStakeRewardVarsUpdated)
	require.Contains(t, position, events.TypeTokenMinted)
	require.Contains(t, position, events.TypeStakeClaimed)
	require.Less(t, position[events.TypeStakeRewardVarsUpdated], position[events.TypeTokenMinted])
	require.Less(t, position[events.TypeTokenMinted], position[events.TypeStakeClaimed])
}

func TestInitialiseTwiceFails(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.ledger.Initialise(admin, testParams()), vestaking.ErrAlreadyInitialised)

	bad := testParams()
	bad.SpeedUpThresholdPct = 0
	fresh := vestaking.NewEngine()
	fresh.SetState(state.NewManager(storage.NewMemDB()))
	fresh.SetToken(h.token)
	fresh.SetAsset(h.asset)
	require.ErrorIs(t, fresh.Initialise(admin, bad), vestaking.ErrParameterOutOfRange)
	require.ErrorIs(t, fresh.Initialise(common.Address{}, testParams()), vestaking.ErrInvalidAddress)

	_, err := fresh.Params()
	require.ErrorIs(t, err, vestaking.ErrNotInitialised)
}
