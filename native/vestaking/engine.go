package vestaking

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"vestake/core/events"
)

// ModuleAddress is the account that custodies staked base asset and acts as
// the derived token authority.
var ModuleAddress = common.BytesToAddress(crypto.Keccak256([]byte("vestaking/module"))[12:])

type engineState interface {
	StakingGlobal() (*GlobalState, error)
	PutStakingGlobal(global *GlobalState) error
	StakingUser(addr common.Address) (*UserInfo, error)
	PutStakingUser(addr common.Address, info *UserInfo) error
	StakingParams() (*Params, bool, error)
	PutStakingParams(params *Params) error
	StakingGovernance() (*Governance, bool, error)
	PutStakingGovernance(gov *Governance) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type derivedToken interface {
	BalanceOf(addr common.Address) (*uint256.Int, error)
	Mint(caller, to common.Address, amount *uint256.Int) error
	BurnFrom(caller, from common.Address, amount *uint256.Int) error
	SetBoostAggregator(caller, aggregator common.Address) error
	SetEmitter(emitter events.Emitter)
}

type baseAsset interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	SetEmitter(emitter events.Emitter)
}

// Engine is the stake ledger. Every mutation refreshes the accumulator,
// settles the caller against the cap and only then applies its own delta.
type Engine struct {
	mu      sync.RWMutex
	state   engineState
	token   derivedToken
	asset   baseAsset
	module  common.Address
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a ledger engine custodying funds at ModuleAddress.
func NewEngine() *Engine {
	return &Engine{
		module:  ModuleAddress,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the derived token the ledger mints into. While a ledger
// operation runs the token emits into that operation's log; afterwards it is
// left pointing at the ledger's emitter.
func (e *Engine) SetToken(token derivedToken) { e.token = token }

// SetAsset configures the base asset the ledger custodies. Its events are
// routed the same way as the token's.
func (e *Engine) SetAsset(asset baseAsset) { e.asset = asset }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Module returns the custody account of the ledger.
func (e *Engine) Module() common.Address { return e.module }

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.token == nil || e.asset == nil {
		return ErrNilState
	}
	return nil
}

// Initialise writes the genesis parameters and governance. It fails when the
// ledger already holds parameters.
func (e *Engine) Initialise(admin common.Address, params Params) error {
	if err := e.ready(); err != nil {
		return err
	}
	if admin == (common.Address{}) {
		return fmt.Errorf("%w: admin required", ErrInvalidAddress)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.state.StakingParams(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialised
	}
	return e.atomically(func(op *opLog) error {
		stored := params.Clone()
		if err := e.state.PutStakingParams(&stored); err != nil {
			return err
		}
		if err := e.state.PutStakingGovernance(&Governance{Admin: admin}); err != nil {
			return err
		}
		global, err := e.state.StakingGlobal()
		if err != nil {
			return err
		}
		if global.LastRewardTimestamp == 0 {
			global.LastRewardTimestamp = e.now()
		}
		op.emit(events.StakeAdminTransferred{Admin: admin})
		return e.state.PutStakingGlobal(global)
	})
}

// Deposit locks amount of base asset for user. The caller must have approved
// the module account beforehand.
func (e *Engine) Deposit(user common.Address, amount *uint256.Int) (*Settlement, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *Settlement
	err := e.atomically(func(op *opLog) error {
		params, _, err := e.loadConfig()
		if err != nil {
			return err
		}
		now := e.now()
		global, err := e.refresh(op, params, now)
		if err != nil {
			return err
		}
		info, err := e.state.StakingUser(user)
		if err != nil {
			return err
		}
		prior := cloneAmount(info.Balance)
		result, err = e.settle(op, user, info, global, params, now)
		if err != nil {
			return err
		}
		qualifies, err := qualifiesForSpeedUp(prior, amount, params.SpeedUpThresholdPct)
		if err != nil {
			return err
		}
		if qualifies {
			info.SpeedUpEndTimestamp = now + params.SpeedUpDurationSec
		}
		if info.Balance, err = checkedAdd(info.Balance, amount); err != nil {
			return err
		}
		if global.TotalStaked, err = checkedAdd(global.TotalStaked, amount); err != nil {
			return err
		}
		if err := e.asset.TransferFrom(e.module, user, e.module, amount); err != nil {
			return fmt.Errorf("vestaking: lock deposit: %w", err)
		}
		if info.RewardDebt, err = accruedDebt(info.Balance, global.AccPerShare); err != nil {
			return err
		}
		if err := e.persist(user, info, global); err != nil {
			return err
		}
		result.User = info.Clone()
		op.emit(events.StakeDeposited{
			Account:             user,
			Amount:              cloneAmount(amount),
			NewBalance:          cloneAmount(info.Balance),
			SpeedUpEndTimestamp: info.SpeedUpEndTimestamp,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw releases amount of base asset to user. Settlement runs first and
// the user's entire derived balance is burned afterwards.
func (e *Engine) Withdraw(user common.Address, amount *uint256.Int) (*Settlement, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *Settlement
	err := e.atomically(func(op *opLog) error {
		info, err := e.state.StakingUser(user)
		if err != nil {
			return err
		}
		if amount.Cmp(info.Balance) > 0 {
			return ErrInsufficientBalance
		}
		params, _, err := e.loadConfig()
		if err != nil {
			return err
		}
		now := e.now()
		global, err := e.refresh(op, params, now)
		if err != nil {
			return err
		}
		result, err = e.settle(op, user, info, global, params, now)
		if err != nil {
			return err
		}
		held, err := e.token.BalanceOf(user)
		if err != nil {
			return err
		}
		if !held.IsZero() {
			if err := e.token.BurnFrom(e.module, user, held); err != nil {
				return fmt.Errorf("vestaking: burn derived balance: %w", err)
			}
			result.Burned = cloneAmount(held)
		}
		info.Balance = new(uint256.Int).Sub(info.Balance, amount)
		if global.TotalStaked.Cmp(amount) < 0 {
			return ErrArithmeticOverflow
		}
		global.TotalStaked = new(uint256.Int).Sub(global.TotalStaked, amount)
		if err := e.asset.Transfer(e.module, user, amount); err != nil {
			return fmt.Errorf("vestaking: release withdrawal: %w", err)
		}
		if info.RewardDebt, err = accruedDebt(info.Balance, global.AccPerShare); err != nil {
			return err
		}
		if err := e.persist(user, info, global); err != nil {
			return err
		}
		result.User = info.Clone()
		op.emit(events.StakeWithdrawn{
			Account:    user,
			Amount:     cloneAmount(amount),
			NewBalance: cloneAmount(info.Balance),
			Burned:     cloneAmount(result.Burned),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Claim settles the caller's accrued reward without moving stake.
func (e *Engine) Claim(user common.Address) (*Settlement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *Settlement
	err := e.atomically(func(op *opLog) error {
		info, err := e.state.StakingUser(user)
		if err != nil {
			return err
		}
		if info.Balance.IsZero() {
			return ErrNothingStaked
		}
		params, _, err := e.loadConfig()
		if err != nil {
			return err
		}
		now := e.now()
		global, err := e.refresh(op, params, now)
		if err != nil {
			return err
		}
		result, err = e.settle(op, user, info, global, params, now)
		if err != nil {
			return err
		}
		if err := e.persist(user, info, global); err != nil {
			return err
		}
		result.User = info.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateRewardVars advances the accumulator to the current clock.
func (e *Engine) UpdateRewardVars() (*GlobalState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var global *GlobalState
	err := e.atomically(func(op *opLog) error {
		params, _, err := e.loadConfig()
		if err != nil {
			return err
		}
		global, err = e.refresh(op, params, e.now())
		if err != nil {
			return err
		}
		return e.state.PutStakingGlobal(global)
	})
	if err != nil {
		return nil, err
	}
	return global.Clone(), nil
}

// PendingReward returns what a claim would mint for user at the current clock.
func (e *Engine) PendingReward(user common.Address) (*uint256.Int, error) {
	quote, err := e.Quote(user)
	if err != nil {
		return nil, err
	}
	return quote.Minted, nil
}

// Quote returns the full settlement breakdown a claim would produce at the
// current clock without mutating state.
func (e *Engine) Quote(user common.Address) (*Settlement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	params, _, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	global, err := e.state.StakingGlobal()
	if err != nil {
		return nil, err
	}
	now := e.now()
	projected, _, err := projectAccumulator(global, now, params.BaseRatePerSharePerSec)
	if err != nil {
		return nil, err
	}
	info, err := e.state.StakingUser(user)
	if err != nil {
		return nil, err
	}
	result, err := e.quote(user, info, projected, params, now)
	if err != nil {
		return nil, err
	}
	result.User = info.Clone()
	return result, nil
}

// UserInfo returns the staking record of user. Unknown accounts yield a zero record.
func (e *Engine) UserInfo(user common.Address) (*UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, err := e.state.StakingUser(user)
	if err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

// Global returns the stored accumulator state.
func (e *Engine) Global() (*GlobalState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	global, err := e.state.StakingGlobal()
	if err != nil {
		return nil, err
	}
	return global.Clone(), nil
}

// AccPerShare returns the stored accumulator value.
func (e *Engine) AccPerShare() (*uint256.Int, error) {
	global, err := e.Global()
	if err != nil {
		return nil, err
	}
	return global.AccPerShare, nil
}

// LastRewardTimestamp returns the time of the last accumulator refresh.
func (e *Engine) LastRewardTimestamp() (uint64, error) {
	global, err := e.Global()
	if err != nil {
		return 0, err
	}
	return global.LastRewardTimestamp, nil
}

// TotalStaked returns the base asset currently custodied by the ledger.
func (e *Engine) TotalStaked() (*uint256.Int, error) {
	global, err := e.Global()
	if err != nil {
		return nil, err
	}
	return global.TotalStaked, nil
}

// Params returns the current economic parameters.
func (e *Engine) Params() (Params, error) {
	if err := e.ready(); err != nil {
		return Params{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	params, _, err := e.loadConfig()
	if err != nil {
		return Params{}, err
	}
	return params.Clone(), nil
}

// Admin returns the account allowed to change parameters.
func (e *Engine) Admin() (common.Address, error) {
	gov, err := e.governance()
	if err != nil {
		return common.Address{}, err
	}
	return gov.Admin, nil
}

// BoostAggregator returns the registered boost aggregator, if any.
func (e *Engine) BoostAggregator() (common.Address, error) {
	gov, err := e.governance()
	if err != nil {
		return common.Address{}, err
	}
	return gov.BoostAggregator, nil
}

func (e *Engine) governance() (*Governance, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, gov, err := e.loadConfig()
	return gov, err
}

func (e *Engine) loadConfig() (Params, *Governance, error) {
	params, ok, err := e.state.StakingParams()
	if err != nil {
		return Params{}, nil, err
	}
	if !ok || params == nil {
		return Params{}, nil, ErrNotInitialised
	}
	gov, ok, err := e.state.StakingGovernance()
	if err != nil {
		return Params{}, nil, err
	}
	if !ok || gov == nil {
		return Params{}, nil, ErrNotInitialised
	}
	return params.Clone(), gov, nil
}

// refresh loads the global state and advances it to now at the given base
// rate. The caller persists the result.
func (e *Engine) refresh(op *opLog, params Params, now uint64) (*GlobalState, error) {
	global, err := e.state.StakingGlobal()
	if err != nil {
		return nil, err
	}
	next, advanced, err := projectAccumulator(global, now, params.BaseRatePerSharePerSec)
	if err != nil {
		return nil, err
	}
	if advanced && !next.AccPerShare.Eq(global.AccPerShare) {
		op.emit(events.StakeRewardVarsUpdated{
			AccPerShare:         cloneAmount(next.AccPerShare),
			LastRewardTimestamp: next.LastRewardTimestamp,
		})
	}
	return next, nil
}

// quote computes the base and speed-up reward owed to info and clamps it to
// the headroom left under the cap.
func (e *Engine) quote(user common.Address, info *UserInfo, global *GlobalState, params Params, now uint64) (*Settlement, error) {
	result := newSettlement(user, now)
	if info.Balance.IsZero() {
		return result, nil
	}
	accrued, err := accruedDebt(info.Balance, global.AccPerShare)
	if err != nil {
		return nil, err
	}
	result.Base = saturatingSub(accrued, info.RewardDebt)

	var seconds uint64
	if info.SpeedUpEndTimestamp != 0 {
		end := min(now, info.SpeedUpEndTimestamp)
		if end > info.LastClaimTimestamp {
			seconds = end - info.LastClaimTimestamp
		}
	}
	if result.SpeedUp, err = speedUpReward(info.Balance, seconds, params.SpeedUpRatePerSharePerSec); err != nil {
		return nil, err
	}
	if result.Pending, err = checkedAdd(result.Base, result.SpeedUp); err != nil {
		return nil, err
	}
	if result.Held, err = e.token.BalanceOf(user); err != nil {
		return nil, err
	}
	if result.Cap, err = rewardCap(info.Balance, params.MaxCapPct); err != nil {
		return nil, err
	}
	result.Minted = minAmount(result.Pending, saturatingSub(result.Cap, result.Held))
	result.Discarded = new(uint256.Int).Sub(result.Pending, result.Minted)
	return result, nil
}

// settle mints the clamped reward owed to user and resets the claim clock.
// Any active speed-up window is forfeited.
func (e *Engine) settle(op *opLog, user common.Address, info *UserInfo, global *GlobalState, params Params, now uint64) (*Settlement, error) {
	result, err := e.quote(user, info, global, params, now)
	if err != nil {
		return nil, err
	}
	if !result.Minted.IsZero() {
		if err := e.token.Mint(e.module, user, result.Minted); err != nil {
			return nil, fmt.Errorf("vestaking: mint reward: %w", err)
		}
		op.emit(events.StakeClaimed{
			Account: user,
			Minted:  cloneAmount(result.Minted),
			Base:    cloneAmount(result.Base),
			SpeedUp: cloneAmount(result.SpeedUp),
		})
	}
	if !result.Discarded.IsZero() {
		op.emit(events.StakeCapClamped{
			Account:   user,
			Pending:   cloneAmount(result.Pending),
			Cap:       cloneAmount(result.Cap),
			Held:      cloneAmount(result.Held),
			Discarded: cloneAmount(result.Discarded),
		})
	}
	info.LastClaimTimestamp = now
	info.SpeedUpEndTimestamp = 0
	if info.RewardDebt, err = accruedDebt(info.Balance, global.AccPerShare); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) persist(user common.Address, info *UserInfo, global *GlobalState) error {
	if err := e.state.PutStakingUser(user, info); err != nil {
		return err
	}
	return e.state.PutStakingGlobal(global)
}

type opLog struct {
	events []events.Event
}

func (l *opLog) emit(evt events.Event) { l.events = append(l.events, evt) }

// Emit lets the log stand in for the collaborators' emitter so their events
// keep their position relative to the ledger's own.
func (l *opLog) Emit(evt events.Event) { l.emit(evt) }

func (e *Engine) routeCollaborators(emitter events.Emitter) {
	if e.token != nil {
		e.token.SetEmitter(emitter)
	}
	if e.asset != nil {
		e.asset.SetEmitter(emitter)
	}
}

// atomically runs fn inside a state snapshot. Failed operations are rolled
// back, including writes performed by the token and asset collaborators, and
// every event they raised is dropped with them.
func (e *Engine) atomically(fn func(op *opLog) error) error {
	id := e.state.Snapshot()
	op := &opLog{}
	e.routeCollaborators(op)
	defer e.routeCollaborators(e.emitter)
	if err := fn(op); err != nil {
		e.state.RevertToSnapshot(id)
		return err
	}
	for _, evt := range op.events {
		e.emitter.Emit(evt)
	}
	return nil
}
