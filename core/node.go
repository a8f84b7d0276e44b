package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "vestake/core/errors"
	"vestake/core/events"
	"vestake/core/genesis"
	ledgerstate "vestake/core/state"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
	"vestake/observability/metrics"
	"vestake/storage"
)

// Node is the central controller, wiring the engines to one state manager.
// Mutations are serialised; each one either commits as a single storage
// batch or leaves state untouched. Events reach sinks only after commit.
// Sinks run under the write lock and must not call back into the node.
type Node struct {
	mu      sync.RWMutex
	db      storage.Database
	state   *ledgerstate.Manager
	ledger  *vestaking.Engine
	token   *vetoken.Engine
	asset   *bank.Engine
	buffer  *events.Buffer
	sinks   []events.Sink
	nowFn   func() int64
	logger  *slog.Logger
	metrics *metrics.LedgerMetrics
	tracer  trace.Tracer
}

// Option customises a Node.
type Option func(*Node)

// WithClock overrides the wall clock used for accrual.
func WithClock(now func() int64) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithSink registers a subscriber for committed events.
func WithSink(sink events.Sink) Option {
	return func(n *Node) {
		if sink != nil {
			n.sinks = append(n.sinks, sink)
		}
	}
}

// LedgerView summarises the global ledger state.
type LedgerView struct {
	AccPerShare         *uint256.Int   `json:"accPerShare"`
	LastRewardTimestamp uint64         `json:"lastRewardTimestamp"`
	TotalStaked         *uint256.Int   `json:"totalStaked"`
	Admin               common.Address `json:"admin"`
	BoostAggregator     common.Address `json:"boostAggregator"`
	Module              common.Address `json:"module"`
	Now                 uint64         `json:"now"`
	CommitDigest        common.Hash    `json:"commitDigest"`
}

// NewNode opens the ledger stored in db, applying gen when the database is
// empty.
func NewNode(db storage.Database, gen *genesis.Genesis, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if gen == nil {
		return nil, fmt.Errorf("core: genesis required")
	}
	n := &Node{
		db:      db,
		state:   ledgerstate.NewManager(db),
		buffer:  &events.Buffer{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
		metrics: metrics.Ledger(),
		tracer:  otel.Tracer("vestake/core"),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.asset = bank.NewEngine(gen.Asset.Symbol)
	n.asset.SetState(n.state)
	n.asset.SetEmitter(n.buffer)

	n.token = vetoken.NewEngine(gen.Token.Symbol)
	n.token.SetState(n.state)
	n.token.SetEmitter(n.buffer)

	n.ledger = vestaking.NewEngine()
	n.ledger.SetState(n.state)
	n.ledger.SetToken(n.token)
	n.ledger.SetAsset(n.asset)
	n.ledger.SetEmitter(n.buffer)
	n.ledger.SetNowFunc(n.now)

	if err := n.bootstrap(gen); err != nil {
		return nil, err
	}
	n.refreshGauges()
	return n, nil
}

func (n *Node) bootstrap(gen *genesis.Genesis) error {
	if _, err := n.ledger.Params(); err == nil {
		if _, err := n.token.Metadata(); err != nil {
			return fmt.Errorf("core: stored token %s: %w", n.token.Symbol(), err)
		}
		if _, err := n.asset.Info(); err != nil {
			return fmt.Errorf("core: stored asset %s: %w", n.asset.Symbol(), err)
		}
		n.logger.Info("ledger state loaded", slog.String("asset", n.asset.Symbol()), slog.String("token", n.token.Symbol()))
		return nil
	} else if !errors.Is(err, vestaking.ErrNotInitialised) {
		return err
	}

	err := n.execute(context.Background(), "genesis", func() error {
		if err := n.asset.Register(gen.Asset); err != nil {
			return fmt.Errorf("register asset: %w", err)
		}
		token := gen.Token
		token.Owner = n.ledger.Module()
		if err := n.token.Register(token); err != nil {
			return fmt.Errorf("register token: %w", err)
		}
		if err := n.ledger.Initialise(gen.Admin, gen.Params); err != nil {
			return fmt.Errorf("initialise ledger: %w", err)
		}
		for _, alloc := range gen.Alloc {
			if err := n.asset.Mint(gen.Asset.Issuer, alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("alloc %s: %w", alloc.Account.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("core: apply genesis: %w", err)
	}
	n.logger.Info("genesis applied",
		slog.String("admin", gen.Admin.Hex()),
		slog.String("asset", gen.Asset.Symbol),
		slog.String("token", gen.Token.Symbol),
		slog.Int("allocations", len(gen.Alloc)))
	return nil
}

// AddSink registers a subscriber for committed events.
func (n *Node) AddSink(sink events.Sink) {
	if sink == nil {
		return
	}
	n.mu.Lock()
	n.sinks = append(n.sinks, sink)
	n.mu.Unlock()
}

func (n *Node) now() int64 {
	if n.nowFn == nil {
		return time.Now().Unix()
	}
	return n.nowFn()
}

// execute runs fn as one transaction.
func (n *Node) execute(ctx context.Context, op string, fn func() error) error {
	_, span := n.tracer.Start(ctx, "ledger."+op)
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	err := fn()
	if err == nil {
		err = n.state.Commit()
	}
	if err != nil {
		n.state.Discard()
		n.buffer.Reset()
		code := coreerrors.Code(err)
		n.metrics.ObserveOperation(op, code)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		n.logger.Debug("ledger operation rejected", slog.String("op", op), slog.String("code", code), slog.String("error", err.Error()))
		return err
	}
	n.metrics.ObserveOperation(op, "")
	records := n.buffer.Drain(uint64(n.now()))
	span.SetAttributes(attribute.Int("ledger.events", len(records)))
	for _, record := range records {
		n.logger.Debug("ledger event", slog.String("type", record.Type), slog.Any("attributes", record.Attributes))
	}
	for _, sink := range n.sinks {
		sink.Publish(records)
	}
	return nil
}

func (n *Node) refreshGauges() {
	global, err := n.ledger.Global()
	if err != nil {
		return
	}
	n.metrics.SetGlobal(global.AccPerShare, global.TotalStaked)
}

func (n *Node) observeSettlement(result *vestaking.Settlement) {
	if result == nil {
		return
	}
	n.metrics.ObserveSettlement(result.Minted, result.Discarded, result.Burned)
	n.refreshGauges()
}

// Deposit locks amount of base asset for user.
func (n *Node) Deposit(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error) {
	var result *vestaking.Settlement
	err := n.execute(ctx, "deposit", func() error {
		var err error
		result, err = n.ledger.Deposit(user, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.observeSettlement(result)
	return result, nil
}

// Withdraw releases amount of base asset to user.
func (n *Node) Withdraw(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error) {
	var result *vestaking.Settlement
	err := n.execute(ctx, "withdraw", func() error {
		var err error
		result, err = n.ledger.Withdraw(user, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.observeSettlement(result)
	return result, nil
}

// Claim settles the reward accrued by user.
func (n *Node) Claim(ctx context.Context, user common.Address) (*vestaking.Settlement, error) {
	var result *vestaking.Settlement
	err := n.execute(ctx, "claim", func() error {
		var err error
		result, err = n.ledger.Claim(user)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.observeSettlement(result)
	return result, nil
}

// UpdateRewardVars advances the global accumulator to the current clock.
func (n *Node) UpdateRewardVars(ctx context.Context) (*vestaking.GlobalState, error) {
	var global *vestaking.GlobalState
	err := n.execute(ctx, "refresh", func() error {
		var err error
		global, err = n.ledger.UpdateRewardVars()
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.SetGlobal(global.AccPerShare, global.TotalStaked)
	return global, nil
}

// SetParam applies an admin parameter change identified by name. Rates are
// decimal 1e18-scaled integers; the other parameters are plain integers.
func (n *Node) SetParam(ctx context.Context, caller common.Address, name, value string) error {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	return n.execute(ctx, "set_param", func() error {
		switch name {
		case vestaking.ParamBaseRate, vestaking.ParamSpeedUpRate:
			rate, err := uint256.FromDecimal(value)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", vestaking.ErrParameterOutOfRange, name, err)
			}
			if name == vestaking.ParamBaseRate {
				return n.ledger.SetBaseRate(caller, rate)
			}
			return n.ledger.SetSpeedUpRate(caller, rate)
		case vestaking.ParamSpeedUpThreshold, vestaking.ParamSpeedUpDuration, vestaking.ParamMaxCapPct:
			parsed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", vestaking.ErrParameterOutOfRange, name, err)
			}
			switch name {
			case vestaking.ParamSpeedUpThreshold:
				return n.ledger.SetSpeedUpThresholdPct(caller, parsed)
			case vestaking.ParamSpeedUpDuration:
				return n.ledger.SetSpeedUpDuration(caller, parsed)
			default:
				return n.ledger.SetMaxCapPct(caller, parsed)
			}
		default:
			return fmt.Errorf("%w: unknown parameter %q", vestaking.ErrParameterOutOfRange, name)
		}
	})
}

// SetBoostAggregator records the external boost consumer.
func (n *Node) SetBoostAggregator(ctx context.Context, caller, aggregator common.Address) error {
	return n.execute(ctx, "set_boost_aggregator", func() error {
		return n.ledger.SetBoostAggregator(caller, aggregator)
	})
}

// TransferAdmin hands ledger parameter authority to admin.
func (n *Node) TransferAdmin(ctx context.Context, caller, admin common.Address) error {
	return n.execute(ctx, "transfer_admin", func() error {
		return n.ledger.TransferAdmin(caller, admin)
	})
}

// Approve sets the base asset allowance of spender over owner's balance.
func (n *Node) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	return n.execute(ctx, "approve", func() error {
		return n.asset.Approve(owner, spender, amount)
	})
}

// Transfer moves base asset between accounts.
func (n *Node) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return n.execute(ctx, "transfer", func() error {
		return n.asset.Transfer(from, to, amount)
	})
}

// Mint issues base asset. Only the configured issuer may call it.
func (n *Node) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	return n.execute(ctx, "mint", func() error {
		return n.asset.Mint(caller, to, amount)
	})
}

// PendingReward returns what a claim by user would mint now.
func (n *Node) PendingReward(user common.Address) (*uint256.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.PendingReward(user)
}

// Quote returns the settlement breakdown a claim by user would produce now.
func (n *Node) Quote(user common.Address) (*vestaking.Settlement, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Quote(user)
}

// UserInfo returns the staking record of user.
func (n *Node) UserInfo(user common.Address) (*vestaking.UserInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.UserInfo(user)
}

// Ledger returns the global ledger view.
func (n *Node) Ledger() (*LedgerView, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	global, err := n.ledger.Global()
	if err != nil {
		return nil, err
	}
	admin, err := n.ledger.Admin()
	if err != nil {
		return nil, err
	}
	aggregator, err := n.ledger.BoostAggregator()
	if err != nil {
		return nil, err
	}
	digest, err := n.state.Digest()
	if err != nil {
		return nil, err
	}
	return &LedgerView{
		AccPerShare:         global.AccPerShare,
		LastRewardTimestamp: global.LastRewardTimestamp,
		TotalStaked:         global.TotalStaked,
		Admin:               admin,
		BoostAggregator:     aggregator,
		Module:              n.ledger.Module(),
		Now:                 uint64(max(n.now(), 0)),
		CommitDigest:        digest,
	}, nil
}

// Params returns the current economic parameters.
func (n *Node) Params() (vestaking.Params, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Params()
}

// TokenMetadata returns the governed token metadata.
func (n *Node) TokenMetadata() (*vetoken.Metadata, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.Metadata()
}

// TokenSupply returns the governed token supply.
func (n *Node) TokenSupply() (*uint256.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.TotalSupply()
}

// TokenBalance returns the governed token balance of addr.
func (n *Node) TokenBalance(addr common.Address) (*uint256.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.BalanceOf(addr)
}

// AssetInfo returns the base asset metadata.
func (n *Node) AssetInfo() (*bank.AssetInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.asset.Info()
}

// AssetBalance returns the base asset balance of addr.
func (n *Node) AssetBalance(addr common.Address) (*uint256.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.asset.BalanceOf(addr)
}

// Allowance returns the base asset allowance of spender over owner.
func (n *Node) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.asset.Allowance(owner, spender)
}

// Module returns the ledger custody account.
func (n *Node) Module() common.Address { return n.ledger.Module() }
