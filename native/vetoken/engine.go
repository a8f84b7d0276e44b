package vetoken

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/core/events"
)

// DefaultDecimals matches the base asset precision.
const DefaultDecimals uint8 = 18

// Metadata describes the governed token. Owner is the sole mint and burn
// authority and is never the zero address.
type Metadata struct {
	Name            string         `json:"name"`
	Symbol          string         `json:"symbol"`
	Decimals        uint8          `json:"decimals"`
	Owner           common.Address `json:"owner"`
	BoostAggregator common.Address `json:"boostAggregator"`
}

type engineState interface {
	TokenMetadata(symbol string) (*Metadata, bool, error)
	PutTokenMetadata(meta *Metadata) error
	TokenBalance(symbol string, addr common.Address) (*uint256.Int, error)
	SetTokenBalance(symbol string, addr common.Address, amount *uint256.Int) error
	TokenSupply(symbol string) (*uint256.Int, error)
	SetTokenSupply(symbol string, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine is a non-transferable token whose balances only change through the
// owner's Mint and BurnFrom calls.
type Engine struct {
	symbol  string
	state   engineState
	emitter events.Emitter
}

// NewEngine constructs an engine for the token identified by symbol.
func NewEngine(symbol string) *Engine {
	return &Engine{symbol: normalizeSymbol(symbol), emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Symbol returns the normalised token symbol.
func (e *Engine) Symbol() string { return e.symbol }

// Register stores the token metadata. The owner must be non-zero.
func (e *Engine) Register(meta Metadata) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	meta.Symbol = normalizeSymbol(meta.Symbol)
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Symbol == "" || meta.Symbol != e.symbol {
		return fmt.Errorf("%w: symbol %q does not match %q", ErrInvalidMetadata, meta.Symbol, e.symbol)
	}
	if meta.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidMetadata)
	}
	if meta.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner required", ErrInvalidAddress)
	}
	if _, ok, err := e.state.TokenMetadata(e.symbol); err != nil {
		return err
	} else if ok {
		return ErrAlreadyRegistered
	}
	return e.state.PutTokenMetadata(&meta)
}

// Metadata returns the registered token metadata.
func (e *Engine) Metadata() (*Metadata, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	meta, ok, err := e.state.TokenMetadata(e.symbol)
	if err != nil {
		return nil, err
	}
	if !ok || meta == nil {
		return nil, ErrNotRegistered
	}
	return meta, nil
}

// Owner returns the current mint authority.
func (e *Engine) Owner() (common.Address, error) {
	meta, err := e.Metadata()
	if err != nil {
		return common.Address{}, err
	}
	return meta.Owner, nil
}

// BoostAggregator returns the registered boost consumer, if any.
func (e *Engine) BoostAggregator() (common.Address, error) {
	meta, err := e.Metadata()
	if err != nil {
		return common.Address{}, err
	}
	return meta.BoostAggregator, nil
}

// BalanceOf returns the token balance held by addr.
func (e *Engine) BalanceOf(addr common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TokenBalance(e.symbol, addr)
}

// TotalSupply returns the amount of token in circulation.
func (e *Engine) TotalSupply() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TokenSupply(e.symbol)
}

// Mint credits amount to to. Only the owner may mint.
func (e *Engine) Mint(caller, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint to the zero address", ErrInvalidAddress)
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return e.withOwner(caller, func(meta *Metadata) error {
		balance, err := e.state.TokenBalance(e.symbol, to)
		if err != nil {
			return err
		}
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		nextBalance, overflow := new(uint256.Int).AddOverflow(balance, amount)
		if overflow {
			return ErrArithmeticOverflow
		}
		nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
		if overflow {
			return ErrArithmeticOverflow
		}
		if err := e.state.SetTokenBalance(e.symbol, to, nextBalance); err != nil {
			return err
		}
		if err := e.state.SetTokenSupply(e.symbol, nextSupply); err != nil {
			return err
		}
		e.emitter.Emit(events.TokenMinted{Symbol: e.symbol, To: to, Amount: new(uint256.Int).Set(amount)})
		return nil
	})
}

// BurnFrom debits amount from from. Only the owner may burn.
func (e *Engine) BurnFrom(caller, from common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) {
		return fmt.Errorf("%w: burn from the zero address", ErrInvalidAddress)
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return e.withOwner(caller, func(meta *Metadata) error {
		balance, err := e.state.TokenBalance(e.symbol, from)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		if supply.Cmp(amount) < 0 {
			return ErrArithmeticOverflow
		}
		if err := e.state.SetTokenBalance(e.symbol, from, new(uint256.Int).Sub(balance, amount)); err != nil {
			return err
		}
		if err := e.state.SetTokenSupply(e.symbol, new(uint256.Int).Sub(supply, amount)); err != nil {
			return err
		}
		e.emitter.Emit(events.TokenBurned{Symbol: e.symbol, From: from, Amount: new(uint256.Int).Set(amount)})
		return nil
	})
}

// TransferOwnership hands the mint authority to owner. Transferring to the
// zero address would renounce it and is rejected.
func (e *Engine) TransferOwnership(caller, owner common.Address) error {
	return e.withOwner(caller, func(meta *Metadata) error {
		if owner == (common.Address{}) {
			return ErrOwnershipRenunciationForbidden
		}
		previous := meta.Owner
		meta.Owner = owner
		if err := e.state.PutTokenMetadata(meta); err != nil {
			return err
		}
		e.emitter.Emit(events.TokenOwnershipTransferred{Symbol: e.symbol, Previous: previous, Owner: owner})
		return nil
	})
}

// RenounceOwnership always fails once the caller is confirmed as owner.
func (e *Engine) RenounceOwnership(caller common.Address) error {
	return e.withOwner(caller, func(*Metadata) error {
		return ErrOwnershipRenunciationForbidden
	})
}

// SetBoostAggregator records the external boost consumer.
func (e *Engine) SetBoostAggregator(caller, aggregator common.Address) error {
	return e.withOwner(caller, func(meta *Metadata) error {
		meta.BoostAggregator = aggregator
		return e.state.PutTokenMetadata(meta)
	})
}

func (e *Engine) withOwner(caller common.Address, fn func(meta *Metadata) error) error {
	meta, err := e.Metadata()
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	id := e.state.Snapshot()
	if err := fn(meta); err != nil {
		e.state.RevertToSnapshot(id)
		return err
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
