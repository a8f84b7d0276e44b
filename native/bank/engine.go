package bank

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/core/events"
)

// AssetInfo describes the fungible base asset. Issuer is the only account
// allowed to mint new supply.
type AssetInfo struct {
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Issuer   common.Address `json:"issuer"`
}

type engineState interface {
	AssetInfo(symbol string) (*AssetInfo, bool, error)
	PutAssetInfo(info *AssetInfo) error
	TokenBalance(symbol string, addr common.Address) (*uint256.Int, error)
	SetTokenBalance(symbol string, addr common.Address, amount *uint256.Int) error
	TokenSupply(symbol string) (*uint256.Int, error)
	SetTokenSupply(symbol string, amount *uint256.Int) error
	Allowance(symbol string, owner, spender common.Address) (*uint256.Int, error)
	SetAllowance(symbol string, owner, spender common.Address, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine is a transferable fungible asset ledger with ERC-20 style
// allowances.
type Engine struct {
	symbol  string
	state   engineState
	emitter events.Emitter
}

// NewEngine constructs an engine for the asset identified by symbol.
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

// Symbol returns the normalised asset symbol.
func (e *Engine) Symbol() string { return e.symbol }

// Register stores the asset metadata.
func (e *Engine) Register(info AssetInfo) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	info.Symbol = normalizeSymbol(info.Symbol)
	info.Name = strings.TrimSpace(info.Name)
	if info.Symbol != e.symbol || info.Name == "" {
		return fmt.Errorf("bank: invalid asset metadata for %q", e.symbol)
	}
	if info.Issuer == (common.Address{}) {
		return fmt.Errorf("%w: issuer required", ErrInvalidAddress)
	}
	if _, ok, err := e.state.AssetInfo(e.symbol); err != nil {
		return err
	} else if ok {
		return ErrAlreadyRegistered
	}
	return e.state.PutAssetInfo(&info)
}

// Info returns the registered asset metadata.
func (e *Engine) Info() (*AssetInfo, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	info, ok, err := e.state.AssetInfo(e.symbol)
	if err != nil {
		return nil, err
	}
	if !ok || info == nil {
		return nil, ErrNotRegistered
	}
	return info, nil
}

// BalanceOf returns the asset balance held by addr.
func (e *Engine) BalanceOf(addr common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TokenBalance(e.symbol, addr)
}

// TotalSupply returns the issued supply.
func (e *Engine) TotalSupply() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TokenSupply(e.symbol)
}

// Allowance returns how much spender may move on behalf of owner.
func (e *Engine) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.Allowance(e.symbol, owner, spender)
}

func (e *Engine) atomically(fn func() error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	id := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(id)
		return err
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
