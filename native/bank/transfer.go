package bank

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/core/events"
)

// Transfer moves amount from from to to.
func (e *Engine) Transfer(from, to common.Address, amount *uint256.Int) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}
	return e.atomically(func() error {
		return e.move(from, to, amount)
	})
}

// Approve sets the allowance spender may draw from owner. Approving zero
// clears it.
func (e *Engine) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return e.atomically(func() error {
		if err := e.state.SetAllowance(e.symbol, owner, spender, amount); err != nil {
			return err
		}
		e.emitter.Emit(events.AssetApproval{Symbol: e.symbol, Owner: owner, Spender: spender, Amount: new(uint256.Int).Set(amount)})
		return nil
	})
}

// TransferFrom moves amount from from to to on behalf of spender and
// consumes the matching allowance.
func (e *Engine) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}
	return e.atomically(func() error {
		allowance, err := e.state.Allowance(e.symbol, from, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := e.state.SetAllowance(e.symbol, from, spender, new(uint256.Int).Sub(allowance, amount)); err != nil {
			return err
		}
		return e.move(from, to, amount)
	})
}

// Mint issues new supply to to. Only the issuer may mint.
func (e *Engine) Mint(caller, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	info, err := e.Info()
	if err != nil {
		return err
	}
	if caller != info.Issuer {
		return ErrUnauthorized
	}
	return e.atomically(func() error {
		supply, err := e.state.TokenSupply(e.symbol)
		if err != nil {
			return err
		}
		nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
		if overflow {
			return ErrArithmeticOverflow
		}
		balance, err := e.state.TokenBalance(e.symbol, to)
		if err != nil {
			return err
		}
		if err := e.state.SetTokenSupply(e.symbol, nextSupply); err != nil {
			return err
		}
		// Balance cannot overflow once supply did not.
		if err := e.state.SetTokenBalance(e.symbol, to, new(uint256.Int).Add(balance, amount)); err != nil {
			return err
		}
		e.emitter.Emit(events.AssetTransfer{Symbol: e.symbol, To: to, Amount: new(uint256.Int).Set(amount)})
		return nil
	})
}

func (e *Engine) move(from, to common.Address, amount *uint256.Int) error {
	fromBalance, err := e.state.TokenBalance(e.symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.SetTokenBalance(e.symbol, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := e.state.TokenBalance(e.symbol, to)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(e.symbol, to, new(uint256.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.AssetTransfer{Symbol: e.symbol, From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

func validateTransfer(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}
