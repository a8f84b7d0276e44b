package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/native/bank"
	"vestake/native/vetoken"
)

// TokenMetadata returns the governed token registered under symbol.
func (m *Manager) TokenMetadata(symbol string) (*vetoken.Metadata, bool, error) {
	var stored vetoken.Metadata
	ok, err := m.KVGet(tokenMetaKey(symbol), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// PutTokenMetadata persists governed token metadata.
func (m *Manager) PutTokenMetadata(meta *vetoken.Metadata) error {
	if meta == nil {
		return fmt.Errorf("token metadata must not be nil")
	}
	return m.KVPut(tokenMetaKey(meta.Symbol), meta)
}

// AssetInfo returns the base asset registered under symbol.
func (m *Manager) AssetInfo(symbol string) (*bank.AssetInfo, bool, error) {
	var stored bank.AssetInfo
	ok, err := m.KVGet(assetInfoKey(symbol), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// PutAssetInfo persists base asset metadata.
func (m *Manager) PutAssetInfo(info *bank.AssetInfo) error {
	if info == nil {
		return fmt.Errorf("asset info must not be nil")
	}
	return m.KVPut(assetInfoKey(info.Symbol), info)
}

// TokenBalance returns the balance of addr in the ledger identified by symbol.
func (m *Manager) TokenBalance(symbol string, addr common.Address) (*uint256.Int, error) {
	return m.amount(balanceKey(symbol, addr))
}

// SetTokenBalance stores the balance of addr. Zero balances are removed.
func (m *Manager) SetTokenBalance(symbol string, addr common.Address, amount *uint256.Int) error {
	return m.setAmount(balanceKey(symbol, addr), amount)
}

// TokenSupply returns the circulating supply of symbol.
func (m *Manager) TokenSupply(symbol string) (*uint256.Int, error) {
	return m.amount(supplyKey(symbol))
}

// SetTokenSupply stores the circulating supply of symbol.
func (m *Manager) SetTokenSupply(symbol string, amount *uint256.Int) error {
	return m.setAmount(supplyKey(symbol), amount)
}

// Allowance returns how much spender may move on behalf of owner.
func (m *Manager) Allowance(symbol string, owner, spender common.Address) (*uint256.Int, error) {
	return m.amount(allowanceKey(symbol, owner, spender))
}

// SetAllowance stores the allowance granted by owner to spender.
func (m *Manager) SetAllowance(symbol string, owner, spender common.Address, amount *uint256.Int) error {
	return m.setAmount(allowanceKey(symbol, owner, spender), amount)
}

func (m *Manager) amount(key []byte) (*uint256.Int, error) {
	value := new(uint256.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return value, nil
}

func (m *Manager) setAmount(key []byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}
