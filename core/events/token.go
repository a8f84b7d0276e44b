package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeTokenMinted is emitted when the governed token mints to an account.
	TypeTokenMinted = "token.minted"
	// TypeTokenBurned is emitted when the governed token burns from an account.
	TypeTokenBurned = "token.burned"
	// TypeTokenOwnershipTransferred is emitted when the mint authority changes.
	TypeTokenOwnershipTransferred = "token.ownershipTransferred"
	// TypeAssetTransfer is emitted for base asset movements, including mints.
	TypeAssetTransfer = "asset.transfer"
	// TypeAssetApproval is emitted when a base asset allowance changes.
	TypeAssetApproval = "asset.approval"
)

// TokenMinted captures a governed token mint.
type TokenMinted struct {
	Symbol string
	To     common.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenMinted) EventType() string { return TypeTokenMinted }

// Record converts the structured payload into a broadcastable record.
func (e TokenMinted) Record() Record {
	return Record{Type: TypeTokenMinted, Attributes: map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

// TokenBurned captures a governed token burn.
type TokenBurned struct {
	Symbol string
	From   common.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenBurned) EventType() string { return TypeTokenBurned }

// Record converts the structured payload into a broadcastable record.
func (e TokenBurned) Record() Record {
	return Record{Type: TypeTokenBurned, Attributes: map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"from":   formatAddress(e.From),
		"amount": formatAmount(e.Amount),
	}}
}

// TokenOwnershipTransferred captures a change of mint authority.
type TokenOwnershipTransferred struct {
	Symbol   string
	Previous common.Address
	Owner    common.Address
}

// EventType satisfies the Event interface.
func (TokenOwnershipTransferred) EventType() string { return TypeTokenOwnershipTransferred }

// Record converts the structured payload into a broadcastable record.
func (e TokenOwnershipTransferred) Record() Record {
	return Record{Type: TypeTokenOwnershipTransferred, Attributes: map[string]string{
		"symbol":   strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"previous": formatAddress(e.Previous),
		"owner":    formatAddress(e.Owner),
	}}
}

// AssetTransfer captures a base asset movement. A zero From marks a mint.
type AssetTransfer struct {
	Symbol string
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (AssetTransfer) EventType() string { return TypeAssetTransfer }

// Record converts the structured payload into a broadcastable record.
func (e AssetTransfer) Record() Record {
	attrs := map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.From != (common.Address{}) {
		attrs["from"] = formatAddress(e.From)
	}
	return Record{Type: TypeAssetTransfer, Attributes: attrs}
}

// AssetApproval captures an allowance update.
type AssetApproval struct {
	Symbol  string
	Owner   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (AssetApproval) EventType() string { return TypeAssetApproval }

// Record converts the structured payload into a broadcastable record.
func (e AssetApproval) Record() Record {
	return Record{Type: TypeAssetApproval, Attributes: map[string]string{
		"symbol":  strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}
