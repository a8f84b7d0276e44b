package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeStakeDeposited is emitted after base asset is locked in the ledger.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeWithdrawn is emitted after base asset is released to the user.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeClaimed is emitted whenever settlement mints derived token.
	TypeStakeClaimed = "stake.claimed"
	// TypeStakeCapClamped signals that the per-user cap discarded part of a settlement.
	TypeStakeCapClamped = "stake.capClamped"
	// TypeStakeRewardVarsUpdated is emitted when the global accumulator advances.
	TypeStakeRewardVarsUpdated = "stake.rewardVarsUpdated"
	// TypeStakeParamUpdated is emitted by every admin parameter setter.
	TypeStakeParamUpdated = "stake.paramUpdated"
	// TypeStakeAdminTransferred is emitted when the ledger admin changes.
	TypeStakeAdminTransferred = "stake.adminTransferred"
	// TypeStakeBoostAggregatorSet is emitted when the boost aggregator pointer changes.
	TypeStakeBoostAggregatorSet = "stake.boostAggregatorSet"
)

// StakeDeposited captures a deposit and the speed-up window it produced.
type StakeDeposited struct {
	Account             common.Address
	Amount              *uint256.Int
	NewBalance          *uint256.Int
	SpeedUpEndTimestamp uint64
}

// EventType satisfies the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// Record converts the structured payload into a broadcastable record.
func (e StakeDeposited) Record() Record {
	attrs := map[string]string{
		"account":    formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"newBalance": formatAmount(e.NewBalance),
	}
	if e.SpeedUpEndTimestamp > 0 {
		attrs["speedUpEndTimestamp"] = formatUint(e.SpeedUpEndTimestamp)
	}
	return Record{Type: TypeStakeDeposited, Attributes: attrs}
}

// StakeWithdrawn captures a withdrawal and the derived balance burned with it.
type StakeWithdrawn struct {
	Account    common.Address
	Amount     *uint256.Int
	NewBalance *uint256.Int
	Burned     *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Record converts the structured payload into a broadcastable record.
func (e StakeWithdrawn) Record() Record {
	return Record{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"account":    formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"newBalance": formatAmount(e.NewBalance),
		"burned":     formatAmount(e.Burned),
	}}
}

// StakeClaimed captures the minted settlement for an account.
type StakeClaimed struct {
	Account common.Address
	Minted  *uint256.Int
	Base    *uint256.Int
	SpeedUp *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeClaimed) EventType() string { return TypeStakeClaimed }

// Record converts the structured payload into a broadcastable record.
func (e StakeClaimed) Record() Record {
	return Record{Type: TypeStakeClaimed, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"minted":  formatAmount(e.Minted),
		"base":    formatAmount(e.Base),
		"speedUp": formatAmount(e.SpeedUp),
	}}
}

// StakeCapClamped records the portion of a settlement discarded by the cap.
type StakeCapClamped struct {
	Account   common.Address
	Pending   *uint256.Int
	Cap       *uint256.Int
	Held      *uint256.Int
	Discarded *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeCapClamped) EventType() string { return TypeStakeCapClamped }

// Record converts the structured payload into a broadcastable record.
func (e StakeCapClamped) Record() Record {
	return Record{Type: TypeStakeCapClamped, Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"pending":   formatAmount(e.Pending),
		"cap":       formatAmount(e.Cap),
		"held":      formatAmount(e.Held),
		"discarded": formatAmount(e.Discarded),
	}}
}

// StakeRewardVarsUpdated captures an accumulator advance.
type StakeRewardVarsUpdated struct {
	AccPerShare         *uint256.Int
	LastRewardTimestamp uint64
}

// EventType satisfies the Event interface.
func (StakeRewardVarsUpdated) EventType() string { return TypeStakeRewardVarsUpdated }

// Record converts the structured payload into a broadcastable record.
func (e StakeRewardVarsUpdated) Record() Record {
	return Record{Type: TypeStakeRewardVarsUpdated, Attributes: map[string]string{
		"accPerShare":         formatAmount(e.AccPerShare),
		"lastRewardTimestamp": formatUint(e.LastRewardTimestamp),
	}}
}

// StakeParamUpdated captures an admin parameter change.
type StakeParamUpdated struct {
	Caller   common.Address
	Name     string
	Previous string
	Value    string
}

// EventType satisfies the Event interface.
func (StakeParamUpdated) EventType() string { return TypeStakeParamUpdated }

// Record converts the structured payload into a broadcastable record.
func (e StakeParamUpdated) Record() Record {
	return Record{Type: TypeStakeParamUpdated, Attributes: map[string]string{
		"caller":   formatAddress(e.Caller),
		"name":     e.Name,
		"previous": e.Previous,
		"value":    e.Value,
	}}
}

// StakeAdminTransferred captures a change of ledger admin.
type StakeAdminTransferred struct {
	Previous common.Address
	Admin    common.Address
}

// EventType satisfies the Event interface.
func (StakeAdminTransferred) EventType() string { return TypeStakeAdminTransferred }

// Record converts the structured payload into a broadcastable record.
func (e StakeAdminTransferred) Record() Record {
	return Record{Type: TypeStakeAdminTransferred, Attributes: map[string]string{
		"previous": formatAddress(e.Previous),
		"admin":    formatAddress(e.Admin),
	}}
}

// StakeBoostAggregatorSet captures a change of the boost aggregator pointer.
type StakeBoostAggregatorSet struct {
	Caller     common.Address
	Aggregator common.Address
}

// EventType satisfies the Event interface.
func (StakeBoostAggregatorSet) EventType() string { return TypeStakeBoostAggregatorSet }

// Record converts the structured payload into a broadcastable record.
func (e StakeBoostAggregatorSet) Record() Record {
	return Record{Type: TypeStakeBoostAggregatorSet, Attributes: map[string]string{
		"caller":     formatAddress(e.Caller),
		"aggregator": formatAddress(e.Aggregator),
	}}
}
