package vestaking

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// UserInfo is the per-account staking record. A zero record represents an
// account that never deposited; records are never deleted.
type UserInfo struct {
	Balance             *uint256.Int `json:"balance"`
	RewardDebt          *uint256.Int `json:"rewardDebt"`
	LastClaimTimestamp  uint64       `json:"lastClaimTimestamp"`
	SpeedUpEndTimestamp uint64       `json:"speedUpEndTimestamp"`
}

// Clone returns a deep copy of the record with nil amounts normalised to zero.
func (u *UserInfo) Clone() *UserInfo {
	if u == nil {
		return newUserInfo()
	}
	return &UserInfo{
		Balance:             cloneAmount(u.Balance),
		RewardDebt:          cloneAmount(u.RewardDebt),
		LastClaimTimestamp:  u.LastClaimTimestamp,
		SpeedUpEndTimestamp: u.SpeedUpEndTimestamp,
	}
}

// Boosted reports whether a speed-up window is pending settlement.
func (u *UserInfo) Boosted() bool {
	return u != nil && u.SpeedUpEndTimestamp != 0 && u.SpeedUpEndTimestamp > u.LastClaimTimestamp
}

func newUserInfo() *UserInfo {
	return &UserInfo{Balance: new(uint256.Int), RewardDebt: new(uint256.Int)}
}

// GlobalState is the balance independent accrual clock shared by all users.
type GlobalState struct {
	AccPerShare         *uint256.Int `json:"accPerShare"`
	LastRewardTimestamp uint64       `json:"lastRewardTimestamp"`
	TotalStaked         *uint256.Int `json:"totalStaked"`
}

// Clone returns a deep copy of the global state.
func (g *GlobalState) Clone() *GlobalState {
	if g == nil {
		return &GlobalState{AccPerShare: new(uint256.Int), TotalStaked: new(uint256.Int)}
	}
	return &GlobalState{
		AccPerShare:         cloneAmount(g.AccPerShare),
		LastRewardTimestamp: g.LastRewardTimestamp,
		TotalStaked:         cloneAmount(g.TotalStaked),
	}
}

// Governance holds the admin authority and the external boost aggregator
// pointer. The aggregator is state only; the ledger never calls it.
type Governance struct {
	Admin           common.Address `json:"admin"`
	BoostAggregator common.Address `json:"boostAggregator"`
}

// Settlement describes the outcome of a ledger operation for one account.
type Settlement struct {
	Account   common.Address `json:"account"`
	Timestamp uint64         `json:"timestamp"`
	Base      *uint256.Int   `json:"base"`
	SpeedUp   *uint256.Int   `json:"speedUp"`
	Pending   *uint256.Int   `json:"pending"`
	Minted    *uint256.Int   `json:"minted"`
	Discarded *uint256.Int   `json:"discarded"`
	Cap       *uint256.Int   `json:"cap"`
	Held      *uint256.Int   `json:"held"`
	Burned    *uint256.Int   `json:"burned"`
	User      *UserInfo      `json:"user,omitempty"`
}

func newSettlement(account common.Address, now uint64) *Settlement {
	return &Settlement{
		Account:   account,
		Timestamp: now,
		Base:      new(uint256.Int),
		SpeedUp:   new(uint256.Int),
		Pending:   new(uint256.Int),
		Minted:    new(uint256.Int),
		Discarded: new(uint256.Int),
		Cap:       new(uint256.Int),
		Held:      new(uint256.Int),
		Burned:    new(uint256.Int),
	}
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
