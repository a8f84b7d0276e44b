package state

import (
	"github.com/ethereum/go-ethereum/common"

	"vestake/native/vestaking"
)

// StakingGlobal returns the ledger accumulator. A fresh ledger yields a zero
// state.
func (m *Manager) StakingGlobal() (*vestaking.GlobalState, error) {
	var stored vestaking.GlobalState
	ok, err := m.KVGet(stakingGlobalKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (*vestaking.GlobalState)(nil).Clone(), nil
	}
	return stored.Clone(), nil
}

// PutStakingGlobal persists the ledger accumulator.
func (m *Manager) PutStakingGlobal(global *vestaking.GlobalState) error {
	return m.KVPut(stakingGlobalKey, global.Clone())
}

// StakingUser returns the staking record of addr, or a zero record when the
// account never interacted with the ledger.
func (m *Manager) StakingUser(addr common.Address) (*vestaking.UserInfo, error) {
	var stored vestaking.UserInfo
	ok, err := m.KVGet(stakingUserKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (*vestaking.UserInfo)(nil).Clone(), nil
	}
	return stored.Clone(), nil
}

// PutStakingUser persists the staking record of addr.
func (m *Manager) PutStakingUser(addr common.Address, info *vestaking.UserInfo) error {
	return m.KVPut(stakingUserKey(addr), info.Clone())
}

// StakingParams returns the stored economic parameters.
func (m *Manager) StakingParams() (*vestaking.Params, bool, error) {
	var stored vestaking.Params
	ok, err := m.KVGet(stakingParamsKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	params := stored.Clone()
	return &params, true, nil
}

// PutStakingParams persists the economic parameters.
func (m *Manager) PutStakingParams(params *vestaking.Params) error {
	if params == nil {
		return m.KVDelete(stakingParamsKey)
	}
	stored := params.Clone()
	return m.KVPut(stakingParamsKey, &stored)
}

// StakingGovernance returns the ledger admin and boost aggregator.
func (m *Manager) StakingGovernance() (*vestaking.Governance, bool, error) {
	var stored vestaking.Governance
	ok, err := m.KVGet(stakingGovernanceKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// PutStakingGovernance persists the ledger admin and boost aggregator.
func (m *Manager) PutStakingGovernance(gov *vestaking.Governance) error {
	if gov == nil {
		return m.KVDelete(stakingGovernanceKey)
	}
	return m.KVPut(stakingGovernanceKey, gov)
}
