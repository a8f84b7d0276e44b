package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"vestake/native/vestaking"
	"vestake/storage"
)

func TestManagerStagesUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	addr := common.HexToAddress("0x01")

	require.NoError(t, manager.SetTokenBalance("stake", addr, uint256.NewInt(42)))
	require.Zero(t, db.Len())

	balance, err := manager.TokenBalance("STAKE", addr)
	require.NoError(t, err)
	require.Equal(t, uint64(42), balance.Uint64())

	require.NoError(t, manager.Commit())
	// One balance plus the commit digest.
	require.Equal(t, 2, db.Len())
	require.Zero(t, manager.Dirty())

	reopened := NewManager(db)
	balance, err = reopened.TokenBalance("stake", addr)
	require.NoError(t, err)
	require.Equal(t, uint64(42), balance.Uint64())
}

func TestManagerRevertToSnapshot(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := common.HexToAddress("0x02")

	require.NoError(t, manager.SetTokenSupply("stake", uint256.NewInt(1)))
	outer := manager.Snapshot()
	require.NoError(t, manager.SetTokenSupply("stake", uint256.NewInt(2)))
	inner := manager.Snapshot()
	require.NoError(t, manager.SetTokenBalance("stake", addr, uint256.NewInt(9)))

	manager.RevertToSnapshot(inner)
	balance, err := manager.TokenBalance("stake", addr)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	supply, err := manager.TokenSupply("stake")
	require.NoError(t, err)
	require.Equal(t, uint64(2), supply.Uint64())

	manager.RevertToSnapshot(outer)
	supply, err = manager.TokenSupply("stake")
	require.NoError(t, err)
	require.Equal(t, uint64(1), supply.Uint64())
}

func TestManagerRevertRestoresDeletes(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	addr := common.HexToAddress("0x03")
	require.NoError(t, manager.SetTokenBalance("stake", addr, uint256.NewInt(5)))
	require.NoError(t, manager.Commit())

	snap := manager.Snapshot()
	require.NoError(t, manager.SetTokenBalance("stake", addr, new(uint256.Int)))
	balance, err := manager.TokenBalance("stake", addr)
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	manager.RevertToSnapshot(snap)
	balance, err = manager.TokenBalance("stake", addr)
	require.NoError(t, err)
	require.Equal(t, uint64(5), balance.Uint64())
}

func TestManagerDiscardDropsWrites(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	require.NoError(t, manager.SetTokenSupply("stake", uint256.NewInt(7)))
	manager.Discard()
	require.NoError(t, manager.Commit())
	require.Zero(t, db.Len())
}

func TestStakingRecordsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	addr := common.HexToAddress("0x04")

	info, err := manager.StakingUser(addr)
	require.NoError(t, err)
	require.True(t, info.Balance.IsZero())
	require.NotNil(t, info.RewardDebt)

	info.Balance = uint256.NewInt(100)
	info.RewardDebt = uint256.NewInt(3)
	info.LastClaimTimestamp = 10
	info.SpeedUpEndTimestamp = 60
	require.NoError(t, manager.PutStakingUser(addr, info))

	params := vestaking.DefaultParams()
	require.NoError(t, manager.PutStakingParams(&params))
	require.NoError(t, manager.PutStakingGovernance(&vestaking.Governance{Admin: addr}))
	require.NoError(t, manager.Commit())

	reopened := NewManager(db)
	got, err := reopened.StakingUser(addr)
	require.NoError(t, err)
	require.Equal(t, info, got)

	storedParams, ok, err := reopened.StakingParams()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, params, *storedParams)

	gov, ok, err := reopened.StakingGovernance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, addr, gov.Admin)
}

func TestManagerCommitDigestChains(t *testing.T) {
	addr := common.HexToAddress("0x03")
	apply := func(db storage.Database, amounts ...uint64) common.Hash {
		manager := NewManager(db)
		for _, amount := range amounts {
			require.NoError(t, manager.SetTokenBalance("stake", addr, uint256.NewInt(amount)))
			require.NoError(t, manager.Commit())
		}
		digest, err := manager.Digest()
		require.NoError(t, err)
		return digest
	}

	fresh, err := NewManager(storage.NewMemDB()).Digest()
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, fresh)

	first := apply(storage.NewMemDB(), 1, 2)
	require.NotEqual(t, common.Hash{}, first)
	require.Equal(t, first, apply(storage.NewMemDB(), 1, 2))
	// Same final state, different history.
	require.NotEqual(t, first, apply(storage.NewMemDB(), 2))

	db := storage.NewMemDB()
	manager := NewManager(db)
	require.NoError(t, manager.SetTokenBalance("stake", addr, uint256.NewInt(5)))
	require.NoError(t, manager.Commit())
	before, err := manager.Digest()
	require.NoError(t, err)
	require.NoError(t, manager.Commit())
	after, err := manager.Digest()
	require.NoError(t, err)
	require.Equal(t, before, after, "empty commits leave the digest untouched")
}
