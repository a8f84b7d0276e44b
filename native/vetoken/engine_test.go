package vetoken_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"vestake/core/events"
	"vestake/core/state"
	"vestake/native/vetoken"
	"vestake/storage"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	holder   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func newToken(t *testing.T) (*vetoken.Engine, *events.Buffer) {
	t.Helper()
	token := vetoken.NewEngine(" vestake ")
	token.SetState(state.NewManager(storage.NewMemDB()))
	buf := &events.Buffer{}
	token.SetEmitter(buf)
	require.NoError(t, token.Register(vetoken.Metadata{
		Name:     "Vote Escrowed Stake",
		Symbol:   "VESTAKE",
		Decimals: vetoken.DefaultDecimals,
		Owner:    owner,
	}))
	return token, buf
}

func TestRegisterValidatesMetadata(t *testing.T) {
	token := vetoken.NewEngine("VESTAKE")
	token.SetState(state.NewManager(storage.NewMemDB()))

	require.ErrorIs(t, token.Register(vetoken.Metadata{Name: "x", Symbol: "VESTAKE"}), vetoken.ErrInvalidAddress)
	require.ErrorIs(t, token.Register(vetoken.Metadata{Name: "x", Symbol: "OTHER", Owner: owner}), vetoken.ErrInvalidMetadata)
	require.ErrorIs(t, token.Register(vetoken.Metadata{Symbol: "VESTAKE", Owner: owner}), vetoken.ErrInvalidMetadata)
	require.NoError(t, token.Register(vetoken.Metadata{Name: "x", Symbol: "vestake", Owner: owner}))
	require.ErrorIs(t, token.Register(vetoken.Metadata{Name: "x", Symbol: "VESTAKE", Owner: owner}), vetoken.ErrAlreadyRegistered)

	meta, err := token.Metadata()
	require.NoError(t, err)
	require.Equal(t, "VESTAKE", meta.Symbol)
}

func TestMintAndBurnFrom(t *testing.T) {
	token, buf := newToken(t)

	require.ErrorIs(t, token.Mint(stranger, holder, uint256.NewInt(5)), vetoken.ErrUnauthorized)
	require.ErrorIs(t, token.Mint(owner, common.Address{}, uint256.NewInt(5)), vetoken.ErrInvalidAddress)
	require.ErrorIs(t, token.Mint(owner, holder, new(uint256.Int)), vetoken.ErrInvalidAmount)
	require.NoError(t, token.Mint(owner, holder, uint256.NewInt(10)))

	require.ErrorIs(t, token.BurnFrom(stranger, holder, uint256.NewInt(1)), vetoken.ErrUnauthorized)
	require.ErrorIs(t, token.BurnFrom(owner, holder, uint256.NewInt(11)), vetoken.ErrInsufficientBalance)
	require.NoError(t, token.BurnFrom(owner, holder, uint256.NewInt(4)))

	balance, err := token.BalanceOf(holder)
	require.NoError(t, err)
	require.Equal(t, uint64(6), balance.Uint64())
	supply, err := token.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(6), supply.Uint64())

	records := buf.Drain(0)
	require.Len(t, records, 2)
	require.Equal(t, events.TypeTokenMinted, records[0].Type)
	require.Equal(t, events.TypeTokenBurned, records[1].Type)
	require.Equal(t, "4", records[1].Attributes["amount"])
}

func TestOwnershipCannotBeRenounced(t *testing.T) {
	token, _ := newToken(t)

	require.ErrorIs(t, token.RenounceOwnership(stranger), vetoken.ErrUnauthorized)
	require.ErrorIs(t, token.RenounceOwnership(owner), vetoken.ErrOwnershipRenunciationForbidden)
	require.ErrorIs(t, token.TransferOwnership(owner, common.Address{}), vetoken.ErrOwnershipRenunciationForbidden)
	require.ErrorIs(t, token.TransferOwnership(stranger, holder), vetoken.ErrUnauthorized)

	current, err := token.Owner()
	require.NoError(t, err)
	require.Equal(t, owner, current)

	require.NoError(t, token.TransferOwnership(owner, holder))
	current, err = token.Owner()
	require.NoError(t, err)
	require.Equal(t, holder, current)
	require.ErrorIs(t, token.Mint(owner, holder, uint256.NewInt(1)), vetoken.ErrUnauthorized)
	require.NoError(t, token.Mint(holder, holder, uint256.NewInt(1)))
}

func TestSetBoostAggregatorOwnerOnly(t *testing.T) {
	token, _ := newToken(t)
	aggregator := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	require.ErrorIs(t, token.SetBoostAggregator(stranger, aggregator), vetoken.ErrUnauthorized)
	require.NoError(t, token.SetBoostAggregator(owner, aggregator))
	got, err := token.BoostAggregator()
	require.NoError(t, err)
	require.Equal(t, aggregator, got)
}

func TestUnregisteredToken(t *testing.T) {
	token := vetoken.NewEngine("NONE")
	token.SetState(state.NewManager(storage.NewMemDB()))
	require.ErrorIs(t, token.Mint(owner, holder, uint256.NewInt(1)), vetoken.ErrNotRegistered)

	var detached vetoken.Engine
	_, err := detached.BalanceOf(holder)
	require.ErrorIs(t, err, vetoken.ErrNilState)
}
