package crypto

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseAccountFormats(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	encoded, err := FormatAccount(addr)
	require.NoError(t, err)
	require.Contains(t, encoded, AccountPrefix+"1")

	fromBech32, err := ParseAccount(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, fromBech32)

	fromHex, err := ParseAccount(" " + addr.Hex() + " ")
	require.NoError(t, err)
	require.Equal(t, addr, fromHex)
}

func TestParseAccountRejectsInvalid(t *testing.T) {
	for _, value := range []string{"", "0x1234", "0x0000000000000000000000000000000000000000", "nhb1qqqqqq", "not-an-address"} {
		_, err := ParseAccount(value)
		require.ErrorIs(t, err, ErrInvalidAccount, value)
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "operator.json")

	require.NoError(t, SaveToKeystore(path, key, "secret"))
	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
