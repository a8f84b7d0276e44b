package state

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	stakingGlobalKey     = []byte("vestaking:global")
	stakingParamsKey     = []byte("vestaking:params")
	stakingGovernanceKey = []byte("vestaking:governance")
	stakingUserPrefix    = []byte("vestaking:user:")
	tokenMetaPrefix      = []byte("token:meta:")
	assetInfoPrefix      = []byte("asset:info:")
	balancePrefix        = []byte("balance:")
	supplyPrefix         = []byte("supply:")
	allowancePrefix      = []byte("allowance:")
)

func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return buf
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func stakingUserKey(addr common.Address) []byte {
	return join(stakingUserPrefix, addr.Bytes())
}

func tokenMetaKey(symbol string) []byte {
	return join(tokenMetaPrefix, []byte(normalizeSymbol(symbol)))
}

func assetInfoKey(symbol string) []byte {
	return join(assetInfoPrefix, []byte(normalizeSymbol(symbol)))
}

func balanceKey(symbol string, addr common.Address) []byte {
	return join(balancePrefix, []byte(normalizeSymbol(symbol)), addr.Bytes())
}

func supplyKey(symbol string) []byte {
	return join(supplyPrefix, []byte(normalizeSymbol(symbol)))
}

func allowanceKey(symbol string, owner, spender common.Address) []byte {
	return join(allowancePrefix, []byte(normalizeSymbol(symbol)), owner.Bytes(), spender.Bytes())
}
