package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the human-readable part of bech32 encoded accounts.
const AccountPrefix = "vs"

var ErrInvalidAccount = errors.New("crypto: invalid account")

// FormatAccount encodes addr as a bech32 string with the account prefix.
func FormatAccount(addr common.Address) (string, error) {
	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(AccountPrefix, conv)
}

// ParseAccount accepts a 0x-prefixed hex address or a bech32 account and
// returns the 20 byte address. The zero address is rejected.
func ParseAccount(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	var addr common.Address
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAccount, value)
		}
		addr = common.HexToAddress(trimmed)
	} else {
		decoded, err := decodeBech32Account(trimmed)
		if err != nil {
			return common.Address{}, err
		}
		addr = decoded
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAccount)
	}
	return addr, nil
}

func decodeBech32Account(value string) (common.Address, error) {
	hrp, data, err := bech32.Decode(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if hrp != AccountPrefix {
		return common.Address{}, fmt.Errorf("%w: unsupported prefix %q", ErrInvalidAccount, hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if len(conv) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: invalid length %d", ErrInvalidAccount, len(conv))
	}
	return common.BytesToAddress(conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
