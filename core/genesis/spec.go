package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/crypto"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
)

// GenesisSpec is the JSON document describing the initial ledger: the base
// asset, the governed token, the economic parameters and initial balances.
type GenesisSpec struct {
	GenesisTime string            `json:"genesisTime"`
	Admin       string            `json:"admin"`
	Asset       AssetSpec         `json:"asset"`
	Token       TokenSpec         `json:"token"`
	Params      ParamsSpec        `json:"params"`
	Alloc       map[string]string `json:"alloc"` // account -> base asset amount

	genesisTimestamp time.Time
}

type AssetSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Issuer   string `json:"issuer"`
}

type TokenSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// ParamsSpec carries rates as decimal strings since they exceed 64 bits.
type ParamsSpec struct {
	BaseRatePerSharePerSec    string `json:"baseRatePerSharePerSec"`
	SpeedUpRatePerSharePerSec string `json:"speedUpRatePerSharePerSec"`
	SpeedUpThresholdPct       uint64 `json:"speedUpThresholdPct"`
	SpeedUpDurationSec        uint64 `json:"speedUpDurationSec"`
	MaxCapPct                 uint64 `json:"maxCapPct"`
}

// Allocation is a base asset balance minted by the issuer at genesis.
type Allocation struct {
	Account common.Address
	Amount  *uint256.Int
}

// Genesis is the validated, typed form of a GenesisSpec.
type Genesis struct {
	Time   time.Time
	Admin  common.Address
	Asset  bank.AssetInfo
	Token  vetoken.Metadata
	Params vestaking.Params
	Alloc  []Allocation
}

// DefaultSpec returns a development genesis administered by admin, who also
// issues the base asset.
func DefaultSpec(admin common.Address) *GenesisSpec {
	defaults := vestaking.DefaultParams()
	return &GenesisSpec{
		GenesisTime: time.Now().UTC().Format(time.RFC3339),
		Admin:       admin.Hex(),
		Asset:       AssetSpec{Symbol: "STAKE", Name: "Stake", Decimals: 18, Issuer: admin.Hex()},
		Token:       TokenSpec{Symbol: "VESTAKE", Name: "Vote Escrowed Stake", Decimals: vetoken.DefaultDecimals},
		Params: ParamsSpec{
			BaseRatePerSharePerSec:    defaults.BaseRatePerSharePerSec.Dec(),
			SpeedUpRatePerSharePerSec: defaults.SpeedUpRatePerSharePerSec.Dec(),
			SpeedUpThresholdPct:       defaults.SpeedUpThresholdPct,
			SpeedUpDurationSec:        defaults.SpeedUpDurationSec,
			MaxCapPct:                 defaults.MaxCapPct,
		},
		Alloc: map[string]string{},
	}
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if _, err := spec.Build(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// WriteGenesisSpec persists spec as indented JSON.
func WriteGenesisSpec(path string, spec *GenesisSpec) error {
	encoded, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Build validates the spec and converts it into typed genesis values.
func (s *GenesisSpec) Build() (*Genesis, error) {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return nil, err
	}
	s.genesisTimestamp = parsedTime

	admin, err := crypto.ParseAccount(s.Admin)
	if err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	asset, err := s.Asset.build()
	if err != nil {
		return nil, err
	}
	token, err := s.Token.build()
	if err != nil {
		return nil, err
	}
	if asset.Symbol == token.Symbol {
		return nil, fmt.Errorf("asset and token symbols must differ (both %q)", asset.Symbol)
	}
	params, err := s.Params.build()
	if err != nil {
		return nil, err
	}
	alloc, err := buildAlloc(s.Alloc)
	if err != nil {
		return nil, err
	}
	return &Genesis{
		Time:   parsedTime,
		Admin:  admin,
		Asset:  asset,
		Token:  token,
		Params: params,
		Alloc:  alloc,
	}, nil
}

func (a AssetSpec) build() (bank.AssetInfo, error) {
	symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
	if symbol == "" {
		return bank.AssetInfo{}, fmt.Errorf("asset.symbol must be provided")
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return bank.AssetInfo{}, fmt.Errorf("asset.name must be provided")
	}
	issuer, err := crypto.ParseAccount(a.Issuer)
	if err != nil {
		return bank.AssetInfo{}, fmt.Errorf("asset.issuer: %w", err)
	}
	return bank.AssetInfo{Name: name, Symbol: symbol, Decimals: a.Decimals, Issuer: issuer}, nil
}

func (t TokenSpec) build() (vetoken.Metadata, error) {
	symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if symbol == "" {
		return vetoken.Metadata{}, fmt.Errorf("token.symbol must be provided")
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return vetoken.Metadata{}, fmt.Errorf("token.name must be provided")
	}
	decimals := t.Decimals
	if decimals == 0 {
		decimals = vetoken.DefaultDecimals
	}
	return vetoken.Metadata{Name: name, Symbol: symbol, Decimals: decimals, Owner: vestaking.ModuleAddress}, nil
}

func (p ParamsSpec) build() (vestaking.Params, error) {
	base, err := parseAmountString(p.BaseRatePerSharePerSec)
	if err != nil {
		return vestaking.Params{}, fmt.Errorf("params.baseRatePerSharePerSec: %w", err)
	}
	speedUp, err := parseAmountString(p.SpeedUpRatePerSharePerSec)
	if err != nil {
		return vestaking.Params{}, fmt.Errorf("params.speedUpRatePerSharePerSec: %w", err)
	}
	params := vestaking.Params{
		BaseRatePerSharePerSec:    base,
		SpeedUpRatePerSharePerSec: speedUp,
		SpeedUpThresholdPct:       p.SpeedUpThresholdPct,
		SpeedUpDurationSec:        p.SpeedUpDurationSec,
		MaxCapPct:                 p.MaxCapPct,
	}
	if err := params.Validate(); err != nil {
		return vestaking.Params{}, fmt.Errorf("params: %w", err)
	}
	return params, nil
}

func buildAlloc(raw map[string]string) ([]Allocation, error) {
	alloc := make([]Allocation, 0, len(raw))
	seen := make(map[common.Address]struct{}, len(raw))
	for account, value := range raw {
		addr, err := crypto.ParseAccount(account)
		if err != nil {
			return nil, fmt.Errorf("alloc: %w", err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("alloc: duplicate account %s", addr.Hex())
		}
		seen[addr] = struct{}{}
		amount, err := parseAmountString(value)
		if err != nil {
			return nil, fmt.Errorf("alloc %s: %w", addr.Hex(), err)
		}
		if amount.IsZero() {
			continue
		}
		alloc = append(alloc, Allocation{Account: addr, Amount: amount})
	}
	sort.Slice(alloc, func(i, j int) bool {
		return bytes.Compare(alloc[i].Account.Bytes(), alloc[j].Account.Bytes()) < 0
	})
	return alloc, nil
}

func parseAmountString(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
