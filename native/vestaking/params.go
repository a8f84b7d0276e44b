package vestaking

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// MaxCapPctCeiling is the largest cap percentage the ledger accepts.
	MaxCapPctCeiling uint64 = 10_000_000
	// MaxSpeedUpDurationSec bounds the speed-up window to one year.
	MaxSpeedUpDurationSec uint64 = 365 * 24 * 60 * 60
)

// Parameter names used by setters, events and the admin API.
const (
	ParamBaseRate         = "baseRate"
	ParamSpeedUpRate      = "speedUpRate"
	ParamSpeedUpThreshold = "speedUpThresholdPct"
	ParamSpeedUpDuration  = "speedUpDuration"
	ParamMaxCapPct        = "maxCapPct"
)

const (
	defaultThresholdPct    = 5
	defaultSpeedUpDuration = 15 * 24 * 60 * 60
	defaultMaxCapPct       = 10_000
)

// Params captures the economic constants governing accrual. Rates are
// 1e18-scaled amounts of derived token per staked unit per second.
type Params struct {
	BaseRatePerSharePerSec    *uint256.Int `json:"baseRatePerSharePerSec"`
	SpeedUpRatePerSharePerSec *uint256.Int `json:"speedUpRatePerSharePerSec"`
	SpeedUpThresholdPct       uint64       `json:"speedUpThresholdPct"`
	SpeedUpDurationSec        uint64       `json:"speedUpDurationSec"`
	MaxCapPct                 uint64       `json:"maxCapPct"`
}

// DefaultParams returns the production defaults: one token per staked unit
// per second for both rates, a 5% threshold, a 15 day window and a 100x cap.
func DefaultParams() Params {
	return Params{
		BaseRatePerSharePerSec:    new(uint256.Int).Set(Precision),
		SpeedUpRatePerSharePerSec: new(uint256.Int).Set(Precision),
		SpeedUpThresholdPct:       defaultThresholdPct,
		SpeedUpDurationSec:        defaultSpeedUpDuration,
		MaxCapPct:                 defaultMaxCapPct,
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.BaseRatePerSharePerSec = cloneAmount(p.BaseRatePerSharePerSec)
	clone.SpeedUpRatePerSharePerSec = cloneAmount(p.SpeedUpRatePerSharePerSec)
	return clone
}

// Validate enforces the bounds every parameter must respect.
func (p Params) Validate() error {
	if err := validateRate(ParamBaseRate, p.BaseRatePerSharePerSec); err != nil {
		return err
	}
	if err := validateRate(ParamSpeedUpRate, p.SpeedUpRatePerSharePerSec); err != nil {
		return err
	}
	if err := validateThreshold(p.SpeedUpThresholdPct); err != nil {
		return err
	}
	if err := validateDuration(p.SpeedUpDurationSec); err != nil {
		return err
	}
	if p.MaxCapPct == 0 || p.MaxCapPct > MaxCapPctCeiling {
		return fmt.Errorf("%w: %s must be within [1, %d]", ErrParameterOutOfRange, ParamMaxCapPct, MaxCapPctCeiling)
	}
	return nil
}

func validateRate(name string, rate *uint256.Int) error {
	if rate == nil {
		return fmt.Errorf("%w: %s must be set", ErrParameterOutOfRange, name)
	}
	if rate.Cmp(MaxRatePerSharePerSec) > 0 {
		return fmt.Errorf("%w: %s exceeds %s", ErrParameterOutOfRange, name, MaxRatePerSharePerSec.Dec())
	}
	return nil
}

func validateThreshold(pct uint64) error {
	if pct == 0 || pct > 100 {
		return fmt.Errorf("%w: %s must be within (0, 100]", ErrParameterOutOfRange, ParamSpeedUpThreshold)
	}
	return nil
}

func validateDuration(seconds uint64) error {
	if seconds > MaxSpeedUpDurationSec {
		return fmt.Errorf("%w: %s exceeds %d seconds", ErrParameterOutOfRange, ParamSpeedUpDuration, MaxSpeedUpDurationSec)
	}
	return nil
}

func validateMaxCapPct(current, next uint64) error {
	if next <= current {
		return fmt.Errorf("%w: %s must be greater than the existing value %d", ErrParameterOutOfRange, ParamMaxCapPct, current)
	}
	if next > MaxCapPctCeiling {
		return fmt.Errorf("%w: %s exceeds %d", ErrParameterOutOfRange, ParamMaxCapPct, MaxCapPctCeiling)
	}
	return nil
}
