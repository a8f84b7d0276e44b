package vestaking

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vestake/core/events"
)

// SetMaxCapPct raises the per-user cap. Lowering it is never allowed so a
// settled balance can never end up above its own cap.
func (e *Engine) SetMaxCapPct(caller common.Address, value uint64) error {
	return e.updateParams(caller, ParamMaxCapPct, false, func(p *Params) (string, string, error) {
		if err := validateMaxCapPct(p.MaxCapPct, value); err != nil {
			return "", "", err
		}
		prev := p.MaxCapPct
		p.MaxCapPct = value
		return strconv.FormatUint(prev, 10), strconv.FormatUint(value, 10), nil
	})
}

// SetBaseRate changes the base emission rate. The accumulator is refreshed
// at the old rate first so the change only applies to future time.
func (e *Engine) SetBaseRate(caller common.Address, value *uint256.Int) error {
	return e.updateParams(caller, ParamBaseRate, true, func(p *Params) (string, string, error) {
		if err := validateRate(ParamBaseRate, value); err != nil {
			return "", "", err
		}
		prev := p.BaseRatePerSharePerSec
		p.BaseRatePerSharePerSec = cloneAmount(value)
		return prev.Dec(), value.Dec(), nil
	})
}

// SetSpeedUpRate changes the speed-up bonus rate. Pending windows settle at
// the rate in force when they are settled.
func (e *Engine) SetSpeedUpRate(caller common.Address, value *uint256.Int) error {
	return e.updateParams(caller, ParamSpeedUpRate, false, func(p *Params) (string, string, error) {
		if err := validateRate(ParamSpeedUpRate, value); err != nil {
			return "", "", err
		}
		prev := p.SpeedUpRatePerSharePerSec
		p.SpeedUpRatePerSharePerSec = cloneAmount(value)
		return prev.Dec(), value.Dec(), nil
	})
}

// SetSpeedUpThresholdPct changes the deposit size, as a percentage of the
// existing balance, that opens a speed-up window.
func (e *Engine) SetSpeedUpThresholdPct(caller common.Address, value uint64) error {
	return e.updateParams(caller, ParamSpeedUpThreshold, false, func(p *Params) (string, string, error) {
		if err := validateThreshold(value); err != nil {
			return "", "", err
		}
		prev := p.SpeedUpThresholdPct
		p.SpeedUpThresholdPct = value
		return strconv.FormatUint(prev, 10), strconv.FormatUint(value, 10), nil
	})
}

// SetSpeedUpDuration changes the length of future speed-up windows.
func (e *Engine) SetSpeedUpDuration(caller common.Address, value uint64) error {
	return e.updateParams(caller, ParamSpeedUpDuration, false, func(p *Params) (string, string, error) {
		if err := validateDuration(value); err != nil {
			return "", "", err
		}
		prev := p.SpeedUpDurationSec
		p.SpeedUpDurationSec = value
		return strconv.FormatUint(prev, 10), strconv.FormatUint(value, 10), nil
	})
}

// SetBoostAggregator records the external boost consumer on the ledger and
// on the derived token.
func (e *Engine) SetBoostAggregator(caller, aggregator common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atomically(func(op *opLog) error {
		_, gov, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != gov.Admin {
			return ErrUnauthorized
		}
		gov.BoostAggregator = aggregator
		if err := e.state.PutStakingGovernance(gov); err != nil {
			return err
		}
		if err := e.token.SetBoostAggregator(e.module, aggregator); err != nil {
			return fmt.Errorf("vestaking: forward boost aggregator: %w", err)
		}
		op.emit(events.StakeBoostAggregatorSet{Caller: caller, Aggregator: aggregator})
		return nil
	})
}

// TransferAdmin hands parameter authority to a new account.
func (e *Engine) TransferAdmin(caller, admin common.Address) error {
	if admin == (common.Address{}) {
		return fmt.Errorf("%w: admin cannot be the zero address", ErrInvalidAddress)
	}
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atomically(func(op *opLog) error {
		_, gov, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != gov.Admin {
			return ErrUnauthorized
		}
		previous := gov.Admin
		gov.Admin = admin
		if err := e.state.PutStakingGovernance(gov); err != nil {
			return err
		}
		op.emit(events.StakeAdminTransferred{Previous: previous, Admin: admin})
		return nil
	})
}

func (e *Engine) updateParams(caller common.Address, name string, refreshFirst bool, apply func(p *Params) (string, string, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atomically(func(op *opLog) error {
		params, gov, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != gov.Admin {
			return ErrUnauthorized
		}
		if refreshFirst {
			global, err := e.refresh(op, params, e.now())
			if err != nil {
				return err
			}
			if err := e.state.PutStakingGlobal(global); err != nil {
				return err
			}
		}
		prev, next, err := apply(&params)
		if err != nil {
			return err
		}
		if err := e.state.PutStakingParams(&params); err != nil {
			return err
		}
		op.emit(events.StakeParamUpdated{Caller: caller, Name: name, Previous: prev, Value: next})
		return nil
	})
}
