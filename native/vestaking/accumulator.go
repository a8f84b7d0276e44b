package vestaking

import "github.com/holiman/uint256"

// projectAccumulator returns the accumulator state a refresh at now would
// produce. The input is not mutated. Accrual is a flat per-unit rate and
// keeps running whether or not anything is staked.
func projectAccumulator(global *GlobalState, now uint64, rate *uint256.Int) (*GlobalState, bool, error) {
	next := global.Clone()
	if now <= next.LastRewardTimestamp {
		return next, false, nil
	}
	if rate.IsZero() {
		next.LastRewardTimestamp = now
		return next, true, nil
	}
	elapsed := uint256.NewInt(now - next.LastRewardTimestamp)
	increment, err := checkedMul(elapsed, rate)
	if err != nil {
		return nil, false, err
	}
	acc, err := checkedAdd(next.AccPerShare, increment)
	if err != nil {
		return nil, false, err
	}
	next.AccPerShare = acc
	next.LastRewardTimestamp = now
	return next, true, nil
}
