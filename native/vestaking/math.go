package vestaking

import "github.com/holiman/uint256"

var (
	// Precision is the fixed-point scale of rates and the accumulator.
	Precision = mustUint("1000000000000000000") // 1e18
	// MaxRatePerSharePerSec bounds both emission rates.
	MaxRatePerSharePerSec = mustUint("1000000000000000000000000000000000000") // 1e36

	hundred = uint256.NewInt(100)
)

func mustUint(value string) *uint256.Int {
	v, err := uint256.FromDecimal(value)
	if err != nil {
		panic("invalid uint256 constant")
	}
	return v
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product, nil
}

// mulDiv returns floor(a*b/d) using a 512-bit intermediate product.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrArithmeticOverflow
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return quotient, nil
}

// saturatingSub returns a-b, or zero when b exceeds a.
func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// accruedDebt returns balance*accPerShare/Precision, the reward already
// accounted for at the given accumulator value.
func accruedDebt(balance, accPerShare *uint256.Int) (*uint256.Int, error) {
	return mulDiv(balance, accPerShare, Precision)
}

// speedUpReward returns balance*seconds*rate/Precision.
func speedUpReward(balance *uint256.Int, seconds uint64, rate *uint256.Int) (*uint256.Int, error) {
	if seconds == 0 || balance.IsZero() || rate.IsZero() {
		return new(uint256.Int), nil
	}
	scaled, err := checkedMul(balance, uint256.NewInt(seconds))
	if err != nil {
		return nil, err
	}
	return mulDiv(scaled, rate, Precision)
}

// rewardCap returns balance*maxCapPct/100.
func rewardCap(balance *uint256.Int, maxCapPct uint64) (*uint256.Int, error) {
	return mulDiv(balance, uint256.NewInt(maxCapPct), hundred)
}

// qualifiesForSpeedUp reports whether a deposit of amount on top of prior
// reaches the speed-up threshold. A first deposit always qualifies.
func qualifiesForSpeedUp(prior, amount *uint256.Int, thresholdPct uint64) (bool, error) {
	if prior.IsZero() {
		return true, nil
	}
	scaled, err := checkedMul(amount, hundred)
	if err != nil {
		return false, err
	}
	ratio := new(uint256.Int).Div(scaled, prior)
	return ratio.Cmp(uint256.NewInt(thresholdPct)) >= 0, nil
}
