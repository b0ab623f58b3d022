package curve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// ShareDecimals is the decimal precision of LP share amounts.
	ShareDecimals = 6
	// FeeDenominator is the basis point denominator for pool fees.
	FeeDenominator = 10_000
)

var (
	ErrOverflow              = errors.New("amount overflows 64 bits")
	ErrInvariantViolated     = errors.New("pool invariant violated")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidFee            = errors.New("fee must be below 10000 bps")
)

// BootstrapRule selects how many shares the first deposit into an empty pool mints.
type BootstrapRule int

const (
	// BootstrapMax mints max(x, y) shares so one share tracks one unit of the richer side.
	BootstrapMax BootstrapRule = iota
	// BootstrapGeometric mints floor(sqrt(x*y)) shares.
	BootstrapGeometric
)

func (r BootstrapRule) String() string {
	switch r {
	case BootstrapMax:
		return "max"
	case BootstrapGeometric:
		return "geometric"
	default:
		return fmt.Sprintf("bootstrap(%d)", int(r))
	}
}

// ParseBootstrapRule parses a configuration value into a BootstrapRule.
func ParseBootstrapRule(value string) (BootstrapRule, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "max":
		return BootstrapMax, nil
	case "geometric", "sqrt", "geomean":
		return BootstrapGeometric, nil
	default:
		return BootstrapMax, fmt.Errorf("unknown bootstrap rule %q", value)
	}
}

// BootstrapShares returns the shares minted for seeding an empty pool with x and y.
func BootstrapShares(rule BootstrapRule, x, y uint64) (uint64, error) {
	if x == 0 || y == 0 {
		return 0, ErrInvariantViolated
	}
	switch rule {
	case BootstrapMax:
		return max(x, y), nil
	case BootstrapGeometric:
		product := mul(x, y)
		shares := new(uint256.Int).Sqrt(product)
		// sqrt of a 128-bit product always fits in 64 bits.
		return shares.Uint64(), nil
	default:
		return 0, fmt.Errorf("unknown bootstrap rule %d", int(rule))
	}
}

// DepositAmounts returns the reserves needed to mint shares against a pool with
// the given reserves and supply. Amounts round up.
func DepositAmounts(reserveX, reserveY, supply, shares uint64) (uint64, uint64, error) {
	if supply == 0 {
		return 0, 0, ErrInvariantViolated
	}
	if _, ok := add(supply, shares); !ok {
		return 0, 0, ErrOverflow
	}
	needX, err := mulDivUp(reserveX, shares, supply)
	if err != nil {
		return 0, 0, err
	}
	needY, err := mulDivUp(reserveY, shares, supply)
	if err != nil {
		return 0, 0, err
	}
	if _, ok := add(reserveX, needX); !ok {
		return 0, 0, ErrOverflow
	}
	if _, ok := add(reserveY, needY); !ok {
		return 0, 0, ErrOverflow
	}
	return needX, needY, nil
}

// WithdrawAmounts returns the reserves released by burning shares. Amounts round down.
func WithdrawAmounts(reserveX, reserveY, supply, shares uint64) (uint64, uint64, error) {
	if supply == 0 || shares > supply {
		return 0, 0, ErrInvariantViolated
	}
	outX, err := mulDivDown(reserveX, shares, supply)
	if err != nil {
		return 0, 0, err
	}
	outY, err := mulDivDown(reserveY, shares, supply)
	if err != nil {
		return 0, 0, err
	}
	return outX, outY, nil
}

// EffectiveInput returns the part of amountIn left after the fee is retained.
func EffectiveInput(amountIn uint64, feeBps uint16) (uint64, error) {
	if feeBps >= FeeDenominator {
		return 0, ErrInvalidFee
	}
	return mulDivDown(amountIn, uint64(FeeDenominator-feeBps), FeeDenominator)
}

// SwapOut returns the output amount for selling amountIn into a pool holding
// reserveIn and reserveOut.
func SwapOut(reserveIn, reserveOut, amountIn uint64, feeBps uint16) (uint64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, ErrInvariantViolated
	}
	if _, ok := add(reserveIn, amountIn); !ok {
		return 0, ErrOverflow
	}
	effective, err := EffectiveInput(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	numerator := mul(reserveOut, effective)
	denominator := new(uint256.Int).Add(uint256.NewInt(reserveIn), uint256.NewInt(effective))
	out := new(uint256.Int).Div(numerator, denominator)

	// out < reserveOut always holds for a finite input, so the result fits in 64 bits.
	amountOut := out.Uint64()
	if amountOut == 0 || amountOut >= reserveOut {
		return 0, ErrInsufficientLiquidity
	}
	return amountOut, nil
}

// Product returns x*y as a 256-bit value.
func Product(x, y uint64) *uint256.Int {
	return mul(x, y)
}

// BackingNonDecreasing reports whether reservePost/supplyPost >= reservePre/supplyPre
// in exact rational arithmetic. An empty post state is treated as non-decreasing.
func BackingNonDecreasing(reservePre, supplyPre, reservePost, supplyPost uint64) bool {
	if supplyPost == 0 || supplyPre == 0 {
		return true
	}
	return mul(reservePost, supplyPre).Cmp(mul(reservePre, supplyPost)) >= 0
}

func mul(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}

func add(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func mulDivDown(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrInvariantViolated
	}
	q := new(uint256.Int).Div(mul(a, b), uint256.NewInt(d))
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}

func mulDivUp(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrInvariantViolated
	}
	p := mul(a, b)
	den := uint256.NewInt(d)
	q := new(uint256.Int).Div(p, den)
	if !new(uint256.Int).Mod(p, den).IsZero() {
		q.AddUint64(q, 1)
	}
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}
