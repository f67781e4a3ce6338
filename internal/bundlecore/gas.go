package bundlecore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultUplift is the bump applied to observed trigger fees.
var DefaultUplift = decimal.RequireFromString("1.2")

// GasPolicy derives companion fees from the trigger's fees.
type GasPolicy struct {
	Uplift  decimal.Decimal
	Default FeeSchedule
}

func NewGasPolicy(uplift decimal.Decimal, def FeeSchedule) (GasPolicy, error) {
	if uplift.LessThan(decimal.NewFromInt(1)) {
		return GasPolicy{}, fmt.Errorf("gas uplift %s below 1", uplift)
	}
	if !def.Valid() {
		return GasPolicy{}, errors.New("default fee schedule needs max >= priority > 0")
	}
	return GasPolicy{Uplift: uplift, Default: copyFees(def)}, nil
}

// Derive bumps the observed dynamic fees by the uplift. A trigger without
// dynamic fees gets the default schedule. The result always has
// max >= priority > 0.
func (p GasPolicy) Derive(observed *ObservedTransaction) FeeSchedule {
	if observed == nil || observed.GasFeeCap == nil || observed.GasTipCap == nil {
		return copyFees(p.Default)
	}
	out := FeeSchedule{
		MaxFeePerGas:         bump(observed.GasFeeCap, p.Uplift),
		MaxPriorityFeePerGas: bump(observed.GasTipCap, p.Uplift),
	}
	if out.MaxPriorityFeePerGas.Sign() <= 0 {
		out.MaxPriorityFeePerGas = new(big.Int).Set(p.Default.MaxPriorityFeePerGas)
	}
	if out.MaxFeePerGas.Cmp(out.MaxPriorityFeePerGas) < 0 {
		out.MaxFeePerGas = new(big.Int).Set(out.MaxPriorityFeePerGas)
	}
	return out
}

// bump multiplies v by m and truncates to whole wei.
func bump(v *big.Int, m decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(m).Truncate(0).BigInt()
}

func copyFees(f FeeSchedule) FeeSchedule {
	return FeeSchedule{
		MaxFeePerGas:         copyBig(f.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(f.MaxPriorityFeePerGas),
	}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
