package pool

import "math/big"

// Scale is the fixed-point scale of the per-share accumulator. All divisions
// truncate toward zero; truncation remainders stay in the pool's ledger
// account as undistributed dust, never as a liability.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// AccrueDelta converts a fee amount into an accumulator increment:
// amount * Scale / totalShares. totalShares must be positive; callers route
// fees into the buffer when no shares exist.
func AccrueDelta(amount *big.Int, totalShares uint64) *big.Int {
	delta := new(big.Int).Mul(amount, Scale)
	return delta.Quo(delta, new(big.Int).SetUint64(totalShares))
}

// DebtFor returns shares * accPerShare / Scale, the reward debt a position
// must carry so previously accrued income is not attributed to it.
func DebtFor(shares uint64, accPerShare *big.Int) *big.Int {
	debt := new(big.Int).Mul(new(big.Int).SetUint64(shares), accPerShare)
	return debt.Quo(debt, Scale)
}

// Pending returns the newly earned, not yet paid amount for a position:
// shares * accPerShare / Scale - debt. The resync invariant keeps this
// non-negative; a zero big.Int is returned if it would underflow.
func Pending(shares uint64, accPerShare, debt *big.Int) *big.Int {
	earned := DebtFor(shares, accPerShare)
	earned.Sub(earned, debt)
	if earned.Sign() < 0 {
		return new(big.Int)
	}
	return earned
}
