package pool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccrueDeltaAndDebtRoundTrip(t *testing.T) {
	delta := AccrueDelta(big.NewInt(100), 1)
	require.Equal(t, new(big.Int).Mul(big.NewInt(100), Scale), delta)

	debt := DebtFor(1, delta)
	require.Equal(t, big.NewInt(100), debt)
}

func TestAccrueDeltaTruncates(t *testing.T) {
	// 100 across 3 shares: each share sees floor(100*1e18/3) per-share units.
	delta := AccrueDelta(big.NewInt(100), 3)

	expected := new(big.Int).Mul(big.NewInt(100), Scale)
	expected.Quo(expected, big.NewInt(3))
	require.Equal(t, expected, delta)

	// Paying out all 3 shares loses at most 2 dust units to truncation.
	paid := DebtFor(3, delta)
	require.True(t, paid.Cmp(big.NewInt(100)) <= 0)
	dust := new(big.Int).Sub(big.NewInt(100), paid)
	require.True(t, dust.Cmp(big.NewInt(3)) < 0, "dust %s", dust)
}

func TestPendingNeverNegative(t *testing.T) {
	acc := AccrueDelta(big.NewInt(50), 2)
	debt := DebtFor(2, acc)

	// Debt resynced at the current accumulator leaves nothing pending.
	require.Equal(t, 0, Pending(2, acc, debt).Sign())

	// A stale larger debt clamps to zero instead of going negative.
	bigger := new(big.Int).Add(debt, big.NewInt(1))
	require.Equal(t, 0, Pending(2, acc, bigger).Sign())
}

func TestPendingLargeAmounts(t *testing.T) {
	// Price-scale income (1e30) across many shares survives without overflow.
	amount, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	acc := AccrueDelta(amount, 1_000_000)

	pending := Pending(1_000_000, acc, new(big.Int))
	diff := new(big.Int).Sub(amount, pending)
	require.True(t, diff.Sign() >= 0)
	require.True(t, diff.Cmp(big.NewInt(1_000_000)) < 0, "dust %s", diff)
}
