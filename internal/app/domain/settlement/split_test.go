package settlement

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() FeeConfig {
	return FeeConfig{
		PlatformFeeBP:  20,
		StakingFeeBP:   30,
		RoyaltyCapBP:   200,
		Treasury:       "treasury",
		NativeCurrency: "GAS",
		CreationFee:    new(big.Int),
	}
}

func TestComputeSplitCapsRoyalty(t *testing.T) {
	price := big.NewInt(1_000_000)
	// Collection declares 3% but the cap is 2%.
	declared := BasisPointShare(price, 300)
	require.Equal(t, big.NewInt(30_000), declared)

	split := ComputeSplit(price, declared, "rina", testConfig())

	require.Equal(t, big.NewInt(20_000), split.RoyaltyAmount)
	require.Equal(t, "rina", split.RoyaltyReceiver)
	require.Equal(t, big.NewInt(3_000), split.StakingFee)
	require.Equal(t, big.NewInt(2_000), split.PlatformFee)
	require.Equal(t, big.NewInt(975_000), split.SellerProceeds)
	require.Equal(t, price, split.Total())
}

func TestComputeSplitRoyaltyBelowCap(t *testing.T) {
	price := big.NewInt(1_000_000)
	declared := BasisPointShare(price, 100)

	split := ComputeSplit(price, declared, "rina", testConfig())
	require.Equal(t, big.NewInt(10_000), split.RoyaltyAmount)
	require.Equal(t, price, split.Total())
}

func TestComputeSplitNoRoyalty(t *testing.T) {
	price := big.NewInt(1_000_000)

	split := ComputeSplit(price, nil, "", testConfig())
	require.Equal(t, 0, split.RoyaltyAmount.Sign())
	require.Empty(t, split.RoyaltyReceiver)
	require.Equal(t, big.NewInt(995_000), split.SellerProceeds)
	require.Equal(t, price, split.Total())
}

func TestComputeSplitTruncationRemainderGoesToSeller(t *testing.T) {
	// 999 at 30bp truncates to 2; the lost fraction lands in proceeds.
	price := big.NewInt(999)
	split := ComputeSplit(price, nil, "", testConfig())

	require.Equal(t, big.NewInt(2), split.StakingFee)
	require.Equal(t, big.NewInt(1), split.PlatformFee)
	require.Equal(t, big.NewInt(996), split.SellerProceeds)
	require.Equal(t, price, split.Total())
}

func TestComputeSplitHugePrice(t *testing.T) {
	price, ok := new(big.Int).SetString("1000000000000000000000000000000", 10)
	require.True(t, ok)

	declared := BasisPointShare(price, 500)
	split := ComputeSplit(price, declared, "rina", testConfig())

	ceiling := BasisPointShare(price, 200)
	require.Equal(t, ceiling, split.RoyaltyAmount)
	require.Equal(t, price, split.Total())
}

func TestFeeConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	over := cfg
	over.RoyaltyCapBP = 9_960
	require.Error(t, over.Validate(), "bp sum above 10000 must fail")

	missing := cfg
	missing.Treasury = " "
	require.Error(t, missing.Validate())

	negative := cfg
	negative.CreationFee = big.NewInt(-1)
	require.Error(t, negative.Validate())
}

func TestCurrencyAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedCurrencies = []string{"NEO"}

	require.True(t, cfg.CurrencyAllowed("GAS"))
	require.True(t, cfg.CurrencyAllowed("NEO"))
	require.False(t, cfg.CurrencyAllowed("BTC"))
	require.Equal(t, []string{"GAS", "NEO"}, cfg.Currencies())
}
