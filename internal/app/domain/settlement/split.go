package settlement

import "math/big"

var bpDenom = big.NewInt(BasisPointDenominator)

// BasisPointShare returns price * bp / 10000, truncating.
func BasisPointShare(price *big.Int, bp uint32) *big.Int {
	share := new(big.Int).Mul(price, big.NewInt(int64(bp)))
	return share.Quo(share, bpDenom)
}

// ComputeSplit derives the four-way split for a sale at price. declared is
// the royalty the asset declares for this sale (nil when the collection has
// no royalty capability); the amount actually paid is capped at
// price * RoyaltyCapBP / 10000 regardless of the declaration.
func ComputeSplit(price *big.Int, declaredAmount *big.Int, declaredReceiver string, cfg FeeConfig) Split {
	royalty := new(big.Int)
	receiver := ""
	if declaredAmount != nil && declaredAmount.Sign() > 0 && declaredReceiver != "" {
		ceiling := BasisPointShare(price, cfg.RoyaltyCapBP)
		if declaredAmount.Cmp(ceiling) > 0 {
			royalty.Set(ceiling)
		} else {
			royalty.Set(declaredAmount)
		}
		if royalty.Sign() > 0 {
			receiver = declaredReceiver
		}
	}

	stakingFee := BasisPointShare(price, cfg.StakingFeeBP)
	platformFee := BasisPointShare(price, cfg.PlatformFeeBP)

	proceeds := new(big.Int).Set(price)
	proceeds.Sub(proceeds, royalty)
	proceeds.Sub(proceeds, stakingFee)
	proceeds.Sub(proceeds, platformFee)

	return Split{
		RoyaltyAmount:   royalty,
		RoyaltyReceiver: receiver,
		StakingFee:      stakingFee,
		PlatformFee:     platformFee,
		SellerProceeds:  proceeds,
	}
}

// Total returns the sum of all four legs; equal to the sale price by
// construction.
func (s Split) Total() *big.Int {
	total := new(big.Int).Add(s.RoyaltyAmount, s.StakingFee)
	total.Add(total, s.PlatformFee)
	total.Add(total, s.SellerProceeds)
	return total
}
