// Package settlement holds the marketplace fee policy and the four-way
// split arithmetic executed on every purchase.
package settlement

import (
	"fmt"
	"math/big"
	"strings"
)

// BasisPointDenominator is the whole: 10000 bp == 100%.
const BasisPointDenominator = 10000

// FeeConfig is the owner-settable marketplace policy. It is validated on
// every change so settlement can never compute negative seller proceeds.
type FeeConfig struct {
	PlatformFeeBP       uint32   `yaml:"platform_fee_bp"`
	StakingFeeBP        uint32   `yaml:"staking_fee_bp"`
	RoyaltyCapBP        uint32   `yaml:"royalty_cap_bp"`
	Treasury            string   `yaml:"treasury"`
	NativeCurrency      string   `yaml:"native_currency"`
	AllowedCurrencies   []string `yaml:"allowed_currencies"`
	CreationFee         *big.Int `yaml:"-"`
	DefaultPoolID       string   `yaml:"default_pool_id"`
	OpenFeeNotification bool     `yaml:"open_fee_notification"`
}

// Validate rejects misconfigured policies. The basis-point sum check is
// deliberate: an overcommitted split must fail here, at configuration time,
// never at settlement time.
func (c FeeConfig) Validate() error {
	if c.PlatformFeeBP > BasisPointDenominator {
		return fmt.Errorf("platform_fee_bp %d exceeds %d", c.PlatformFeeBP, BasisPointDenominator)
	}
	if c.StakingFeeBP > BasisPointDenominator {
		return fmt.Errorf("staking_fee_bp %d exceeds %d", c.StakingFeeBP, BasisPointDenominator)
	}
	if c.RoyaltyCapBP > BasisPointDenominator {
		return fmt.Errorf("royalty_cap_bp %d exceeds %d", c.RoyaltyCapBP, BasisPointDenominator)
	}
	if total := uint64(c.PlatformFeeBP) + uint64(c.StakingFeeBP) + uint64(c.RoyaltyCapBP); total > BasisPointDenominator {
		return fmt.Errorf("fee basis points sum to %d, exceeding %d", total, BasisPointDenominator)
	}
	if strings.TrimSpace(c.Treasury) == "" {
		return fmt.Errorf("treasury account is required")
	}
	if strings.TrimSpace(c.NativeCurrency) == "" {
		return fmt.Errorf("native_currency is required")
	}
	if c.CreationFee != nil && c.CreationFee.Sign() < 0 {
		return fmt.Errorf("creation_fee cannot be negative")
	}
	return nil
}

// CurrencyAllowed reports whether a payment currency is accepted. The
// native currency is always allowed.
func (c FeeConfig) CurrencyAllowed(currency string) bool {
	if currency == c.NativeCurrency {
		return true
	}
	for _, allowed := range c.AllowedCurrencies {
		if allowed == currency {
			return true
		}
	}
	return false
}

// Currencies returns the full reward/payment currency set, native first.
func (c FeeConfig) Currencies() []string {
	out := []string{c.NativeCurrency}
	for _, cur := range c.AllowedCurrencies {
		if cur != c.NativeCurrency {
			out = append(out, cur)
		}
	}
	return out
}

// Split is the per-purchase fee breakdown. The conservation invariant
// RoyaltyAmount + StakingFee + PlatformFee + SellerProceeds == price holds
// exactly: the integer remainder goes to the seller.
type Split struct {
	RoyaltyAmount   *big.Int
	RoyaltyReceiver string
	StakingFee      *big.Int
	PlatformFee     *big.Int
	SellerProceeds  *big.Int
}
