package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
)

// MarketPolicy is the process-wide marketplace fee policy. It is owned by
// the settlement engine and mutable only through administrator-gated
// operations; every change is re-validated.
type MarketPolicy struct {
	mu      sync.RWMutex
	current settlement.FeeConfig
}

// NewMarketPolicy validates and wraps an initial fee configuration.
func NewMarketPolicy(initial settlement.FeeConfig) (*MarketPolicy, error) {
	if initial.CreationFee == nil {
		initial.CreationFee = new(big.Int)
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee configuration: %w", err)
	}
	return &MarketPolicy{current: initial}, nil
}

// Fees returns a copy of the active configuration.
func (p *MarketPolicy) Fees() settlement.FeeConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg := p.current
	cfg.CreationFee = new(big.Int).Set(p.current.CreationFee)
	cfg.AllowedCurrencies = append([]string(nil), p.current.AllowedCurrencies...)
	return cfg
}

// Update replaces the active configuration after validation.
func (p *MarketPolicy) Update(next settlement.FeeConfig) error {
	if next.CreationFee == nil {
		next.CreationFee = new(big.Int)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid fee configuration: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	next.CreationFee = new(big.Int).Set(next.CreationFee)
	next.AllowedCurrencies = append([]string(nil), next.AllowedCurrencies...)
	p.current = next
	return nil
}

// SetDefaultPool records the legacy shared pool used when a collection has
// no registered pool of its own.
func (p *MarketPolicy) SetDefaultPool(poolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.DefaultPoolID = poolID
}

// policyFile mirrors config/marketplace.yaml. The creation fee travels as a
// decimal string since YAML integers overflow well below token amounts.
type policyFile struct {
	settlement.FeeConfig `yaml:",inline"`
	CreationFee          string `yaml:"creation_fee"`
}

// LoadMarketPolicyFromPath reads a fee policy file.
func LoadMarketPolicyFromPath(path string) (*MarketPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market policy: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse market policy: %w", err)
	}

	cfg := file.FeeConfig
	cfg.CreationFee = new(big.Int)
	if file.CreationFee != "" {
		fee, ok := new(big.Int).SetString(file.CreationFee, 10)
		if !ok {
			return nil, fmt.Errorf("parse market policy: invalid creation_fee %q", file.CreationFee)
		}
		cfg.CreationFee = fee
	}
	return NewMarketPolicy(cfg)
}

// LoadMarketPolicyOrDefault falls back to the built-in policy when the file
// is absent.
func LoadMarketPolicyOrDefault(path string) (*MarketPolicy, error) {
	policy, err := LoadMarketPolicyFromPath(path)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return NewMarketPolicy(DefaultFeeConfig())
}

// DefaultFeeConfig is the development default: 0.2% platform fee, 0.3%
// staking fee, 2% royalty cap, 10 GAS collection creation fee.
func DefaultFeeConfig() settlement.FeeConfig {
	return settlement.FeeConfig{
		PlatformFeeBP:  20,
		StakingFeeBP:   30,
		RoyaltyCapBP:   200,
		Treasury:       "treasury",
		NativeCurrency: "GAS",
		CreationFee:    big.NewInt(1_000_000_000),
	}
}
