package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flasharb/guard"
)

// Config is the engine's startup configuration. Addresses and amounts are
// strings so the same file loads as JSON or YAML; Validate checks them.
type Config struct {
	// Chain and network settings
	ChainID     uint64 `json:"chain_id" yaml:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`

	// Principals and collaborator contracts
	Owner         string `json:"owner" yaml:"owner"`
	Account       string `json:"account" yaml:"account"`
	LenderPool    string `json:"lender_pool" yaml:"lender_pool"`
	Quoter        string `json:"quoter" yaml:"quoter"`
	SwapRouter    string `json:"swap_router" yaml:"swap_router"`
	PathRouter    string `json:"path_router" yaml:"path_router"`
	WrappedNative string `json:"wrapped_native" yaml:"wrapped_native"`

	// Guardrails
	MinProfitThreshold   string `json:"min_profit_threshold" yaml:"min_profit_threshold"`
	SlippageToleranceBps uint32 `json:"slippage_tolerance_bps" yaml:"slippage_tolerance_bps"`
	MaxGasPrice          string `json:"max_gas_price" yaml:"max_gas_price"`
	Active               bool   `json:"active" yaml:"active"`
	AllowUnquotedSwaps   bool   `json:"allow_unquoted_swaps" yaml:"allow_unquoted_swaps"`

	// RPC throttling
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// token address -> price feed address; absence of a token is legal
	PriceFeeds map[string]string `json:"price_feeds" yaml:"price_feeds"`

	// preferred fee tiers on the fee-tiered venue
	FeePreferences []FeePreference `json:"fee_preferences" yaml:"fee_preferences"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

type FeePreference struct {
	TokenA  string `json:"token_a" yaml:"token_a"`
	TokenB  string `json:"token_b" yaml:"token_b"`
	FeeTier uint32 `json:"fee_tier" yaml:"fee_tier"`
}

// Validate checks the configuration, aggregating every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.ChainID == 0 {
		errs = append(errs, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errs = append(errs, "rpc_endpoint must be specified")
	}

	for name, addr := range map[string]string{
		"owner":          c.Owner,
		"account":        c.Account,
		"lender_pool":    c.LenderPool,
		"quoter":         c.Quoter,
		"swap_router":    c.SwapRouter,
		"path_router":    c.PathRouter,
		"wrapped_native": c.WrappedNative,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("%s must be a hex address", name))
		}
	}

	if _, err := parseAmount(c.MinProfitThreshold); err != nil {
		errs = append(errs, fmt.Sprintf("min_profit_threshold: %v", err))
	}
	if c.SlippageToleranceBps > guard.MaxSlippageBps {
		errs = append(errs, fmt.Sprintf("slippage_tolerance_bps %d exceeds max %d", c.SlippageToleranceBps, guard.MaxSlippageBps))
	}
	if v, err := parseAmount(c.MaxGasPrice); err != nil {
		errs = append(errs, fmt.Sprintf("max_gas_price: %v", err))
	} else if v.Sign() <= 0 {
		errs = append(errs, "max_gas_price must be positive")
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.BurstSize < 0 {
		errs = append(errs, "rate limit values must be non-negative")
	}

	for token, feed := range c.PriceFeeds {
		if !common.IsHexAddress(token) || !common.IsHexAddress(feed) {
			errs = append(errs, fmt.Sprintf("price feed entry %s -> %s is not a valid address pair", token, feed))
		}
	}
	for _, p := range c.FeePreferences {
		if !common.IsHexAddress(p.TokenA) || !common.IsHexAddress(p.TokenB) {
			errs = append(errs, "fee preference tokens must be hex addresses")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GuardPolicy materializes the guardrail policy. Call after Validate.
func (c *Config) GuardPolicy() (guard.Policy, error) {
	minProfit, err := parseAmount(c.MinProfitThreshold)
	if err != nil {
		return guard.Policy{}, fmt.Errorf("min_profit_threshold: %w", err)
	}
	maxGas, err := parseAmount(c.MaxGasPrice)
	if err != nil {
		return guard.Policy{}, fmt.Errorf("max_gas_price: %w", err)
	}
	return guard.Policy{
		MinProfit:          minProfit,
		SlippageBps:        c.SlippageToleranceBps,
		MaxGasPrice:        maxGas,
		Active:             c.Active,
		AllowUnquotedSwaps: c.AllowUnquotedSwaps,
	}, nil
}

// Feeds materializes the token -> feed registry. Call after Validate.
func (c *Config) Feeds() map[common.Address]common.Address {
	feeds := make(map[common.Address]common.Address, len(c.PriceFeeds))
	for token, feed := range c.PriceFeeds {
		feeds[common.HexToAddress(token)] = common.HexToAddress(feed)
	}
	return feeds
}

// LoadConfig reads a JSON or YAML config file, selected by extension.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".flasharb.json")
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config: %w", err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg.Logger = logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns mainnet defaults with the circuit breaker off.
func DefaultConfig() *Config {
	return &Config{
		Logger:               zap.NewNop(),
		ChainID:              1,
		RPCEndpoint:          "http://localhost:8545",
		WrappedNative:        "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		LenderPool:           "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		Quoter:               "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
		SwapRouter:           "0xE592427A0AEce92De3Edee1F18E0157C05861564",
		PathRouter:           "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		MinProfitThreshold:   "100000000000000000", // 0.1 in 18-decimals terms
		SlippageToleranceBps: 50,                   // 0.50%
		MaxGasPrice:          "500000000000",       // 500 Gwei
		Active:               false,
		AllowUnquotedSwaps:   true,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         100,
		},
	}
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	return v, nil
}
