package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/guard"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Owner = "0x00000000000000000000000000000000000000A1"
	cfg.Account = "0x00000000000000000000000000000000000000E1"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.ChainID = 0
	cfg.Owner = "not-an-address"
	cfg.SlippageToleranceBps = guard.MaxSlippageBps + 1
	cfg.MaxGasPrice = "abc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "chain_id must be specified")
	assert.ErrorContains(t, err, "owner must be a hex address")
	assert.ErrorContains(t, err, "slippage_tolerance_bps")
	assert.ErrorContains(t, err, "max_gas_price")
}

func TestValidateRejectsBadFeedEntries(t *testing.T) {
	cfg := validConfig()
	cfg.PriceFeeds = map[string]string{"0xzz": "0x00"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "price feed entry")
}

func TestGuardPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.MinProfitThreshold = "250000"
	cfg.SlippageToleranceBps = 75
	cfg.Active = true

	pol, err := cfg.GuardPolicy()
	require.NoError(t, err)
	assert.Zero(t, pol.MinProfit.Cmp(big.NewInt(250000)))
	assert.Equal(t, uint32(75), pol.SlippageBps)
	assert.Zero(t, pol.MaxGasPrice.Cmp(big.NewInt(500_000_000_000)))
	assert.True(t, pol.Active)
	assert.True(t, pol.AllowUnquotedSwaps)
}

func TestFeeds(t *testing.T) {
	cfg := validConfig()
	cfg.PriceFeeds = map[string]string{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	}

	feeds := cfg.Feeds()
	require.Len(t, feeds, 1)
	feed, ok := feeds[common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")]
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), feed)
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"chain_id": 1,
		"rpc_endpoint": "http://localhost:8545",
		"owner": "0x00000000000000000000000000000000000000A1",
		"account": "0x00000000000000000000000000000000000000E1",
		"lender_pool": "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		"quoter": "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
		"swap_router": "0xE592427A0AEce92De3Edee1F18E0157C05861564",
		"path_router": "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		"wrapped_native": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"min_profit_threshold": "1000000",
		"slippage_tolerance_bps": 50,
		"max_gas_price": "500000000000",
		"active": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.True(t, cfg.Active)
	assert.Equal(t, "1000000", cfg.MinProfitThreshold)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `chain_id: 1
rpc_endpoint: http://localhost:8545
owner: "0x00000000000000000000000000000000000000A1"
account: "0x00000000000000000000000000000000000000E1"
lender_pool: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
quoter: "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"
swap_router: "0xE592427A0AEce92De3Edee1F18E0157C05861564"
path_router: "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"
wrapped_native: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
min_profit_threshold: "1000000"
slippage_tolerance_bps: 25
max_gas_price: "500000000000"
active: false
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(25), cfg.SlippageToleranceBps)
	assert.False(t, cfg.Active)
}

func TestLoadConfigInvalidContentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chain_id": 1}`), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "validation failed")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	v, err = parseAmount("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())

	_, err = parseAmount("0x10")
	require.Error(t, err)
}
