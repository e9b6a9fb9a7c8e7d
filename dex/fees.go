package dex

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeeTier is the 0.30% tier used when no preference is configured.
const DefaultFeeTier uint32 = 3000

// FeePreferences maps token pairs to a preferred fee tier on the fee-tiered
// venue. Pairs are keyed order-independently.
type FeePreferences struct {
	mu    sync.RWMutex
	tiers map[[2]common.Address]uint32
}

func NewFeePreferences() *FeePreferences {
	return &FeePreferences{tiers: make(map[[2]common.Address]uint32)}
}

// Set records the preferred tier for a pair.
func (f *FeePreferences) Set(tokenA, tokenB common.Address, tier uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers[pairKey(tokenA, tokenB)] = tier
}

// Lookup resolves the fee tier for a swap: the request hint wins, then the
// configured preference, then the default tier.
func (f *FeePreferences) Lookup(tokenA, tokenB common.Address, hint uint32) uint32 {
	if hint != 0 {
		return hint
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if tier, ok := f.tiers[pairKey(tokenA, tokenB)]; ok {
		return tier
	}
	return DefaultFeeTier
}

func pairKey(a, b common.Address) [2]common.Address {
	if a.Hex() > b.Hex() {
		a, b = b, a
	}
	return [2]common.Address{a, b}
}
