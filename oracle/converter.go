package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CostConverter translates a gas cost denominated in the chain's native unit
// into the borrowed token's terms. Pluggable so the settlement engine is not
// tied to one conversion scheme.
type CostConverter interface {
	ToToken(ctx context.Context, token common.Address, nativeCost *big.Int) (*big.Int, error)
}

// FeedConverter routes cost conversion through the price oracle: native cost
// is treated as wrapped-native-token denominated and converted via the feeds.
type FeedConverter struct {
	Oracle        *Oracle
	WrappedNative common.Address
}

func (c *FeedConverter) ToToken(ctx context.Context, token common.Address, nativeCost *big.Int) (*big.Int, error) {
	if token == c.WrappedNative {
		return new(big.Int).Set(nativeCost), nil
	}
	return c.Oracle.Convert(ctx, nativeCost, c.WrappedNative, token)
}

// FixedRateConverter applies 1:1 for one designated token and a fixed
// multiplier otherwise. Kept as a fallback for deployments with no usable
// feeds; the feed-routed converter is the default.
type FixedRateConverter struct {
	OneToOneToken common.Address
	Multiplier    *big.Int
}

func (c *FixedRateConverter) ToToken(_ context.Context, token common.Address, nativeCost *big.Int) (*big.Int, error) {
	if token == c.OneToOneToken {
		return new(big.Int).Set(nativeCost), nil
	}
	return new(big.Int).Mul(nativeCost, c.Multiplier), nil
}
