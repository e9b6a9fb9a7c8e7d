package dex

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// SwapDeadline bounds every swap to limit exposure to stale routing state.
const SwapDeadline = 300 * time.Second

// Venue is the uniform capability over a swap protocol. The fee-tiered
// implementation routes through an explicit fee tier; the path-based one
// routes through a two-hop token path with an implicit fixed fee.
type Venue interface {
	// Name returns the venue name.
	Name() string

	// Quote asks the venue's own quoting facility for the expected output.
	// Non-committing; may be stale or fail.
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeHint uint32) (*big.Int, error)

	// SwapExactIn executes a swap and returns the realized output. The venue
	// reverts if the output is below minOut or the deadline has passed.
	SwapExactIn(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int, feeHint uint32, deadline time.Time) (*big.Int, error)
}

// MinOutput derives the minimum acceptable output for a swap: the venue's
// quote derated by the slippage tolerance. When the quote fails or is
// unusable and allowUnquoted is set, it returns 1 wei: a deliberately
// permissive escape valve that disables the slippage net for this leg.
func MinOutput(ctx context.Context, v Venue, tokenIn, tokenOut common.Address, amountIn *big.Int, feeHint uint32, slippageBps uint32, allowUnquoted bool, logger *zap.Logger) (*big.Int, error) {
	quote, err := v.Quote(ctx, tokenIn, tokenOut, amountIn, feeHint)
	if err != nil || quote == nil || quote.Sign() <= 0 {
		if !allowUnquoted {
			if err != nil {
				return nil, err
			}
			return nil, types.ErrQuoteUnavailable
		}
		logger.Warn("quote unavailable, accepting any non-zero output",
			zap.String("venue", v.Name()),
			zap.String("token_in", tokenIn.Hex()),
			zap.String("token_out", tokenOut.Hex()),
			zap.Error(err))
		return big.NewInt(1), nil
	}

	// minOut = quote * (10000 - bps) / 10000
	minOut := new(big.Int).Mul(quote, big.NewInt(int64(10000-slippageBps)))
	minOut.Div(minOut, big.NewInt(10000))
	if minOut.Sign() <= 0 {
		minOut = big.NewInt(1)
	}
	return minOut, nil
}
