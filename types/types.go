package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Direction selects which venue executes the first swap leg.
type Direction uint8

const (
	// FeeTieredFirst routes leg 1 through the fee-tiered venue and leg 2
	// through the path-based venue.
	FeeTieredFirst Direction = iota
	// PathBasedFirst routes leg 1 through the path-based venue and leg 2
	// through the fee-tiered venue.
	PathBasedFirst
)

func (d Direction) String() string {
	switch d {
	case FeeTieredFirst:
		return "fee_tiered_first"
	case PathBasedFirst:
		return "path_based_first"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Request is a caller-supplied arbitrage candidate. It is immutable once
// submitted; the engine never mutates it.
type Request struct {
	TokenBorrow common.Address
	TokenTarget common.Address
	Amount      *big.Int
	PoolFeeHint uint32 // preferred fee tier for the fee-tiered venue, 0 = unset
	Direction   Direction
}

// Validate checks the request invariants that hold before any external call.
func (r *Request) Validate() error {
	if r.TokenBorrow == (common.Address{}) || r.TokenTarget == (common.Address{}) {
		return ErrInvalidTokenPair
	}
	if r.TokenBorrow == r.TokenTarget {
		return ErrInvalidTokenPair
	}
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Result summarizes a settled arbitrage attempt.
type Result struct {
	Request     Request
	GrossProfit *big.Int
	NetProfit   *big.Int
	CostUsed    *big.Int
	Repaid      *big.Int
}
