package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/token"
)

// Contract addresses
var (
	MainnetQuoter = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	MainnetRouter = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
)

const quoterABIJson = `[
	{"inputs":[
		{"internalType":"address","name":"tokenIn","type":"address"},
		{"internalType":"address","name":"tokenOut","type":"address"},
		{"internalType":"uint24","name":"fee","type":"uint24"},
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
	],"name":"quoteExactInputSingle","outputs":[
		{"internalType":"uint256","name":"amountOut","type":"uint256"}
	],"stateMutability":"nonpayable","type":"function"}
]`

const routerABIJson = `[
	{"inputs":[{"components":[
		{"internalType":"address","name":"tokenIn","type":"address"},
		{"internalType":"address","name":"tokenOut","type":"address"},
		{"internalType":"uint24","name":"fee","type":"uint24"},
		{"internalType":"address","name":"recipient","type":"address"},
		{"internalType":"uint256","name":"deadline","type":"uint256"},
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},
		{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
	],"internalType":"struct ISwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],
	"name":"exactInputSingle","outputs":[
		{"internalType":"uint256","name":"amountOut","type":"uint256"}
	],"stateMutability":"payable","type":"function"}
]`

// exactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams for ABI
// packing.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// UniswapV3 implements the fee-tiered Venue over the Uniswap V3 quoter and
// swap router.
type UniswapV3 struct {
	backend   chain.Backend
	quoter    common.Address
	router    common.Address
	recipient common.Address
	fees      *dex.FeePreferences
	quoterABI abi.ABI
	routerABI abi.ABI
	logger    *zap.Logger
}

// NewUniswapV3 creates the fee-tiered venue adapter. recipient is the engine
// account that receives swap output.
func NewUniswapV3(backend chain.Backend, quoter, router, recipient common.Address, fees *dex.FeePreferences, logger *zap.Logger) (*UniswapV3, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if fees == nil {
		fees = dex.NewFeePreferences()
	}

	quoterParsed, err := abi.JSON(strings.NewReader(quoterABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	routerParsed, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &UniswapV3{
		backend:   backend,
		quoter:    quoter,
		router:    router,
		recipient: recipient,
		fees:      fees,
		quoterABI: quoterParsed,
		routerABI: routerParsed,
		logger:    logger,
	}, nil
}

// Name returns the venue name.
func (u *UniswapV3) Name() string { return "UniswapV3" }

// Quote queries the quoter contract for the expected output of a single-pool
// swap at the resolved fee tier.
func (u *UniswapV3) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeHint uint32) (*big.Int, error) {
	fee := u.fees.Lookup(tokenIn, tokenOut, feeHint)

	data, err := u.quoterABI.Pack("quoteExactInputSingle",
		tokenIn,
		tokenOut,
		big.NewInt(int64(fee)),
		amountIn,
		big.NewInt(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote: %w", err)
	}

	out, err := u.backend.Call(ctx, u.quoter, data)
	if err != nil {
		return nil, fmt.Errorf("quoter call failed: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("malformed quoter response: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// SwapExactIn executes a single-pool swap. The router allowance is sized
// exactly to amountIn immediately before the call and revoked to zero after,
// on every path.
func (u *UniswapV3) SwapExactIn(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int, feeHint uint32, deadline time.Time) (*big.Int, error) {
	fee := u.fees.Lookup(tokenIn, tokenOut, feeHint)

	data, err := u.routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(fee)),
		Recipient:         u.recipient,
		Deadline:          big.NewInt(deadline.Unix()),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInputSingle: %w", err)
	}

	if err := token.Approve(ctx, u.backend, tokenIn, u.router, amountIn); err != nil {
		return nil, err
	}
	defer func() {
		if err := token.Approve(ctx, u.backend, tokenIn, u.router, big.NewInt(0)); err != nil {
			u.logger.Error("failed to revoke router allowance",
				zap.String("token", tokenIn.Hex()),
				zap.Error(err))
		}
	}()

	out, err := u.backend.Send(ctx, u.router, data)
	if err != nil {
		return nil, fmt.Errorf("exactInputSingle failed: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("malformed swap response: %d bytes", len(out))
	}

	amountOut := new(big.Int).SetBytes(out[:32])
	u.logger.Debug("swap executed",
		zap.String("venue", u.Name()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()),
		zap.Uint32("fee_tier", fee))
	return amountOut, nil
}
