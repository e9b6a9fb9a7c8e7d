package sushiswap

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
	"github.com/michaelpento.lv/flasharb/token"
)

// Router address
var MainnetRouter = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")

const routerABIJson = `[
	{"inputs":[
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"address[]","name":"path","type":"address[]"}
	],"name":"getAmountsOut","outputs":[
		{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"uint256","name":"amountOutMin","type":"uint256"},
		{"internalType":"address[]","name":"path","type":"address[]"},
		{"internalType":"address","name":"to","type":"address"},
		{"internalType":"uint256","name":"deadline","type":"uint256"}
	],"name":"swapExactTokensForTokens","outputs":[
		{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}
	],"stateMutability":"nonpayable","type":"function"}
]`

// SushiswapV2 implements the path-based Venue over the Sushiswap V2 router.
// Swaps route through an explicit two-hop token path; the 0.30% pool fee is
// implicit in the protocol.
type SushiswapV2 struct {
	backend   chain.Backend
	router    common.Address
	recipient common.Address
	routerABI abi.ABI
	logger    *zap.Logger
}

// NewSushiswapV2 creates the path-based venue adapter.
func NewSushiswapV2(backend chain.Backend, router, recipient common.Address, logger *zap.Logger) (*SushiswapV2, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	parsed, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &SushiswapV2{
		backend:   backend,
		router:    router,
		recipient: recipient,
		routerABI: parsed,
		logger:    logger,
	}, nil
}

// Name returns the venue name.
func (s *SushiswapV2) Name() string { return "SushiswapV2" }

// Quote queries getAmountsOut for the direct pair path. The fee hint is
// ignored: V2 pools carry a fixed fee.
func (s *SushiswapV2) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, _ uint32) (*big.Int, error) {
	data, err := s.routerABI.Pack("getAmountsOut", amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	out, err := s.backend.Call(ctx, s.router, data)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}

	amounts, err := s.unpackAmounts("getAmountsOut", out)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// SwapExactIn executes a two-hop path swap. The realized output is the last
// element of the returned amounts array. Router allowance is scoped exactly
// to amountIn and revoked after the call.
func (s *SushiswapV2) SwapExactIn(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int, _ uint32, deadline time.Time) (*big.Int, error) {
	data, err := s.routerABI.Pack("swapExactTokensForTokens",
		amountIn,
		minOut,
		[]common.Address{tokenIn, tokenOut},
		s.recipient,
		big.NewInt(deadline.Unix()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactTokensForTokens: %w", err)
	}

	if err := token.Approve(ctx, s.backend, tokenIn, s.router, amountIn); err != nil {
		return nil, err
	}
	defer func() {
		if err := token.Approve(ctx, s.backend, tokenIn, s.router, big.NewInt(0)); err != nil {
			s.logger.Error("failed to revoke router allowance",
				zap.String("token", tokenIn.Hex()),
				zap.Error(err))
		}
	}()

	out, err := s.backend.Send(ctx, s.router, data)
	if err != nil {
		return nil, fmt.Errorf("swapExactTokensForTokens failed: %w", err)
	}

	amounts, err := s.unpackAmounts("swapExactTokensForTokens", out)
	if err != nil {
		return nil, err
	}

	amountOut := amounts[len(amounts)-1]
	s.logger.Debug("swap executed",
		zap.String("venue", s.Name()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()))
	return amountOut, nil
}

func (s *SushiswapV2) unpackAmounts(method string, out []byte) ([]*big.Int, error) {
	values, err := s.routerABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("malformed %s response", method)
	}
	return amounts, nil
}
