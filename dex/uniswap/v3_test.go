package uniswap

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/dex"
)

var (
	quoterAddr    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	routerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000102")
	recipientAddr = common.HexToAddress("0x0000000000000000000000000000000000000103")
	tokenIn       = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	tokenOut      = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
)

type recordedCall struct {
	to   common.Address
	data []byte
}

// fakeBackend answers reads and records writes.
type fakeBackend struct {
	callFn func(to common.Address, data []byte) ([]byte, error)
	sendFn func(to common.Address, data []byte) ([]byte, error)
	sends  []recordedCall
}

func (b *fakeBackend) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	return b.callFn(to, data)
}

func (b *fakeBackend) Send(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	b.sends = append(b.sends, recordedCall{to: to, data: data})
	return b.sendFn(to, data)
}

func uint256Bytes(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func newVenue(t *testing.T, backend *fakeBackend) *UniswapV3 {
	t.Helper()
	v, err := NewUniswapV3(backend, quoterAddr, routerAddr, recipientAddr, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return v
}

func TestQuotePacksResolvedFeeTier(t *testing.T) {
	var captured []byte
	backend := &fakeBackend{
		callFn: func(to common.Address, data []byte) ([]byte, error) {
			assert.Equal(t, quoterAddr, to)
			captured = data
			return uint256Bytes(big.NewInt(777)), nil
		},
	}

	fees := dex.NewFeePreferences()
	fees.Set(tokenIn, tokenOut, 500)
	v, err := NewUniswapV3(backend, quoterAddr, routerAddr, recipientAddr, fees, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := v.Quote(context.Background(), tokenIn, tokenOut, big.NewInt(1000), 0)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(777)))

	method := v.quoterABI.Methods["quoteExactInputSingle"]
	require.Equal(t, method.ID, captured[:4])

	values, err := method.Inputs.Unpack(captured[4:])
	require.NoError(t, err)
	assert.Equal(t, tokenIn, values[0])
	assert.Equal(t, tokenOut, values[1])
	assert.Zero(t, values[2].(*big.Int).Cmp(big.NewInt(500)), "configured preference should win over the default tier")
	assert.Zero(t, values[3].(*big.Int).Cmp(big.NewInt(1000)))
}

func TestQuoteHintOverridesPreference(t *testing.T) {
	var captured []byte
	backend := &fakeBackend{
		callFn: func(_ common.Address, data []byte) ([]byte, error) {
			captured = data
			return uint256Bytes(big.NewInt(1)), nil
		},
	}

	fees := dex.NewFeePreferences()
	fees.Set(tokenIn, tokenOut, 500)
	v, err := NewUniswapV3(backend, quoterAddr, routerAddr, recipientAddr, fees, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = v.Quote(context.Background(), tokenIn, tokenOut, big.NewInt(1), 10000)
	require.NoError(t, err)

	values, err := v.quoterABI.Methods["quoteExactInputSingle"].Inputs.Unpack(captured[4:])
	require.NoError(t, err)
	assert.Zero(t, values[2].(*big.Int).Cmp(big.NewInt(10000)))
}

func TestSwapExactInScopesAllowance(t *testing.T) {
	amountIn := big.NewInt(5000)
	amountOut := big.NewInt(4990)

	backend := &fakeBackend{
		sendFn: func(to common.Address, _ []byte) ([]byte, error) {
			if to == routerAddr {
				return uint256Bytes(amountOut), nil
			}
			return nil, nil
		},
	}
	v := newVenue(t, backend)

	deadline := time.Now().Add(5 * time.Minute)
	out, err := v.SwapExactIn(context.Background(), tokenIn, tokenOut, amountIn, big.NewInt(4900), 3000, deadline)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(amountOut))

	// approve(amountIn), the swap, then approve(0), in that order.
	require.Len(t, backend.sends, 3)
	assert.Equal(t, tokenIn, backend.sends[0].to)
	assert.Equal(t, routerAddr, backend.sends[1].to)
	assert.Equal(t, tokenIn, backend.sends[2].to)

	grant := new(big.Int).SetBytes(backend.sends[0].data[36:68])
	revoke := new(big.Int).SetBytes(backend.sends[2].data[36:68])
	assert.Zero(t, grant.Cmp(amountIn))
	assert.Zero(t, revoke.Sign())
}

func TestSwapExactInPacksRouterParams(t *testing.T) {
	backend := &fakeBackend{
		sendFn: func(to common.Address, _ []byte) ([]byte, error) {
			if to == routerAddr {
				return uint256Bytes(big.NewInt(1)), nil
			}
			return nil, nil
		},
	}
	v := newVenue(t, backend)

	deadline := time.Now().Add(time.Minute)
	minOut := big.NewInt(42)
	_, err := v.SwapExactIn(context.Background(), tokenIn, tokenOut, big.NewInt(100), minOut, 0, deadline)
	require.NoError(t, err)

	swap := backend.sends[1]
	method := v.routerABI.Methods["exactInputSingle"]
	require.Equal(t, method.ID, swap.data[:4])

	values, err := method.Inputs.Unpack(swap.data[4:])
	require.NoError(t, err)

	params, ok := values[0].(struct {
		TokenIn           common.Address `json:"tokenIn"`
		TokenOut          common.Address `json:"tokenOut"`
		Fee               *big.Int       `json:"fee"`
		Recipient         common.Address `json:"recipient"`
		Deadline          *big.Int       `json:"deadline"`
		AmountIn          *big.Int       `json:"amountIn"`
		AmountOutMinimum  *big.Int       `json:"amountOutMinimum"`
		SqrtPriceLimitX96 *big.Int       `json:"sqrtPriceLimitX96"`
	})
	require.True(t, ok, "unexpected tuple shape %T", values[0])

	assert.Equal(t, tokenIn, params.TokenIn)
	assert.Equal(t, tokenOut, params.TokenOut)
	assert.Zero(t, params.Fee.Cmp(big.NewInt(int64(dex.DefaultFeeTier))), "unset hint should resolve to the default tier")
	assert.Equal(t, recipientAddr, params.Recipient)
	assert.Equal(t, deadline.Unix(), params.Deadline.Int64())
	assert.Zero(t, params.AmountOutMinimum.Cmp(minOut))
}
