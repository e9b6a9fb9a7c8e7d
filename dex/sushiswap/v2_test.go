package sushiswap

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	routerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000201")
	recipientAddr = common.HexToAddress("0x0000000000000000000000000000000000000202")
	tokenIn       = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	tokenOut      = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
)

type recordedCall struct {
	to   common.Address
	data []byte
}

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

func newVenue(t *testing.T, backend *fakeBackend) *SushiswapV2 {
	t.Helper()
	v, err := NewSushiswapV2(backend, routerAddr, recipientAddr, zaptest.NewLogger(t))
	require.NoError(t, err)
	return v
}

func packAmounts(t *testing.T, v *SushiswapV2, method string, amounts []*big.Int) []byte {
	t.Helper()
	out, err := v.routerABI.Methods[method].Outputs.Pack(amounts)
	require.NoError(t, err)
	return out
}

func TestQuoteReturnsLastPathAmount(t *testing.T) {
	backend := &fakeBackend{}
	v := newVenue(t, backend)
	backend.callFn = func(to common.Address, data []byte) ([]byte, error) {
		assert.Equal(t, routerAddr, to)
		assert.Equal(t, v.routerABI.Methods["getAmountsOut"].ID, data[:4])
		return packAmounts(t, v, "getAmountsOut", []*big.Int{big.NewInt(1000), big.NewInt(997)}), nil
	}

	out, err := v.Quote(context.Background(), tokenIn, tokenOut, big.NewInt(1000), 0)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(997)))
}

func TestSwapExactInReturnsRealizedOutput(t *testing.T) {
	backend := &fakeBackend{}
	v := newVenue(t, backend)
	backend.sendFn = func(to common.Address, _ []byte) ([]byte, error) {
		if to == routerAddr {
			return packAmounts(t, v, "swapExactTokensForTokens", []*big.Int{big.NewInt(1000), big.NewInt(995)}), nil
		}
		return nil, nil
	}

	deadline := time.Now().Add(5 * time.Minute)
	out, err := v.SwapExactIn(context.Background(), tokenIn, tokenOut, big.NewInt(1000), big.NewInt(990), 0, deadline)
	require.NoError(t, err)
	assert.Zero(t, out.Cmp(big.NewInt(995)))

	// approve(amountIn), the swap, approve(0).
	require.Len(t, backend.sends, 3)
	assert.Equal(t, tokenIn, backend.sends[0].to)
	assert.Equal(t, routerAddr, backend.sends[1].to)
	assert.Equal(t, tokenIn, backend.sends[2].to)
	assert.Zero(t, new(big.Int).SetBytes(backend.sends[2].data[36:68]).Sign())
}

func TestSwapExactInPacksDirectPath(t *testing.T) {
	backend := &fakeBackend{}
	v := newVenue(t, backend)
	backend.sendFn = func(to common.Address, _ []byte) ([]byte, error) {
		if to == routerAddr {
			return packAmounts(t, v, "swapExactTokensForTokens", []*big.Int{big.NewInt(1), big.NewInt(1)}), nil
		}
		return nil, nil
	}

	deadline := time.Now().Add(time.Minute)
	_, err := v.SwapExactIn(context.Background(), tokenIn, tokenOut, big.NewInt(100), big.NewInt(99), 0, deadline)
	require.NoError(t, err)

	swap := backend.sends[1]
	method := v.routerABI.Methods["swapExactTokensForTokens"]
	require.Equal(t, method.ID, swap.data[:4])

	values, err := method.Inputs.Unpack(swap.data[4:])
	require.NoError(t, err)

	assert.Zero(t, values[0].(*big.Int).Cmp(big.NewInt(100)))
	assert.Zero(t, values[1].(*big.Int).Cmp(big.NewInt(99)))
	assert.Equal(t, []common.Address{tokenIn, tokenOut}, values[2])
	assert.Equal(t, recipientAddr, values[3])
	assert.Equal(t, deadline.Unix(), values[4].(*big.Int).Int64())
}

func TestQuoteRejectsMalformedResponse(t *testing.T) {
	backend := &fakeBackend{
		callFn: func(common.Address, []byte) ([]byte, error) {
			return []byte{0x01, 0x02}, nil
		},
	}
	v := newVenue(t, backend)

	_, err := v.Quote(context.Background(), tokenIn, tokenOut, big.NewInt(1), 0)
	require.Error(t, err)
}
