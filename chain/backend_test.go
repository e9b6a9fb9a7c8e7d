package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

var (
	fromAddr   = common.HexToAddress("0x0000000000000000000000000000000000000501")
	targetAddr = common.HexToAddress("0x0000000000000000000000000000000000000502")
)

type stubCaller struct {
	lastMsg ethereum.CallMsg
	out     []byte
	err     error
}

func (c *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.lastMsg = msg
	return c.out, c.err
}

func TestNewRPCBackendValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	send := func(context.Context, common.Address, []byte) ([]byte, error) { return nil, nil }

	_, err := NewRPCBackend(nil, send, fromAddr, nil, logger)
	require.Error(t, err)

	_, err = NewRPCBackend(&stubCaller{}, nil, fromAddr, nil, logger)
	require.Error(t, err)
}

func TestCallSetsSender(t *testing.T) {
	caller := &stubCaller{out: []byte{0xbe, 0xef}}
	b, err := NewRPCBackend(caller,
		func(context.Context, common.Address, []byte) ([]byte, error) { return nil, nil },
		fromAddr, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := b.Call(context.Background(), targetAddr, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, out)
	assert.Equal(t, fromAddr, caller.lastMsg.From)
	assert.Equal(t, targetAddr, *caller.lastMsg.To)
	assert.Equal(t, []byte{0x01}, caller.lastMsg.Data)
}

func TestSendDelegates(t *testing.T) {
	var sentTo common.Address
	b, err := NewRPCBackend(&stubCaller{},
		func(_ context.Context, to common.Address, data []byte) ([]byte, error) {
			sentTo = to
			return []byte{0x0a}, nil
		},
		fromAddr, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := b.Send(context.Background(), targetAddr, []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a}, out)
	assert.Equal(t, targetAddr, sentTo)
}

func TestSendFailureSurfaces(t *testing.T) {
	sendErr := errors.New("underpriced")
	b, err := NewRPCBackend(&stubCaller{},
		func(context.Context, common.Address, []byte) ([]byte, error) { return nil, sendErr },
		fromAddr, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = b.Send(context.Background(), targetAddr, nil)
	require.ErrorIs(t, err, sendErr)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	// A zero-rate limiter never admits the call; cancellation must unblock it.
	b, err := NewRPCBackend(&stubCaller{},
		func(context.Context, common.Address, []byte) ([]byte, error) { return nil, nil },
		fromAddr, rate.NewLimiter(0, 0), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Call(ctx, targetAddr, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limiter")
}
