package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Backend abstracts the chain endpoint the engine trades through. Call is a
// read-only contract call; Send performs a state-changing call from the
// engine's account and returns the call's return data. Key handling stays
// outside this package: the host supplies the SendFunc.
type Backend interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// ContractCaller is the read side of an RPC client. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SendFunc executes a state-changing contract call from the engine's account.
type SendFunc func(ctx context.Context, to common.Address, data []byte) ([]byte, error)

// RPCBackend is the production Backend: reads go through an RPC client,
// writes through the injected sender. All traffic shares one rate limiter so
// a burst of quotes cannot starve the endpoint.
type RPCBackend struct {
	caller  ContractCaller
	send    SendFunc
	from    common.Address
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRPCBackend creates a rate-limited backend. limiter may be nil to
// disable throttling.
func NewRPCBackend(caller ContractCaller, send SendFunc, from common.Address, limiter *rate.Limiter, logger *zap.Logger) (*RPCBackend, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if send == nil {
		return nil, fmt.Errorf("send func cannot be nil")
	}
	return &RPCBackend{
		caller:  caller,
		send:    send,
		from:    from,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (b *RPCBackend) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	out, err := b.caller.CallContract(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call to %s failed: %w", to.Hex(), err)
	}
	return out, nil
}

func (b *RPCBackend) Send(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	out, err := b.send(ctx, to, data)
	if err != nil {
		b.logger.Warn("state-changing call failed",
			zap.String("to", to.Hex()),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (b *RPCBackend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
