package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Gas accounting constants for one arbitrage attempt.
const (
	// baseCost is the flat transaction cost.
	baseCost = uint64(21000)

	// costPerHop covers one DEX hop: storage reads, token transfers and the
	// swap execution itself.
	costPerHop = uint64(152000)

	// settlementBuffer is the fixed reserve for the work remaining after the
	// swap legs: solvency check, repayment and profit transfers.
	settlementBuffer = uint64(120000)
)

// PriceSource supplies the prevailing gas price. *ethclient.Client satisfies
// it.
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator tracks the prevailing gas price and prices attempt costs. The
// price is cached briefly so the guard check and the settlement cost estimate
// within one attempt see the same number.
type Estimator struct {
	source   PriceSource
	logger   *zap.Logger
	mu       sync.Mutex
	cached   *big.Int
	cachedAt time.Time
	ttl      time.Duration
}

// NewEstimator creates a gas estimator over the given price source.
func NewEstimator(source PriceSource, logger *zap.Logger) *Estimator {
	return &Estimator{
		source: source,
		logger: logger,
		ttl:    time.Second,
	}
}

// GasPrice returns the prevailing gas price.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cached != nil && time.Since(e.cachedAt) < e.ttl {
		return new(big.Int).Set(e.cached), nil
	}

	price, err := e.source.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	e.cached = new(big.Int).Set(price)
	e.cachedAt = time.Now()
	return price, nil
}

// AttemptCost estimates the execution cost of an attempt with the given
// number of swap hops, in native units: resources consumed by the hops plus
// the fixed settlement buffer, priced at the prevailing gas price.
func (e *Estimator) AttemptCost(ctx context.Context, hops int) (*big.Int, error) {
	price, err := e.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	units := baseCost + costPerHop*uint64(hops) + settlementBuffer
	return new(big.Int).Mul(price, new(big.Int).SetUint64(units)), nil
}

// AttemptGas returns the gas units budgeted for an attempt with the given
// number of hops.
func AttemptGas(hops int) uint64 {
	return baseCost + costPerHop*uint64(hops) + settlementBuffer
}
