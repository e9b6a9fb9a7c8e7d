package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
)

// Pool address
var MainnetPool = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")

const poolABIJson = `[
	{"inputs":[
		{"internalType":"address","name":"receiverAddress","type":"address"},
		{"internalType":"address","name":"asset","type":"address"},
		{"internalType":"uint256","name":"amount","type":"uint256"},
		{"internalType":"bytes","name":"params","type":"bytes"},
		{"internalType":"uint16","name":"referralCode","type":"uint16"}
	],"name":"flashLoanSimple","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"FLASHLOAN_PREMIUM_TOTAL","outputs":[
		{"internalType":"uint128","name":"","type":"uint128"}
	],"stateMutability":"view","type":"function"}
]`

// Lender is the on-chain Aave V3 binding of the lending facility. The pool
// delivers funds to the receiver, invokes its loan callback inside the same
// transaction, and reverts the whole transaction unless principal plus
// premium is repaid.
//
// The engine's in-process loan path goes through flashloan.InventoryLender;
// this binding is the production boundary to the pool contract. Driving a
// loan through it requires an on-chain receiver, since the pool calls back
// into the receiver contract, not into this process. The CLI wiring uses it
// to read the pool's premium so the inventory lender charges the same fee.
type Lender struct {
	backend  chain.Backend
	pool     common.Address
	receiver common.Address
	logger   *zap.Logger
	poolABI  abi.ABI
	metrics  struct {
		loans   prometheus.Counter
		volume  prometheus.Counter
		errors  prometheus.Counter
		latency prometheus.Histogram
	}
}

// NewLender creates the Aave lending boundary. receiver is the on-chain
// account the pool calls back into.
func NewLender(backend chain.Backend, pool, receiver common.Address, logger *zap.Logger) (*Lender, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	parsed, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	l := &Lender{
		backend:  backend,
		pool:     pool,
		receiver: receiver,
		logger:   logger,
		poolABI:  parsed,
	}

	l.metrics.loans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_loans_total",
		Help: "Total number of Aave flash loans requested",
	})
	l.metrics.volume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_volume_wei",
		Help: "Total volume of Aave flash loans in wei",
	})
	l.metrics.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_errors_total",
		Help: "Total number of Aave flash loan failures",
	})
	l.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_aave_latency_seconds",
		Help:    "Latency of Aave flash loan requests",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	return l, nil
}

// BorrowAndCallback requests a simple flash loan. The loan callback runs
// on-chain inside the pool transaction; failure here means the primitive
// itself failed before the callback ever ran.
func (l *Lender) BorrowAndCallback(ctx context.Context, tokens []common.Address, amounts []*big.Int, payload []byte) error {
	start := time.Now()
	defer func() {
		l.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	if len(tokens) != 1 || len(amounts) != 1 {
		return fmt.Errorf("aave simple flash loan takes exactly one asset, got %d", len(tokens))
	}

	data, err := l.poolABI.Pack("flashLoanSimple",
		l.receiver,
		tokens[0],
		amounts[0],
		payload,
		uint16(0),
	)
	if err != nil {
		l.metrics.errors.Inc()
		return fmt.Errorf("failed to pack flashLoanSimple: %w", err)
	}

	if _, err := l.backend.Send(ctx, l.pool, data); err != nil {
		l.metrics.errors.Inc()
		return fmt.Errorf("flashLoanSimple failed: %w", err)
	}

	l.metrics.loans.Inc()
	l.metrics.volume.Add(float64(amounts[0].Uint64()))
	l.logger.Info("flash loan executed",
		zap.String("token", tokens[0].Hex()),
		zap.String("amount", amounts[0].String()))
	return nil
}

// PremiumBps reads the pool's flash loan premium in basis points.
func (l *Lender) PremiumBps(ctx context.Context) (*big.Int, error) {
	data, err := l.poolABI.Pack("FLASHLOAN_PREMIUM_TOTAL")
	if err != nil {
		return nil, fmt.Errorf("failed to pack premium call: %w", err)
	}
	out, err := l.backend.Call(ctx, l.pool, data)
	if err != nil {
		return nil, fmt.Errorf("premium call failed: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("malformed premium response: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// Address is where repayments are sent.
func (l *Lender) Address() common.Address { return l.pool }

func (l *Lender) String() string { return "AaveV3" }
