package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/types"
)

const aggregatorABIJson = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[
		{"internalType":"uint8","name":"","type":"uint8"}
	],"stateMutability":"view","type":"function"}
]`

// Price is one observation from a reference feed.
type Price struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Oracle reads Chainlink-style aggregator feeds and converts amounts between
// token reference values. Feeds are optional per token; paths that need a
// missing feed are skipped by the caller.
type Oracle struct {
	mu       sync.RWMutex
	backend  chain.Backend
	feeds    map[common.Address]common.Address
	decimals *lru.Cache // feed address -> uint8, immutable per feed
	aggABI   abi.ABI
	logger   *zap.Logger
}

// New creates an oracle over the given token -> feed registry.
func New(backend chain.Backend, feeds map[common.Address]common.Address, logger *zap.Logger) (*Oracle, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	cache, err := lru.New(128)
	if err != nil {
		return nil, fmt.Errorf("failed to create decimals cache: %w", err)
	}

	reg := make(map[common.Address]common.Address, len(feeds))
	for token, feed := range feeds {
		reg[token] = feed
	}

	return &Oracle{
		backend:  backend,
		feeds:    reg,
		decimals: cache,
		aggABI:   parsed,
		logger:   logger,
	}, nil
}

// SetFeed registers or replaces the feed for a token.
func (o *Oracle) SetFeed(token, feed common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds[token] = feed
}

// HasFeed reports whether a feed is registered for the token.
func (o *Oracle) HasFeed(token common.Address) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.feeds[token]
	return ok
}

// PriceOf returns the latest reference price for the token. Non-positive
// answers are rejected.
func (o *Oracle) PriceOf(ctx context.Context, token common.Address) (*Price, error) {
	o.mu.RLock()
	feed, ok := o.feeds[token]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no price feed registered for %s", token.Hex())
	}

	data, err := o.aggABI.Pack("latestRoundData")
	if err != nil {
		return nil, fmt.Errorf("failed to pack latestRoundData: %w", err)
	}
	out, err := o.backend.Call(ctx, feed, data)
	if err != nil {
		return nil, fmt.Errorf("latestRoundData call failed: %w", err)
	}
	values, err := o.aggABI.Unpack("latestRoundData", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack latestRoundData: %w", err)
	}

	answer, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("malformed feed answer")
	}
	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: feed %s answered %s", types.ErrAbnormalPrice, feed.Hex(), answer)
	}
	updatedAt, ok := values[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("malformed feed timestamp")
	}

	dec, err := o.feedDecimals(ctx, feed)
	if err != nil {
		return nil, err
	}

	return &Price{
		Value:     answer,
		Decimals:  dec,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0),
	}, nil
}

// Convert translates an amount of `from` into `to` terms by normalizing both
// feed prices to a common 1e18 fixed-point basis before dividing.
func (o *Oracle) Convert(ctx context.Context, amount *big.Int, from, to common.Address) (*big.Int, error) {
	if from == to {
		return new(big.Int).Set(amount), nil
	}

	fromPrice, err := o.PriceOf(ctx, from)
	if err != nil {
		return nil, err
	}
	toPrice, err := o.PriceOf(ctx, to)
	if err != nil {
		return nil, err
	}

	fromNorm := normalize(fromPrice.Value, fromPrice.Decimals)
	toNorm := normalize(toPrice.Value, toPrice.Decimals)
	if toNorm.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero normalized price for %s", types.ErrAbnormalPrice, to.Hex())
	}

	// amount * fromNorm / toNorm
	out := new(big.Int).Mul(amount, fromNorm)
	return out.Div(out, toNorm), nil
}

func (o *Oracle) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	if cached, ok := o.decimals.Get(feed); ok {
		return cached.(uint8), nil
	}

	data, err := o.aggABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals: %w", err)
	}
	out, err := o.backend.Call(ctx, feed, data)
	if err != nil {
		return 0, fmt.Errorf("decimals call failed: %w", err)
	}
	values, err := o.aggABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack decimals: %w", err)
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("malformed decimals response")
	}

	o.decimals.Add(feed, dec)
	return dec, nil
}

// normalize scales a feed price to the 1e18 basis.
func normalize(price *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(price)
	}
	if decimals < 18 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Mul(price, scale)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Div(price, scale)
}
