package guard

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// MaxSlippageBps is the hard upper bound on the slippage tolerance.
const MaxSlippageBps uint32 = 1000

// Policy is the mutable guardrail state read by every attempt.
type Policy struct {
	MinProfit          *big.Int
	SlippageBps        uint32
	MaxGasPrice        *big.Int
	Active             bool
	AllowUnquotedSwaps bool
}

// Controller holds the guardrail policy and enforces it at attempt entry.
// Mutations are owner-only (the engine checks its AccessPolicy before calling
// the setters) and each one emits a ConfigUpdated audit event.
type Controller struct {
	mu      sync.RWMutex
	pol     Policy
	sink    types.Sink
	logger  *zap.Logger
	metrics struct {
		configUpdates prometheus.CounterVec
		active        prometheus.Gauge
	}
}

// NewController creates a controller with the given initial policy.
func NewController(initial Policy, sink types.Sink, logger *zap.Logger) *Controller {
	c := &Controller{
		pol:    clonePolicy(initial),
		sink:   sink,
		logger: logger,
	}

	c.metrics.configUpdates = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_guard_config_updates_total",
		Help: "Number of guardrail parameter updates",
	}, []string{"parameter"})

	c.metrics.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_guard_active",
		Help: "Whether the engine circuit breaker is active (1) or tripped (0)",
	})
	c.metrics.active.Set(boolToGauge(initial.Active))

	return c
}

// Snapshot returns a copy of the current policy. Attempts read through this
// so a concurrent setter cannot change numbers mid-attempt.
func (c *Controller) Snapshot() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePolicy(c.pol)
}

// CheckActive enforces just the circuit breaker. It runs before the gas
// price read so a paused engine rejects without touching the endpoint.
func (c *Controller) CheckActive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.pol.Active {
		return types.ErrPaused
	}
	return nil
}

// CheckEntry enforces the circuit breaker and the gas ceiling. Both checks
// are side-effect free and run before any external call.
func (c *Controller) CheckEntry(gasPrice *big.Int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.pol.Active {
		return types.ErrPaused
	}
	if c.pol.MaxGasPrice != nil && gasPrice != nil && gasPrice.Cmp(c.pol.MaxGasPrice) > 0 {
		return types.ErrAbnormalGasPrice
	}
	return nil
}

// SetMinProfitThreshold replaces the minimum net profit an attempt must clear.
func (c *Controller) SetMinProfitThreshold(v *big.Int) {
	c.mu.Lock()
	old := c.pol.MinProfit
	c.pol.MinProfit = new(big.Int).Set(v)
	c.mu.Unlock()

	c.emitUpdate("min_profit_threshold", bigString(old), v.String())
}

// SetSlippageTolerance replaces the slippage tolerance. Values above
// MaxSlippageBps are rejected.
func (c *Controller) SetSlippageTolerance(bps uint32) error {
	if bps > MaxSlippageBps {
		return &types.SlippageTooHighError{Requested: bps, Max: MaxSlippageBps}
	}

	c.mu.Lock()
	old := c.pol.SlippageBps
	c.pol.SlippageBps = bps
	c.mu.Unlock()

	c.emitUpdate("slippage_tolerance_bps", uintString(old), uintString(bps))
	return nil
}

// SetMaxGasPrice replaces the gas price ceiling.
func (c *Controller) SetMaxGasPrice(v *big.Int) {
	c.mu.Lock()
	old := c.pol.MaxGasPrice
	c.pol.MaxGasPrice = new(big.Int).Set(v)
	c.mu.Unlock()

	c.emitUpdate("max_gas_price", bigString(old), v.String())
}

// ToggleActive flips the circuit breaker and returns the new state.
func (c *Controller) ToggleActive() bool {
	c.mu.Lock()
	c.pol.Active = !c.pol.Active
	active := c.pol.Active
	c.mu.Unlock()

	c.metrics.active.Set(boolToGauge(active))
	c.logger.Warn("circuit breaker toggled", zap.Bool("active", active))
	if c.sink != nil {
		c.sink.Emit(types.CircuitBreakerTriggered{Active: active})
	}
	return active
}

func (c *Controller) emitUpdate(parameter, old, new_ string) {
	c.metrics.configUpdates.WithLabelValues(parameter).Inc()
	c.logger.Info("guardrail updated",
		zap.String("parameter", parameter),
		zap.String("old", old),
		zap.String("new", new_))
	if c.sink != nil {
		c.sink.Emit(types.ConfigUpdated{Parameter: parameter, Old: old, New: new_})
	}
}

func clonePolicy(p Policy) Policy {
	out := p
	if p.MinProfit != nil {
		out.MinProfit = new(big.Int).Set(p.MinProfit)
	}
	if p.MaxGasPrice != nil {
		out.MaxGasPrice = new(big.Int).Set(p.MaxGasPrice)
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintString(v uint32) string {
	return new(big.Int).SetUint64(uint64(v)).String()
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
