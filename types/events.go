package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Event is an audit signal emitted by the engine or the guardrail controller.
type Event interface {
	Name() string
}

// Sink receives audit events. Emit must not block the attempt.
type Sink interface {
	Emit(Event)
}

// ArbitrageExecuted records a settled, disbursed attempt.
type ArbitrageExecuted struct {
	ID          string
	TokenBorrow common.Address
	TokenTarget common.Address
	Amount      *big.Int
	GrossProfit *big.Int
	NetProfit   *big.Int
	CostUsed    *big.Int
	Direction   Direction
}

func (ArbitrageExecuted) Name() string { return "ArbitrageExecuted" }

// ArbitrageFailed records an aborted attempt with the underlying reason.
type ArbitrageFailed struct {
	ID          string
	TokenBorrow common.Address
	TokenTarget common.Address
	Amount      *big.Int
	Reason      string
}

func (ArbitrageFailed) Name() string { return "ArbitrageFailed" }

// ConfigUpdated records a guardrail mutation with old and new values.
type ConfigUpdated struct {
	Parameter string
	Old       string
	New       string
}

func (ConfigUpdated) Name() string { return "ConfigUpdated" }

// CircuitBreakerTriggered records a toggle of the engine-wide kill switch.
type CircuitBreakerTriggered struct {
	Active bool
}

func (CircuitBreakerTriggered) Name() string { return "CircuitBreakerTriggered" }

// LogSink writes every event to a zap logger. It is the default sink when no
// external audit pipeline is wired in.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Emit(ev Event) {
	s.Logger.Info("audit event", zap.String("event", ev.Name()), zap.Any("payload", ev))
}
