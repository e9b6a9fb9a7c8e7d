package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/michaelpento.lv/flasharb/types"
)

type engineMetrics struct {
	attempts    prometheus.Counter
	successes   prometheus.Counter
	failures    prometheus.CounterVec
	latency     prometheus.Histogram
	profitWei   prometheus.Counter
	successRate prometheus.Gauge
}

func newEngineMetrics() *engineMetrics {
	m := &engineMetrics{}

	m.attempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_attempts_total",
		Help: "Total number of arbitrage attempts",
	})
	m.successes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_successes_total",
		Help: "Number of settled, disbursed attempts",
	})
	m.failures = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_failures_total",
		Help: "Number of failed attempts by reason",
	}, []string{"reason"})
	m.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_attempt_latency_seconds",
		Help:    "Latency of arbitrage attempts",
		Buckets: prometheus.DefBuckets,
	})
	m.profitWei = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_net_profit_wei_total",
		Help: "Cumulative net profit disbursed, in borrowed-token wei",
	})
	m.successRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_success_rate",
		Help: "Fraction of attempts that settled successfully",
	})

	return m
}

func (m *engineMetrics) observeSuccess(result *types.Result) {
	m.successes.Inc()
	if result != nil && result.NetProfit != nil {
		m.profitWei.Add(float64(result.NetProfit.Uint64()))
	}
	m.updateSuccessRate()
}

func (m *engineMetrics) observeFailure(err error) {
	m.failures.WithLabelValues(failureReason(err)).Inc()
	m.updateSuccessRate()
}

// updateSuccessRate recomputes the rate gauge from the counters' current
// values.
func (m *engineMetrics) updateSuccessRate() {
	successes := counterValue(m.successes)
	attempts := counterValue(m.attempts)
	if attempts > 0 {
		m.successRate.Set(successes / attempts)
	}
}

func counterValue(c prometheus.Counter) float64 {
	var metric dto.Metric
	if err := c.Write(&metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}

// failureReason maps an attempt error onto a bounded metric label set.
func failureReason(err error) string {
	var slippage *types.SlippageTooHighError
	var insolvent *types.InsufficientRepaymentError
	var short *types.ProfitBelowThresholdError

	switch {
	case errors.Is(err, types.ErrPaused):
		return "paused"
	case errors.Is(err, types.ErrAbnormalGasPrice):
		return "gas_ceiling"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, types.ErrInvalidTokenPair), errors.Is(err, types.ErrInvalidAmount):
		return "invalid_request"
	case errors.Is(err, types.ErrFlashLoanFailed):
		return "flash_loan"
	case errors.Is(err, types.ErrInvalidCallback):
		return "invalid_callback"
	case errors.Is(err, types.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, types.ErrAttemptInFlight):
		return "busy"
	case errors.Is(err, types.ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.As(err, &insolvent):
		return "insolvent"
	case errors.As(err, &short):
		return "profit_short"
	case errors.As(err, &slippage):
		return "slippage_bound"
	default:
		return "other"
	}
}
