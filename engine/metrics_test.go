package engine

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/types"
)

func TestFailureReasonLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{types.ErrPaused, "paused"},
		{types.ErrAbnormalGasPrice, "gas_ceiling"},
		{types.ErrUnauthorized, "unauthorized"},
		{types.ErrInvalidTokenPair, "invalid_request"},
		{types.ErrInvalidAmount, "invalid_request"},
		{fmt.Errorf("%w: %w", types.ErrFlashLoanFailed, errors.New("revert")), "flash_loan"},
		{types.ErrInvalidCallback, "invalid_callback"},
		{types.ErrSessionExpired, "session_expired"},
		{types.ErrAttemptInFlight, "busy"},
		{types.ErrQuoteUnavailable, "quote_unavailable"},
		{&types.InsufficientRepaymentError{Available: big.NewInt(1), Required: big.NewInt(2)}, "insolvent"},
		{&types.ProfitBelowThresholdError{Actual: big.NewInt(1), Threshold: big.NewInt(2)}, "profit_short"},
		{&types.SlippageTooHighError{Requested: 1001, Max: 1000}, "slippage_bound"},
		{errors.New("something else"), "other"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, failureReason(tc.err), "for error %v", tc.err)
	}
}

func TestSuccessRateGauge(t *testing.T) {
	m := newEngineMetrics()

	m.attempts.Inc()
	m.observeSuccess(&types.Result{NetProfit: big.NewInt(100)})
	m.attempts.Inc()
	m.observeFailure(types.ErrPaused)

	assert.InDelta(t, 0.5, gaugeValue(t, m.successRate), 1e-9)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, g.Write(&metric))
	return metric.Gauge.GetValue()
}
