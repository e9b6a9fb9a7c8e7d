package types

import (
	"errors"
	"fmt"
	"math/big"
)

// Sentinel conditions shared across packages. Every failure mode of an
// attempt surfaces as one of these (possibly wrapped), never as a silent
// no-op, so a monitoring caller can tell "paused" from "unauthorized" from
// "not worth it".
var (
	// ErrPaused rejects attempts while the circuit breaker is off.
	ErrPaused = errors.New("engine paused")

	// ErrAbnormalGasPrice rejects attempts when gas exceeds the ceiling.
	ErrAbnormalGasPrice = errors.New("gas price above configured ceiling")

	// ErrUnauthorized rejects callers that are not the configured principal,
	// and loan callbacks that do not originate from the registered lender.
	ErrUnauthorized = errors.New("unauthorized caller")

	// ErrInvalidTokenPair rejects equal or zero borrow/target tokens.
	ErrInvalidTokenPair = errors.New("invalid token pair")

	// ErrInvalidAmount rejects zero or negative principal.
	ErrInvalidAmount = errors.New("invalid borrow amount")

	// ErrFlashLoanFailed wraps a lending primitive failure that occurred
	// before the loan callback ever ran.
	ErrFlashLoanFailed = errors.New("flash loan request failed")

	// ErrInvalidCallback rejects loan callbacks with no matching pending
	// session.
	ErrInvalidCallback = errors.New("no matching pending loan session")

	// ErrSessionExpired rejects loan callbacks arriving after the session
	// deadline.
	ErrSessionExpired = errors.New("loan session deadline elapsed")

	// ErrAttemptInFlight rejects re-entry while an attempt is mid-flight.
	ErrAttemptInFlight = errors.New("another attempt is in flight")

	// ErrQuoteUnavailable reports a venue quote that failed or returned an
	// unusable result while permissive fallback is disabled.
	ErrQuoteUnavailable = errors.New("venue quote unavailable")

	// ErrAbnormalPrice reports a non-positive oracle price.
	ErrAbnormalPrice = errors.New("abnormal oracle price")
)

// SlippageTooHighError reports a slippage tolerance above the hard bound.
type SlippageTooHighError struct {
	Requested uint32
	Max       uint32
}

func (e *SlippageTooHighError) Error() string {
	return fmt.Sprintf("slippage tolerance too high: requested %d bps, max %d bps", e.Requested, e.Max)
}

// InsufficientRepaymentError is the solvency failure: the post-trade balance
// cannot cover principal plus loan fee. Always fatal for the attempt.
type InsufficientRepaymentError struct {
	Available *big.Int
	Required  *big.Int
}

func (e *InsufficientRepaymentError) Error() string {
	return fmt.Sprintf("insufficient funds for repayment: available %s, required %s", e.Available, e.Required)
}

// ProfitBelowThresholdError is the policy shortfall: the attempt was solvent
// but netted less than the configured minimum. Fatal by design.
type ProfitBelowThresholdError struct {
	Actual    *big.Int
	Threshold *big.Int
}

func (e *ProfitBelowThresholdError) Error() string {
	return fmt.Sprintf("net profit below threshold: actual %s, threshold %s", e.Actual, e.Threshold)
}
