package engine

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/guard"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/token"
	"github.com/michaelpento.lv/flasharb/types"
)

// attemptHops is the number of swap legs in one attempt.
const attemptHops = 2

// CostEstimator prices an attempt's execution cost in native units.
// *gas.Estimator satisfies it.
type CostEstimator interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	AttemptCost(ctx context.Context, hops int) (*big.Int, error)
}

// Engine orchestrates one flash-loan arbitrage attempt at a time: request
// validation, loan session handling, two sequential swap legs, the solvency
// invariant and the profit gate.
type Engine struct {
	runMu sync.Mutex

	owner     common.Address
	access    guard.AccessPolicy
	guards    *guard.Controller
	lender    flashloan.Lender
	feeTiered dex.Venue
	pathBased dex.Venue
	account   token.Account
	costs     CostEstimator
	converter oracle.CostConverter
	fees      *dex.FeePreferences
	sessions  *flashloan.Table
	sink      types.Sink
	logger    *zap.Logger
	metrics   *engineMetrics

	// per-attempt outcome, owned by the goroutine holding runMu
	result      *types.Result
	callbackErr error
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Owner     common.Address
	Access    guard.AccessPolicy
	Guards    *guard.Controller
	Lender    flashloan.Lender
	FeeTiered dex.Venue
	PathBased dex.Venue
	Account   token.Account
	Costs     CostEstimator
	Converter oracle.CostConverter
	Fees      *dex.FeePreferences
	Sink      types.Sink
	Logger    *zap.Logger
}

// New creates the arbitrage engine.
func New(d Deps) (*Engine, error) {
	if d.Guards == nil {
		return nil, fmt.Errorf("guard controller cannot be nil")
	}
	if d.Lender == nil {
		return nil, fmt.Errorf("lender cannot be nil")
	}
	if d.FeeTiered == nil || d.PathBased == nil {
		return nil, fmt.Errorf("both venues must be configured")
	}
	if d.Account == nil {
		return nil, fmt.Errorf("account cannot be nil")
	}
	if d.Costs == nil {
		return nil, fmt.Errorf("cost estimator cannot be nil")
	}
	if d.Access == nil {
		d.Access = guard.SingleOwner{Owner: d.Owner}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Sink == nil {
		d.Sink = &types.LogSink{Logger: d.Logger}
	}

	return &Engine{
		owner:     d.Owner,
		access:    d.Access,
		guards:    d.Guards,
		lender:    d.Lender,
		feeTiered: d.FeeTiered,
		pathBased: d.PathBased,
		account:   d.Account,
		costs:     d.Costs,
		converter: d.Converter,
		fees:      d.Fees,
		sessions:  flashloan.NewTable(),
		sink:      d.Sink,
		logger:    d.Logger,
		metrics:   newEngineMetrics(),
	}, nil
}

// ExecuteArbitrage runs one attempt end to end. Restricted to the configured
// principal and mutually exclusive with itself: a second call while an
// attempt is mid-flight fails with ErrAttemptInFlight.
func (e *Engine) ExecuteArbitrage(ctx context.Context, caller common.Address, req types.Request) (*types.Result, error) {
	if err := e.access.Authorize(caller); err != nil {
		return nil, err
	}

	if !e.runMu.TryLock() {
		return nil, types.ErrAttemptInFlight
	}
	defer e.runMu.Unlock()

	start := time.Now()
	e.metrics.attempts.Inc()
	defer func() {
		e.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	result, err := e.runAttempt(ctx, caller, req)
	if err != nil {
		e.metrics.observeFailure(err)
		return nil, err
	}
	e.metrics.observeSuccess(result)
	return result, nil
}

func (e *Engine) runAttempt(ctx context.Context, caller common.Address, req types.Request) (*types.Result, error) {
	// Entry checks are side-effect free and precede the loan request. The
	// circuit breaker comes first: a paused engine rejects before the gas
	// price read, which is itself an external call.
	if err := e.guards.CheckActive(); err != nil {
		return nil, e.fail(req, err)
	}
	gasPrice, err := e.costs.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gas price: %w", err)
	}
	if err := e.guards.CheckEntry(gasPrice); err != nil {
		return nil, e.fail(req, err)
	}
	if err := req.Validate(); err != nil {
		return nil, e.fail(req, err)
	}

	session, err := e.sessions.Open(caller, req, time.Now().Add(dex.SwapDeadline))
	if err != nil {
		return nil, e.fail(req, err)
	}
	// The session never outlives the attempt, whatever the outcome.
	defer e.sessions.Clear(session.ID)

	payload, err := flashloan.EncodePayload(session.ID, req)
	if err != nil {
		e.sessions.Abort(session.ID)
		return nil, e.fail(req, err)
	}

	e.result = nil
	e.callbackErr = nil

	e.logger.Info("requesting flash loan",
		zap.Uint64("session", session.ID),
		zap.String("token_borrow", req.TokenBorrow.Hex()),
		zap.String("token_target", req.TokenTarget.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("direction", req.Direction.String()))

	if err := e.lender.BorrowAndCallback(ctx, []common.Address{req.TokenBorrow}, []*big.Int{req.Amount}, payload); err != nil {
		e.sessions.Abort(session.ID)
		if e.callbackErr != nil {
			// The callback ran and failed; keep its typed condition rather
			// than mislabelling it as a lending failure.
			return nil, e.fail(req, e.callbackErr)
		}
		return nil, e.fail(req, fmt.Errorf("%w: %w", types.ErrFlashLoanFailed, err))
	}

	if e.result == nil {
		// The primitive claimed success but the callback never settled.
		e.sessions.Abort(session.ID)
		return nil, e.fail(req, types.ErrInvalidCallback)
	}

	e.sessions.Settle(session.ID)
	return e.result, nil
}

// HandleLoan is the loan callback, invoked by the lending collaborator once
// funds are delivered. It rejects callers other than the registered lender
// and callbacks that do not name the pending session, then runs leg 1 and
// leg 2 strictly in sequence before settling.
func (e *Engine) HandleLoan(ctx context.Context, caller flashloan.Lender, tokens []common.Address, amounts, fees []*big.Int, payload []byte) error {
	if caller != e.lender {
		return types.ErrUnauthorized
	}
	if len(tokens) != 1 || len(amounts) != 1 || len(fees) != 1 {
		return e.abortCallback(0, types.ErrInvalidCallback)
	}

	sessionID, req, err := flashloan.DecodePayload(payload)
	if err != nil {
		return e.abortCallback(0, fmt.Errorf("%w: %s", types.ErrInvalidCallback, err))
	}

	session, err := e.sessions.Match(sessionID, time.Now())
	if err != nil {
		return e.abortCallback(0, err)
	}
	if tokens[0] != session.Request.TokenBorrow || amounts[0].Cmp(session.Request.Amount) != 0 {
		return e.abortCallback(session.ID, types.ErrInvalidCallback)
	}

	// Funds held before this loan are not part of the attempt: settlement
	// measures against this baseline so a pre-existing float cannot mask an
	// insolvent trade or inflate its profit.
	balance, err := e.account.BalanceOf(ctx, req.TokenBorrow)
	if err != nil {
		return e.abortCallback(session.ID, fmt.Errorf("failed to read delivered balance: %w", err))
	}
	baseline := new(big.Int).Sub(balance, req.Amount)
	if baseline.Sign() < 0 {
		return e.abortCallback(session.ID, types.ErrInvalidCallback)
	}

	pol := e.guards.Snapshot()

	firstOut, err := e.runLeg(ctx, e.legVenue(req.Direction, 0), req.TokenBorrow, req.TokenTarget, req.Amount, req.PoolFeeHint, pol, session.Deadline)
	if err != nil {
		return e.abortCallback(session.ID, err)
	}

	// Leg 2 starts only once leg 1's realized output is known.
	if _, err := e.runLeg(ctx, e.legVenue(req.Direction, 1), req.TokenTarget, req.TokenBorrow, firstOut, req.PoolFeeHint, pol, session.Deadline); err != nil {
		return e.abortCallback(session.ID, err)
	}

	result, err := e.settle(ctx, session, fees[0], baseline, pol)
	if err != nil {
		return e.abortCallback(session.ID, err)
	}

	e.result = result
	return nil
}

func (e *Engine) runLeg(ctx context.Context, venue dex.Venue, tokenIn, tokenOut common.Address, amountIn *big.Int, feeHint uint32, pol guard.Policy, deadline time.Time) (*big.Int, error) {
	minOut, err := dex.MinOutput(ctx, venue, tokenIn, tokenOut, amountIn, feeHint, pol.SlippageBps, pol.AllowUnquotedSwaps, e.logger)
	if err != nil {
		return nil, err
	}

	out, err := venue.SwapExactIn(ctx, tokenIn, tokenOut, amountIn, minOut, feeHint, deadline)
	if err != nil {
		return nil, fmt.Errorf("swap on %s failed: %w", venue.Name(), err)
	}
	return out, nil
}

// legVenue resolves which venue executes the given leg under the request
// direction.
func (e *Engine) legVenue(d types.Direction, leg int) dex.Venue {
	if (d == types.FeeTieredFirst) == (leg == 0) {
		return e.feeTiered
	}
	return e.pathBased
}

func (e *Engine) abortCallback(sessionID uint64, err error) error {
	if sessionID != 0 {
		e.sessions.Abort(sessionID)
	}
	e.callbackErr = err
	return err
}

// fail emits the audit failure signal and returns the error unchanged.
func (e *Engine) fail(req types.Request, err error) error {
	e.logger.Warn("attempt failed",
		zap.String("token_borrow", req.TokenBorrow.Hex()),
		zap.String("token_target", req.TokenTarget.Hex()),
		zap.Error(err))
	e.sink.Emit(types.ArbitrageFailed{
		ID:          uuid.NewString(),
		TokenBorrow: req.TokenBorrow,
		TokenTarget: req.TokenTarget,
		Amount:      req.Amount,
		Reason:      err.Error(),
	})
	return err
}

// RecoverAsset sweeps the engine account's full balance of a token to the
// given recipient. Owner-only; intended for funds stranded by aborted
// attempts or direct transfers.
func (e *Engine) RecoverAsset(ctx context.Context, caller common.Address, asset, to common.Address) (*big.Int, error) {
	if err := e.access.Authorize(caller); err != nil {
		return nil, err
	}
	if !e.runMu.TryLock() {
		return nil, types.ErrAttemptInFlight
	}
	defer e.runMu.Unlock()

	balance, err := e.account.BalanceOf(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := e.account.Transfer(ctx, asset, to, balance); err != nil {
		return nil, fmt.Errorf("recovery transfer failed: %w", err)
	}

	e.logger.Warn("asset recovered",
		zap.String("asset", asset.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", balance.String()))
	return balance, nil
}

// Guards exposes the guardrail controller's read surface.
func (e *Engine) Guards() *guard.Controller { return e.guards }

// SetMinProfitThreshold is the owner-gated guardrail setter.
func (e *Engine) SetMinProfitThreshold(caller common.Address, v *big.Int) error {
	if err := e.access.Authorize(caller); err != nil {
		return err
	}
	e.guards.SetMinProfitThreshold(v)
	return nil
}

// SetSlippageTolerance is the owner-gated guardrail setter.
func (e *Engine) SetSlippageTolerance(caller common.Address, bps uint32) error {
	if err := e.access.Authorize(caller); err != nil {
		return err
	}
	return e.guards.SetSlippageTolerance(bps)
}

// SetMaxGasPrice is the owner-gated guardrail setter.
func (e *Engine) SetMaxGasPrice(caller common.Address, v *big.Int) error {
	if err := e.access.Authorize(caller); err != nil {
		return err
	}
	e.guards.SetMaxGasPrice(v)
	return nil
}

// ToggleActive is the owner-gated circuit breaker.
func (e *Engine) ToggleActive(caller common.Address) (bool, error) {
	if err := e.access.Authorize(caller); err != nil {
		return false, err
	}
	return e.guards.ToggleActive(), nil
}

// SetPoolFeeTier records the preferred fee tier for a pair on the fee-tiered
// venue. Owner-gated like the guardrail setters; a per-request hint still
// overrides the preference.
func (e *Engine) SetPoolFeeTier(caller common.Address, tokenA, tokenB common.Address, tier uint32) error {
	if err := e.access.Authorize(caller); err != nil {
		return err
	}
	if e.fees == nil {
		return fmt.Errorf("fee preferences not configured")
	}
	old := e.fees.Lookup(tokenA, tokenB, 0)
	e.fees.Set(tokenA, tokenB, tier)
	e.sink.Emit(types.ConfigUpdated{
		Parameter: "pool_fee_tier",
		Old:       strconv.FormatUint(uint64(old), 10),
		New:       strconv.FormatUint(uint64(tier), 10),
	})
	return nil
}
