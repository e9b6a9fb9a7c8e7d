package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/guard"
	"github.com/michaelpento.lv/flasharb/types"
)

// settle runs after both legs complete: it verifies the solvency invariant,
// applies the profit gate, repays the lender and disburses the surplus.
func (e *Engine) settle(ctx context.Context, session *flashloan.Session, loanFee, baseline *big.Int, pol guard.Policy) (*types.Result, error) {
	req := session.Request

	balance, err := e.account.BalanceOf(ctx, req.TokenBorrow)
	if err != nil {
		return nil, fmt.Errorf("failed to read final balance: %w", err)
	}
	// Only funds attributable to this attempt count toward repayment.
	finalBalance := new(big.Int).Sub(balance, baseline)
	if finalBalance.Sign() < 0 {
		finalBalance.SetInt64(0)
	}

	repay := new(big.Int).Add(req.Amount, loanFee)
	if finalBalance.Cmp(repay) < 0 {
		// Fatal. The lender verifies repayment independently and would abort
		// the whole unit anyway; this is the early, cheaper exit.
		return nil, &types.InsufficientRepaymentError{Available: finalBalance, Required: repay}
	}

	grossProfit := new(big.Int).Sub(finalBalance, repay)
	costInToken := e.estimateCost(ctx, req)

	netProfit := new(big.Int).Sub(grossProfit, costInToken)
	if netProfit.Sign() < 0 {
		netProfit.SetInt64(0)
	}

	if pol.MinProfit != nil && netProfit.Cmp(pol.MinProfit) < 0 {
		// Solvent but not worth it: a policy gate, not a failure of the
		// trade itself.
		return nil, &types.ProfitBelowThresholdError{Actual: netProfit, Threshold: new(big.Int).Set(pol.MinProfit)}
	}

	if err := e.account.Transfer(ctx, req.TokenBorrow, e.lender.Address(), repay); err != nil {
		return nil, fmt.Errorf("repayment transfer failed: %w", err)
	}
	if netProfit.Sign() > 0 {
		if err := e.account.Transfer(ctx, req.TokenBorrow, e.owner, netProfit); err != nil {
			return nil, fmt.Errorf("profit transfer failed: %w", err)
		}
	}

	e.logger.Info("attempt settled",
		zap.Uint64("session", session.ID),
		zap.String("gross_profit", grossProfit.String()),
		zap.String("net_profit", netProfit.String()),
		zap.String("cost", costInToken.String()))

	e.sink.Emit(types.ArbitrageExecuted{
		ID:          uuid.NewString(),
		TokenBorrow: req.TokenBorrow,
		TokenTarget: req.TokenTarget,
		Amount:      req.Amount,
		GrossProfit: grossProfit,
		NetProfit:   netProfit,
		CostUsed:    costInToken,
		Direction:   req.Direction,
	})

	return &types.Result{
		Request:     req,
		GrossProfit: grossProfit,
		NetProfit:   netProfit,
		CostUsed:    costInToken,
		Repaid:      repay,
	}, nil
}

// estimateCost prices the attempt's execution cost in the borrowed token.
// Cost conversion is a best-effort input: a missing or failing feed skips the
// deduction instead of aborting a solvent attempt.
func (e *Engine) estimateCost(ctx context.Context, req types.Request) *big.Int {
	costNative, err := e.costs.AttemptCost(ctx, attemptHops)
	if err != nil {
		e.logger.Warn("cost estimate unavailable, proceeding without deduction", zap.Error(err))
		return big.NewInt(0)
	}
	if e.converter == nil {
		return costNative
	}

	costInToken, err := e.converter.ToToken(ctx, req.TokenBorrow, costNative)
	if err != nil {
		e.logger.Warn("cost conversion unavailable, proceeding without deduction",
			zap.String("token", req.TokenBorrow.Hex()),
			zap.Error(err))
		return big.NewInt(0)
	}
	return costInToken
}
