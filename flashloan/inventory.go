package flashloan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/token"
)

// Handler consumes a loan callback. The engine implements it.
type Handler interface {
	HandleLoan(ctx context.Context, lender Lender, tokens []common.Address, amounts, fees []*big.Int, payload []byte) error
}

// InventoryLender lends out of the engine account's own token float and
// invokes the loan callback synchronously. It mirrors the flash-loan
// contract in-process: funds must be available up front, the callback runs
// inside BorrowAndCallback, and repayment is verified before the call
// returns. Used for self-funded execution and simulation; the on-chain
// lending facility enforces the same contract atomically.
type InventoryLender struct {
	account token.Account
	handler Handler
	feeBps  *big.Int
	logger  *zap.Logger
}

// NewInventoryLender creates a lender over the engine's own inventory.
// feeBps is the loan fee in basis points, typically taken from the on-chain
// facility's premium so the economics match.
func NewInventoryLender(account token.Account, feeBps *big.Int, logger *zap.Logger) *InventoryLender {
	return &InventoryLender{
		account: account,
		feeBps:  new(big.Int).Set(feeBps),
		logger:  logger,
	}
}

// SetHandler registers the loan callback target. Must be called before the
// first borrow.
func (l *InventoryLender) SetHandler(h Handler) { l.handler = h }

// BorrowAndCallback verifies the float covers the principal, invokes the
// callback, then verifies the account repaid principal plus fee. A handler
// failure aborts the whole unit.
func (l *InventoryLender) BorrowAndCallback(ctx context.Context, tokens []common.Address, amounts []*big.Int, payload []byte) error {
	if l.handler == nil {
		return fmt.Errorf("no loan handler registered")
	}
	if len(tokens) != 1 || len(amounts) != 1 {
		return fmt.Errorf("inventory lender takes exactly one asset, got %d", len(tokens))
	}

	balance, err := l.account.BalanceOf(ctx, tokens[0])
	if err != nil {
		return fmt.Errorf("failed to read float balance: %w", err)
	}
	if balance.Cmp(amounts[0]) < 0 {
		return fmt.Errorf("insufficient float: have %s, need %s", balance, amounts[0])
	}

	fee := new(big.Int).Mul(amounts[0], l.feeBps)
	fee.Div(fee, big.NewInt(10000))

	if err := l.handler.HandleLoan(ctx, l, tokens, amounts, []*big.Int{fee}, payload); err != nil {
		return err
	}

	// Repayment goes to Address(), the float account itself, so the fee and
	// the cost reserve flow back in: the float must not end below where it
	// started plus the fee owed.
	final, err := l.account.BalanceOf(ctx, tokens[0])
	if err != nil {
		return fmt.Errorf("failed to verify repayment: %w", err)
	}
	required := new(big.Int).Add(balance, fee)
	if final.Cmp(required) < 0 {
		return fmt.Errorf("loan not repaid: float %s below required %s", final, required)
	}

	l.logger.Debug("inventory loan settled",
		zap.String("token", tokens[0].Hex()),
		zap.String("amount", amounts[0].String()),
		zap.String("fee", fee.String()))
	return nil
}

// Address is where repayment transfers are sent: the float account itself.
func (l *InventoryLender) Address() common.Address { return l.account.Address() }

func (l *InventoryLender) String() string { return "Inventory" }
