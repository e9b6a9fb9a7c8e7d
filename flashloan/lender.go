package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Lender is the lending facility boundary. BorrowAndCallback delivers the
// requested funds, invokes the borrower's loan callback synchronously within
// the same unit of work, then independently verifies repayment and aborts the
// entire unit if unmet.
type Lender interface {
	BorrowAndCallback(ctx context.Context, tokens []common.Address, amounts []*big.Int, payload []byte) error

	// Address is where repayment transfers are sent.
	Address() common.Address

	String() string
}
