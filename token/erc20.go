package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/chain"
)

const erc20ABIJson = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJson)

func mustParseABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(err)
	}
	return parsed
}

// BalanceOf reads an ERC-20 balance through the backend.
func BalanceOf(ctx context.Context, backend chain.Backend, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := backend.Call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("malformed balanceOf response: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// Transfer moves tokens from the engine account.
func Transfer(ctx context.Context, backend chain.Backend, token, to common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transfer: %w", err)
	}
	if _, err := backend.Send(ctx, token, data); err != nil {
		return fmt.Errorf("transfer of %s failed: %w", amount, err)
	}
	return nil
}

// Approve grants spender an allowance from the engine account. Swap adapters
// size the allowance exactly to the swap amount and revoke it to zero right
// after the call.
func Approve(ctx context.Context, backend chain.Backend, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("failed to pack approve: %w", err)
	}
	if _, err := backend.Send(ctx, token, data); err != nil {
		return fmt.Errorf("approve for %s failed: %w", spender.Hex(), err)
	}
	return nil
}

// Account is the engine's view of its own funds. The settlement path only
// needs balance reads and outbound transfers.
type Account interface {
	Address() common.Address
	BalanceOf(ctx context.Context, token common.Address) (*big.Int, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// BackendAccount implements Account over a chain backend.
type BackendAccount struct {
	backend chain.Backend
	self    common.Address
}

func NewBackendAccount(backend chain.Backend, self common.Address) *BackendAccount {
	return &BackendAccount{backend: backend, self: self}
}

func (a *BackendAccount) Address() common.Address { return a.self }

func (a *BackendAccount) BalanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	return BalanceOf(ctx, a.backend, token, a.self)
}

func (a *BackendAccount) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	return Transfer(ctx, a.backend, token, to, amount)
}
