package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/types"
)

// The loan payload carries the session id and the request through the lending
// collaborator as opaque bytes. ABI encoding keeps it verifiable by an
// on-chain receiver.
var payloadArgs = abi.Arguments{
	{Name: "sessionId", Type: mustType("uint64")},
	{Name: "tokenBorrow", Type: mustType("address")},
	{Name: "tokenTarget", Type: mustType("address")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "poolFeeHint", Type: mustType("uint32")},
	{Name: "direction", Type: mustType("uint8")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// EncodePayload packs the session id and request.
func EncodePayload(sessionID uint64, req types.Request) ([]byte, error) {
	out, err := payloadArgs.Pack(
		sessionID,
		req.TokenBorrow,
		req.TokenTarget,
		req.Amount,
		req.PoolFeeHint,
		uint8(req.Direction),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack loan payload: %w", err)
	}
	return out, nil
}

// DecodePayload unpacks a loan payload back into the session id and request.
func DecodePayload(payload []byte) (uint64, types.Request, error) {
	values, err := payloadArgs.Unpack(payload)
	if err != nil {
		return 0, types.Request{}, fmt.Errorf("failed to unpack loan payload: %w", err)
	}
	if len(values) != 6 {
		return 0, types.Request{}, fmt.Errorf("malformed loan payload: %d fields", len(values))
	}

	sessionID, ok := values[0].(uint64)
	if !ok {
		return 0, types.Request{}, fmt.Errorf("malformed session id")
	}
	tokenBorrow, ok1 := values[1].(common.Address)
	tokenTarget, ok2 := values[2].(common.Address)
	amount, ok3 := values[3].(*big.Int)
	feeHint, ok4 := values[4].(uint32)
	direction, ok5 := values[5].(uint8)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return 0, types.Request{}, fmt.Errorf("malformed loan payload fields")
	}

	return sessionID, types.Request{
		TokenBorrow: tokenBorrow,
		TokenTarget: tokenTarget,
		Amount:      amount,
		PoolFeeHint: feeHint,
		Direction:   types.Direction(direction),
	}, nil
}
