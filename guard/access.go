package guard

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/types"
)

// AccessPolicy decides who may initiate attempts and mutate guardrails.
type AccessPolicy interface {
	Authorize(caller common.Address) error
}

// SingleOwner authorizes exactly one configured principal.
type SingleOwner struct {
	Owner common.Address
}

func (p SingleOwner) Authorize(caller common.Address) error {
	if caller != p.Owner {
		return types.ErrUnauthorized
	}
	return nil
}
