package guard

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/types"
)

type captureSink struct {
	events []types.Event
}

func (s *captureSink) Emit(ev types.Event) { s.events = append(s.events, ev) }

func testController(t *testing.T, pol Policy) (*Controller, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	return NewController(pol, sink, zaptest.NewLogger(t)), sink
}

func TestCheckEntry(t *testing.T) {
	ceiling := big.NewInt(500_000_000_000)
	c, _ := testController(t, Policy{Active: true, MaxGasPrice: ceiling})

	assert.NoError(t, c.CheckEntry(big.NewInt(30_000_000_000)))
	assert.NoError(t, c.CheckEntry(ceiling)) // at the ceiling is still fine
	assert.ErrorIs(t, c.CheckEntry(big.NewInt(500_000_000_001)), types.ErrAbnormalGasPrice)
}

func TestCheckEntryPaused(t *testing.T) {
	c, _ := testController(t, Policy{Active: false})
	assert.ErrorIs(t, c.CheckEntry(big.NewInt(1)), types.ErrPaused)
}

func TestCheckActive(t *testing.T) {
	c, _ := testController(t, Policy{Active: true})
	assert.NoError(t, c.CheckActive())

	c.ToggleActive()
	assert.ErrorIs(t, c.CheckActive(), types.ErrPaused)
}

func TestSetSlippageTolerance(t *testing.T) {
	c, sink := testController(t, Policy{Active: true, SlippageBps: 50})

	require.NoError(t, c.SetSlippageTolerance(MaxSlippageBps))
	assert.Equal(t, MaxSlippageBps, c.Snapshot().SlippageBps)

	err := c.SetSlippageTolerance(MaxSlippageBps + 1)
	var tooHigh *types.SlippageTooHighError
	require.ErrorAs(t, err, &tooHigh)
	assert.Equal(t, MaxSlippageBps+1, tooHigh.Requested)
	assert.Equal(t, MaxSlippageBps, tooHigh.Max)

	// The rejected update left the policy alone and emitted nothing new.
	assert.Equal(t, MaxSlippageBps, c.Snapshot().SlippageBps)
	assert.Len(t, sink.events, 1)
}

func TestSettersEmitOldAndNewValues(t *testing.T) {
	c, sink := testController(t, Policy{Active: true, MinProfit: big.NewInt(100)})

	c.SetMinProfitThreshold(big.NewInt(250))
	require.Len(t, sink.events, 1)

	update, ok := sink.events[0].(types.ConfigUpdated)
	require.True(t, ok)
	assert.Equal(t, "min_profit_threshold", update.Parameter)
	assert.Equal(t, "100", update.Old)
	assert.Equal(t, "250", update.New)

	c.SetMaxGasPrice(big.NewInt(42))
	assert.Zero(t, c.Snapshot().MaxGasPrice.Cmp(big.NewInt(42)))
}

func TestToggleActive(t *testing.T) {
	c, sink := testController(t, Policy{Active: true})

	assert.False(t, c.ToggleActive())
	assert.ErrorIs(t, c.CheckEntry(big.NewInt(1)), types.ErrPaused)

	assert.True(t, c.ToggleActive())
	assert.NoError(t, c.CheckEntry(big.NewInt(1)))

	require.Len(t, sink.events, 2)
	trigger, ok := sink.events[0].(types.CircuitBreakerTriggered)
	require.True(t, ok)
	assert.False(t, trigger.Active)
}

func TestSnapshotIsolation(t *testing.T) {
	c, _ := testController(t, Policy{Active: true, MinProfit: big.NewInt(100)})

	snap := c.Snapshot()
	snap.MinProfit.SetInt64(999)

	// Mutating the snapshot must not leak into the controller.
	assert.Zero(t, c.Snapshot().MinProfit.Cmp(big.NewInt(100)))
}

func TestSingleOwnerAuthorize(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	policy := SingleOwner{Owner: owner}

	assert.NoError(t, policy.Authorize(owner))
	assert.ErrorIs(t, policy.Authorize(common.HexToAddress("0xdead")), types.ErrUnauthorized)
	assert.ErrorIs(t, policy.Authorize(common.Address{}), types.ErrUnauthorized)
}
