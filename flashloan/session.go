package flashloan

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/types"
)

// SessionState tracks the lifecycle of one loan session.
type SessionState int

const (
	SessionPending SessionState = iota
	SessionSettled
	SessionAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionSettled:
		return "settled"
	case SessionAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session correlates one arbitrage attempt with its asynchronous loan
// callback. It is owned exclusively by the in-flight attempt and is cleared
// at the end of the attempt on every path.
type Session struct {
	ID        uint64
	Request   types.Request
	Deadline  time.Time
	Initiator common.Address
	State     SessionState
}

// Table holds loan sessions. At most one session may be pending at a time:
// a callback is accepted only when it names the pending session's id and the
// deadline has not elapsed.
type Table struct {
	mu     sync.Mutex
	active *Session
	nonce  uint64
}

func NewTable() *Table {
	return &Table{}
}

// Open creates the pending session for an attempt. The id is derived from
// the call context and parameters plus a per-table nonce, so unsolicited or
// replayed callbacks cannot name it.
func (t *Table) Open(initiator common.Address, req types.Request, deadline time.Time) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil && t.active.State == SessionPending {
		return nil, types.ErrAttemptInFlight
	}

	t.nonce++
	s := &Session{
		ID:        deriveID(initiator, req, t.nonce),
		Request:   req,
		Deadline:  deadline,
		Initiator: initiator,
		State:     SessionPending,
	}
	t.active = s
	return s, nil
}

// Match consumes the pending session for an incoming callback. The id must
// name the pending session and the deadline must not have elapsed.
func (t *Table) Match(id uint64, now time.Time) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil || t.active.State != SessionPending || t.active.ID != id {
		return nil, types.ErrInvalidCallback
	}
	if now.After(t.active.Deadline) {
		return nil, types.ErrSessionExpired
	}
	return t.active, nil
}

// Settle marks the pending session settled.
func (t *Table) Settle(id uint64) {
	t.setState(id, SessionSettled)
}

// Abort marks the pending session aborted.
func (t *Table) Abort(id uint64) {
	t.setState(id, SessionAborted)
}

// Clear drops the session regardless of outcome so no orphaned session
// outlives the attempt.
func (t *Table) Clear(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil && t.active.ID == id {
		t.active = nil
	}
}

// Pending reports whether a session is currently pending.
func (t *Table) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil && t.active.State == SessionPending
}

func (t *Table) setState(id uint64, state SessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil && t.active.ID == id {
		t.active.State = state
	}
}

func deriveID(initiator common.Address, req types.Request, nonce uint64) uint64 {
	d := xxhash.New()
	d.Write(initiator.Bytes())
	d.Write(req.TokenBorrow.Bytes())
	d.Write(req.TokenTarget.Bytes())
	d.Write(req.Amount.Bytes())

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	d.Write(buf[:])
	return d.Sum64()
}
