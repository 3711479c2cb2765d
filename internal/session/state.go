// Package session implements the per-connection extended-query state
// machine (§4.7, C8): the Idle/Parsing/Described/Bound/Executing
// latches shared between the Parse/Describe/Bind/Execute/Sync
// sub-protocol and the prepared-statement/portal tables those
// messages populate. It tracks state only — the actual type-checking,
// rewriting, and encrypt/decrypt work lives in internal/typeinfer,
// internal/rewrite, and internal/pgproxy, which drive a Session
// through its transitions as frames arrive.
package session

import "fmt"

// State names one point in the Idle -> Parsing -> Described -> Bound
// -> Executing -> Idle cycle of §4.7. Only one request can be latched
// at a time: a client pipelining a second Parse/Bind/Describe/Execute
// before the first's Sync is service this session doesn't support
// — every real workload observed in the source
// material completes one request before issuing the next.
type State int

const (
	Idle State = iota
	Parsing
	Described
	Bound
	Executing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Parsing:
		return "parsing"
	case Described:
		return "described"
	case Bound:
		return "bound"
	case Executing:
		return "executing"
	default:
		return "unknown"
	}
}

// Object-type bytes used by Describe/Close, matching pgproto3's own
// encoding of the wire values ('S' statement, 'P' portal).
const (
	ObjectStatement byte = 'S'
	ObjectPortal    byte = 'P'
)

// TransitionError reports an attempt to send a message this session's
// current state doesn't allow (§4.7's table only permits
// Parse/Describe/Bind/Execute from Idle).
type TransitionError struct {
	State   State
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s not valid while %s", e.Message, e.State)
}

// describeLatch records a pending Describe awaiting its
// ParameterDescription/RowDescription/NoData reply.
type describeLatch struct {
	objectType byte
	name       string
}

// executeLatch records a pending Execute awaiting its
// CommandComplete/EmptyQueryResponse/PortalSuspended reply.
type executeLatch struct {
	portalName string
}

// Session is one client connection's extended-query state, owned
// exclusively by that connection's goroutine (§5 — single-writer, no
// cross-connection sharing).
type Session struct {
	state State

	statements map[string]*PreparedStatement
	portals    map[string]*Portal

	pendingParse  *PreparedStatement
	pendingBind   *Portal
	describeLatch *describeLatch
	executeLatch  *executeLatch

	// aborted is set when the server sends an ErrorResponse mid-command;
	// cleared when the matching ReadyForQuery arrives.
	aborted bool
}

// New builds an empty Session.
func New() *Session {
	return &Session{
		state:      Idle,
		statements: make(map[string]*PreparedStatement),
		portals:    make(map[string]*Portal),
	}
}

// State returns the session's current latch state.
func (s *Session) State() State { return s.state }

// Aborted reports whether the session is waiting out a failed command
// for its ReadyForQuery (§4.8).
func (s *Session) Aborted() bool { return s.aborted }

func (s *Session) requireIdle(action string) error {
	if s.state != Idle {
		return &TransitionError{State: s.state, Message: action}
	}
	return nil
}
