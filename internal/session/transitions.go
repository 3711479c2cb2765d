package session

import "fmt"

// BeginParse latches a Parse at Idle (§4.7: Parse is only legal while
// Idle). The caller builds stmt from the already type-checked and
// rewritten statement; BeginParse only records it and advances state.
// The statement isn't visible via Statement until ParseComplete commits
// it, matching the wire ordering (a client never sees ParseComplete
// before its Parse was accepted).
func (s *Session) BeginParse(stmt *PreparedStatement) error {
	if err := s.requireIdle("Parse"); err != nil {
		return err
	}
	s.pendingParse = stmt
	s.state = Parsing
	return nil
}

// ParseComplete commits the latched statement into the statement
// table, replacing any prior statement of the same name, and returns
// to Idle. An unnamed statement ("") is always replaced this way,
// exactly as a named one would be (§4.7).
func (s *Session) ParseComplete() error {
	if s.state != Parsing || s.pendingParse == nil {
		return &TransitionError{State: s.state, Message: "ParseComplete"}
	}
	s.statements[s.pendingParse.Name] = s.pendingParse
	s.pendingParse = nil
	s.state = Idle
	return nil
}

// BeginDescribe latches a Describe(objectType, name) at Idle.
func (s *Session) BeginDescribe(objectType byte, name string) error {
	if err := s.requireIdle("Describe"); err != nil {
		return err
	}
	s.describeLatch = &describeLatch{objectType: objectType, name: name}
	s.state = Described
	return nil
}

// DescribeTarget resolves the statement a latched Describe refers to
// — either the statement itself (ObjectStatement) or the statement
// backing a bound portal (ObjectPortal).
func (s *Session) DescribeTarget() (*PreparedStatement, error) {
	if s.state != Described || s.describeLatch == nil {
		return nil, &TransitionError{State: s.state, Message: "Describe target lookup"}
	}
	switch s.describeLatch.objectType {
	case ObjectStatement:
		return s.Statement(s.describeLatch.name)
	case ObjectPortal:
		p, err := s.Portal(s.describeLatch.name)
		if err != nil {
			return nil, err
		}
		return p.Statement, nil
	default:
		return nil, fmt.Errorf("session: unknown describe object type %q", s.describeLatch.objectType)
	}
}

// EndDescribe closes out a latched Describe — NoData or the final
// RowDescription/ParameterDescription pair both return to Idle.
func (s *Session) EndDescribe() error {
	if s.state != Described {
		return &TransitionError{State: s.state, Message: "end of Describe"}
	}
	s.describeLatch = nil
	s.state = Idle
	return nil
}

// BeginBind latches a Bind(portalName, statementName) at Idle,
// resolving the named statement so the caller can walk its parameter
// types while building the encrypted Bind to forward.
func (s *Session) BeginBind(portalName, statementName string) (*PreparedStatement, error) {
	if err := s.requireIdle("Bind"); err != nil {
		return nil, err
	}
	stmt, err := s.Statement(statementName)
	if err != nil {
		return nil, err
	}
	s.pendingBind = &Portal{Name: portalName, Statement: stmt}
	s.state = Bound
	return stmt, nil
}

// SetPendingFormats records the parameter/result format codes
// negotiated by the in-flight Bind, for BindComplete to commit
// alongside the portal.
func (s *Session) SetPendingFormats(paramFormats, resultFormats []int16) error {
	if s.state != Bound || s.pendingBind == nil {
		return &TransitionError{State: s.state, Message: "Bind format assignment"}
	}
	s.pendingBind.ParamFormats = paramFormats
	s.pendingBind.ResultFormats = resultFormats
	return nil
}

// BindComplete commits the latched portal, replacing any prior portal
// of the same name (including the unnamed portal), and returns to
// Idle.
func (s *Session) BindComplete() error {
	if s.state != Bound || s.pendingBind == nil {
		return &TransitionError{State: s.state, Message: "BindComplete"}
	}
	s.portals[s.pendingBind.Name] = s.pendingBind
	s.pendingBind = nil
	s.state = Idle
	return nil
}

// BeginExecute latches an Execute(portalName) at Idle, resolving the
// bound portal so the caller can decrypt its DataRow stream against
// the right projection types.
func (s *Session) BeginExecute(portalName string) (*Portal, error) {
	if err := s.requireIdle("Execute"); err != nil {
		return nil, err
	}
	p, err := s.Portal(portalName)
	if err != nil {
		return nil, err
	}
	s.executeLatch = &executeLatch{portalName: portalName}
	p.Suspended = false
	s.state = Executing
	return p, nil
}

// EndExecute closes out a latched Execute — CommandComplete,
// EmptyQueryResponse, or PortalSuspended all return to Idle.
// suspended marks the portal re-Executable for more rows without a
// fresh Bind.
func (s *Session) EndExecute(suspended bool) error {
	if s.state != Executing || s.executeLatch == nil {
		return &TransitionError{State: s.state, Message: "end of Execute"}
	}
	if p, ok := s.portals[s.executeLatch.portalName]; ok {
		p.Suspended = suspended
	}
	s.executeLatch = nil
	s.state = Idle
	return nil
}

// Sync is legal from any state (§4.7): it forwards, then resets the
// latch to Idle once the matching ReadyForQuery is seen. Sync never
// touches the statement/portal tables — those persist across
// transactions until explicitly Closed.
func (s *Session) Sync() {
	s.pendingParse = nil
	s.pendingBind = nil
	s.describeLatch = nil
	s.executeLatch = nil
	s.state = Idle
}

// Close removes a named (or unnamed) statement or portal. Legal from
// any state.
func (s *Session) Close(objectType byte, name string) error {
	switch objectType {
	case ObjectStatement:
		delete(s.statements, name)
	case ObjectPortal:
		delete(s.portals, name)
	default:
		return fmt.Errorf("session: unknown close object type %q", objectType)
	}
	return nil
}

// Flush is a no-op on session state — it only asks the connection
// layer to drain buffered output, legal from any state.
func (s *Session) Flush() {}

// Terminate tears down all session state; the connection is closing.
func (s *Session) Terminate() {
	s.statements = make(map[string]*PreparedStatement)
	s.portals = make(map[string]*Portal)
	s.pendingParse = nil
	s.pendingBind = nil
	s.describeLatch = nil
	s.executeLatch = nil
	s.state = Idle
}

// OnErrorResponse marks the session aborted and returns it to Idle,
// per §4.8: a server-originated error cancels whatever latched
// operation was in flight but the connection stays usable once
// ReadyForQuery is observed.
func (s *Session) OnErrorResponse() {
	s.aborted = true
	s.pendingParse = nil
	s.pendingBind = nil
	s.describeLatch = nil
	s.executeLatch = nil
	s.state = Idle
}

// OnReadyForQuery clears the aborted flag once the server confirms
// the connection is ready for the next command.
func (s *Session) OnReadyForQuery() {
	s.aborted = false
}

// Statement looks up a prepared statement by name, returning a
// Mapping-flavoured error the caller can turn into an ErrorResponse if
// it's missing.
func (s *Session) Statement(name string) (*PreparedStatement, error) {
	stmt, ok := s.statements[name]
	if !ok {
		return nil, fmt.Errorf("session: prepared statement %q does not exist", name)
	}
	return stmt, nil
}

// Portal looks up a bound portal by name.
func (s *Session) Portal(name string) (*Portal, error) {
	p, ok := s.portals[name]
	if !ok {
		return nil, fmt.Errorf("session: portal %q does not exist", name)
	}
	return p, nil
}
