package pgerror

import "github.com/jackc/pgx/v5/pgproto3"

// ToErrorResponse converts a classified fault into the wire message
// that communicates it to the client. Fatal kinds get severity FATAL
// (the session loop closes the connection right after sending it);
// everything else is ERROR, recovered by following up with
// ReadyForQuery.
func ToErrorResponse(e *Error) *pgproto3.ErrorResponse {
	severity := "ERROR"
	if e.Fatal() {
		severity = "FATAL"
	}
	return &pgproto3.ErrorResponse{
		Severity: severity,
		Code:     e.Code,
		Message:  e.Message,
		Detail:   e.Detail,
	}
}

// FromGeneric wraps an unclassified error (one that didn't originate
// as an *Error) as a Protocol fault, the conservative default: an
// error this package never saw a kind attached to is treated as fatal
// rather than silently recovered.
func FromGeneric(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return Protocolf("%v", err)
}
