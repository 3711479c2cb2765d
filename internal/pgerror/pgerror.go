// Package pgerror implements the five-kind error taxonomy of §7: every
// fault the mapper/rewriter/session layers can hit is classified into
// one kind, which decides whether the connection-handling loop
// recovers locally (ErrorResponse + ReadyForQuery, connection stays
// usable) or drops the connection.
package pgerror

import "fmt"

// Kind names one of the five fault categories of §7.
type Kind int

const (
	// Protocol faults — framing, an unexpected message code, a bad
	// startup message — are always fatal to the connection.
	Protocol Kind = iota
	// Mapping faults — parse errors, unresolved identifiers, arity
	// mismatches, unification failures — are recovered locally.
	Mapping
	// Encryption faults — an unknown or unconfigured encrypted column,
	// a cryptor refusal, a missing keyset — are recovered locally.
	Encryption
	// ConfigIO faults — connect timeouts, TLS handshake failures,
	// schema reload failures — are surfaced at startup, or retried
	// with bounded backoff at runtime.
	ConfigIO
	// AuthPolicy faults — a client attempting to override the keyset
	// while a default keyset is configured — are fatal at the SQL
	// layer.
	AuthPolicy
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case Mapping:
		return "mapping"
	case Encryption:
		return "encryption"
	case ConfigIO:
		return "config_io"
	case AuthPolicy:
		return "auth_policy"
	default:
		return "unknown"
	}
}

// Fatal reports whether a fault of this Kind always drops the
// connection rather than being recovered locally (§7's propagation
// policy).
func (k Kind) Fatal() bool {
	return k == Protocol || k == AuthPolicy
}

// Error is a classified fault. Code is the taxonomy tag surfaced to
// the client in ErrorResponse's Code field ("invalid_sql_statement",
// "unknown_column", ...) — this proxy's own vocabulary, not a real
// PostgreSQL SQLSTATE, since the client only ever needs to distinguish
// "your statement was rejected" from "the server itself failed".
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Detail optionally carries a stable documentation URL, used by
	// Encryption faults per §7.
	Detail string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fatal reports whether this fault drops the connection.
func (e *Error) Fatal() bool { return e.Kind.Fatal() }

// Protocolf builds a fatal Protocol fault.
func Protocolf(format string, args ...any) *Error {
	return &Error{Kind: Protocol, Code: "protocol_violation", Message: fmt.Sprintf(format, args...)}
}

// InvalidStatement builds a Mapping fault for a statement the parser
// or rewriter could not accept (parse errors, arity mismatches,
// unification failures).
func InvalidStatement(format string, args ...any) *Error {
	return &Error{Kind: Mapping, Code: "invalid_sql_statement", Message: fmt.Sprintf(format, args...)}
}

// UnknownColumn builds a Mapping fault for an identifier the schema
// registry or resolver could not resolve.
func UnknownColumn(table, column string) *Error {
	return &Error{Kind: Mapping, Code: "unknown_column", Message: fmt.Sprintf("column %q of relation %q does not exist", column, table)}
}

// encryptionDocsURL is the stable documentation location surfaced
// alongside every Encryption fault, per §7.
const encryptionDocsURL = "https://docs.cipherstash.com/reference/errors/encryption"

// Encryptionf builds an Encryption fault.
func Encryptionf(format string, args ...any) *Error {
	return &Error{Kind: Encryption, Code: "encryption_error", Message: fmt.Sprintf(format, args...), Detail: encryptionDocsURL}
}

// ConfigIOf builds a ConfigIO fault.
func ConfigIOf(format string, args ...any) *Error {
	return &Error{Kind: ConfigIO, Code: "config_io_error", Message: fmt.Sprintf(format, args...)}
}

// AuthPolicyf builds a fatal AuthPolicy fault — a client tried to
// override the keyset despite a configured default.
func AuthPolicyf(format string, args ...any) *Error {
	return &Error{Kind: AuthPolicy, Code: "keyset_policy_violation", Message: fmt.Sprintf(format, args...)}
}
