package session

import (
	"github.com/cloudshield/eqlproxy/internal/sqlast"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
)

// PreparedStatement is everything the session needs to remember about
// a Parse'd statement across its later Describe/Bind/Execute messages:
// the rewritten AST sent upstream, the inferred type of every
// parameter and projection column, and the client-declared parameter
// OIDs with any Eql entries swapped for the JSONB OID
// (§4.7 — Parse's types[] update).
type PreparedStatement struct {
	Name string

	// SQL is the rewritten statement text forwarded to the backend.
	SQL string

	Stmt sqlast.Statement
	Res  *typeinfer.Result

	// ParamOIDs mirrors Parse's ParameterOIDs, with encrypted
	// parameter positions replaced by the JSONB OID (§6).
	ParamOIDs []uint32

	// ParamTypes holds the inferred type of each $n parameter,
	// 0-indexed, nil where inference couldn't resolve one.
	ParamTypes []*typeinfer.Type
}

// IsEqlParam reports whether the i'th parameter (0-indexed) carries
// an encrypted value needing Bind-time encryption.
func (p *PreparedStatement) IsEqlParam(i int) bool {
	if i < 0 || i >= len(p.ParamTypes) {
		return false
	}
	return p.ParamTypes[i].IsEql()
}

// Portal is a Bind'd instance of a PreparedStatement: concrete
// parameter values (tracked by the pipeline, not here) plus the
// result-column formats negotiated for this portal's rows.
type Portal struct {
	Name      string
	Statement *PreparedStatement

	ParamFormats  []int16
	ResultFormats []int16

	// Suspended marks a portal that returned PortalSuspended and may
	// still be re-Executed for more rows.
	Suspended bool
}
