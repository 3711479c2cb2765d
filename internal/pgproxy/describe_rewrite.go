package pgproxy

import (
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/session"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
)

// rewriteParameterDescription swaps each Eql-typed parameter's OID for
// its declared logical OID (§4.7's ParameterDescription action, §6).
func rewriteParameterDescription(m *pgproto3.ParameterDescription, stmt *session.PreparedStatement, view *schema.SessionView) {
	if stmt == nil {
		return
	}
	for i, t := range stmt.ParamTypes {
		if i >= len(m.ParameterOIDs) || !t.IsEql() {
			continue
		}
		tc, _ := t.EqlColumn()
		col, err := view.ResolveColumn(tc.Table, tc.Column, false, false)
		if err != nil {
			continue
		}
		if oid, ok := logicalOID(col.CastType); ok {
			m.ParameterOIDs[i] = oid
		}
	}
}

// rewriteRowDescription rewrites a statement-level Describe's
// RowDescription against its own projection.
func rewriteRowDescription(m *pgproto3.RowDescription, stmt *session.PreparedStatement, view *schema.SessionView) {
	if stmt == nil {
		return
	}
	rewriteRowDescriptionFields(m, stmt.Res.Projection, view)
}

// rewriteRowDescriptionFields rewrites every Eql-typed field's OID to
// its declared logical type and clears its source-table attribution,
// since the physical column it names no longer corresponds one-to-one
// to the logical value the client receives (§4.7's RowDescription
// action).
func rewriteRowDescriptionFields(m *pgproto3.RowDescription, cols []typeinfer.ProjectionColumn, view *schema.SessionView) {
	for i := range m.Fields {
		if i >= len(cols) || !cols[i].Type.IsEql() {
			continue
		}
		tc, _ := cols[i].Type.EqlColumn()
		col, err := view.ResolveColumn(tc.Table, tc.Column, false, false)
		if err != nil {
			continue
		}
		if oid, ok := logicalOID(col.CastType); ok {
			m.Fields[i].DataTypeOID = oid
		}
		m.Fields[i].TableOID = 0
		m.Fields[i].TableAttributeNumber = 0
		m.Fields[i].Format = 0
	}
}
