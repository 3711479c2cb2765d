package pgproxy

import "github.com/cloudshield/eqlproxy/internal/eql"

// logicalOID maps a column's configured cast_type (§3/§6) to the OID
// the client sees in RowDescription/ParameterDescription, so an
// encrypted column presents as its declared logical type rather than
// the jsonb envelope it's physically stored as.
func logicalOID(castType string) (uint32, bool) {
	return eql.CastTypeOID(castType)
}
