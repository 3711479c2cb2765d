package eql

// Postgres type OIDs relevant to EQL columns. Mirrors the well-known
// builtin OIDs from pg_type; kept local rather than importing pgtype's
// full catalog since the proxy only ever needs this small fixed set.
const (
	OIDBool        = 16
	OIDInt2        = 21
	OIDInt4        = 23
	OIDInt8        = 20
	OIDText        = 25
	OIDJSONB       = 3802
	OIDFloat8      = 701
	OIDNumeric     = 1700
	OIDDate        = 1082
	OIDTimestampTZ = 1184
)

// CastTypeOID maps a ColumnSpec's declared cast_type to the Postgres OID
// the client should see for that logical column (§6, Declared logical
// OIDs).
func CastTypeOID(castType string) (uint32, bool) {
	switch castType {
	case "bool", "boolean":
		return OIDBool, true
	case "int2", "smallint":
		return OIDInt2, true
	case "int4", "integer", "int":
		return OIDInt4, true
	case "int8", "bigint":
		return OIDInt8, true
	case "float8", "double precision":
		return OIDFloat8, true
	case "numeric", "decimal":
		return OIDNumeric, true
	case "date":
		return OIDDate, true
	case "timestamp", "timestamptz":
		return OIDTimestampTZ, true
	case "text", "varchar":
		return OIDText, true
	case "jsonb":
		return OIDJSONB, true
	default:
		return 0, false
	}
}
