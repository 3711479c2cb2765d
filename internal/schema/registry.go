// Package schema holds the process-wide, hot-reloadable mapping of
// (table, column) -> {native, encrypted(config)} that the type inferencer
// consults to decide which AST nodes carry EQL values.
package schema

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cloudshield/eqlproxy/internal/eql"
)

// ColumnSpec describes how a single column is stored.
type ColumnSpec struct {
	Encrypted bool
	// CastType is the logical Postgres type the client sees for an
	// encrypted column ("text", "int4", "jsonb", ...). Empty for native
	// columns.
	CastType string
	Indexes  map[eql.IndexKind]struct{}
}

// Native reports whether this column is untouched plaintext.
func (c ColumnSpec) Native() bool { return !c.Encrypted }

// HasIndex reports whether the column carries the given searchable
// index kind.
func (c ColumnSpec) HasIndex(k eql.IndexKind) bool {
	_, ok := c.Indexes[k]
	return ok
}

// Table is the set of columns known for one table.
type Table struct {
	Name string
	// Order lists column names in declared order, for `*` expansion.
	Order   []string
	Columns map[string]ColumnSpec
}

// ErrTableNotFound and ErrUnknownColumn are the registry's two lookup
// failure kinds (§4.3); the mapper turns both into Mapping-kind faults
// surfaced as ErrorResponse.
type ErrTableNotFound struct{ Table string }

func (e *ErrTableNotFound) Error() string { return fmt.Sprintf("relation %q does not exist", e.Table) }

type ErrUnknownColumn struct {
	Table, Column string
}

func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("column %q of relation %q does not exist", e.Column, e.Table)
}

// fold normalizes an identifier the way Postgres does: lower-cased unless
// quoted. Callers pass quoted=true when the identifier came from a
// double-quoted SQL token.
func fold(ident string, quoted bool) string {
	if quoted {
		return ident
	}
	return strings.ToLower(ident)
}

// snapshot is the immutable point-in-time schema, swapped atomically on
// reload. The pattern mirrors the lock-free read / serialized-write
// snapshot swap the rest of this codebase uses for the same reason:
// schema lookups sit on the hot path of every Parse/Query message.
type snapshot struct {
	tables map[string]*Table
}

func toSnapshot(tables []*Table) *snapshot {
	snap := &snapshot{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		snap.tables[strings.ToLower(t.Name)] = t
	}
	return snap
}

// Registry is the shared, process-wide schema cache. Reads are lock-free;
// Reload swaps in an entirely new snapshot, visible immediately to every
// SessionView derived from this Registry.
type Registry struct {
	cur atomic.Pointer[snapshot]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.cur.Store(toSnapshot(nil))
	return r
}

// NewWithTables creates a registry pre-populated with the given tables.
func NewWithTables(tables []*Table) *Registry {
	r := &Registry{}
	r.cur.Store(toSnapshot(tables))
	return r
}

// Reload atomically replaces the shared snapshot. Never blocks a reader.
func (r *Registry) Reload(tables []*Table) {
	r.cur.Store(toSnapshot(tables))
}

func (r *Registry) resolveTable(name string, quoted bool) (*Table, error) {
	snap := r.cur.Load()
	t, ok := snap.tables[fold(name, quoted)]
	if !ok {
		return nil, &ErrTableNotFound{Table: name}
	}
	return t, nil
}

// SessionView is the per-connection wrapper described in §3/§4.3 as the
// "editable" variant: it resolves against the shared Registry but
// additionally tracks CREATE TABLE statements observed on this
// connection, so later statements on the same connection see the new
// table immediately. ALTER TABLE is not observed: a column added that
// way stays unknown to the view. It is created fresh per client
// connection and discarded at disconnect.
type SessionView struct {
	base    *Registry
	overlay map[string]*Table
}

// NewSessionView opens a per-connection view over the shared registry.
func (r *Registry) NewSessionView() *SessionView {
	return &SessionView{base: r}
}

// ResolveTable returns the table definition for name, checking the
// connection-local DDL overlay first.
func (v *SessionView) ResolveTable(name string, quoted bool) (*Table, error) {
	key := fold(name, quoted)
	if t, ok := v.overlay[key]; ok {
		return t, nil
	}
	return v.base.resolveTable(name, quoted)
}

// ResolveTableColumns returns every column of a table in declared order,
// used to expand unqualified and qualified `*` wildcards.
func (v *SessionView) ResolveTableColumns(name string, quoted bool) ([]string, error) {
	t, err := v.ResolveTable(name, quoted)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Order))
	copy(out, t.Order)
	return out, nil
}

// ResolveColumn returns the ColumnSpec for table.column.
func (v *SessionView) ResolveColumn(table, column string, tableQuoted, columnQuoted bool) (ColumnSpec, error) {
	t, err := v.ResolveTable(table, tableQuoted)
	if err != nil {
		return ColumnSpec{}, err
	}
	key := fold(column, columnQuoted)
	spec, ok := t.Columns[key]
	if !ok {
		return ColumnSpec{}, &ErrUnknownColumn{Table: table, Column: column}
	}
	return spec, nil
}

// ObserveDDL records a table shape seen via CREATE TABLE on this
// connection. Invisible to any other session.
func (v *SessionView) ObserveDDL(t *Table) {
	if v.overlay == nil {
		v.overlay = map[string]*Table{}
	}
	v.overlay[strings.ToLower(t.Name)] = t
}

// Snapshot returns the full set of tables currently visible to this
// session (base registry tables overridden by the DDL overlay), used by
// the admin API's schema introspection endpoint.
func (v *SessionView) Snapshot() []*Table {
	snap := v.base.cur.Load()
	merged := make(map[string]*Table, len(snap.tables)+len(v.overlay))
	for k, t := range snap.tables {
		merged[k] = t
	}
	for k, t := range v.overlay {
		merged[k] = t
	}
	out := make([]*Table, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	return out
}
