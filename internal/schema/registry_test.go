package schema

import (
	"testing"

	"github.com/cloudshield/eqlproxy/internal/eql"
)

func sampleTables() []*Table {
	return []*Table{
		{
			Name:  "Users",
			Order: []string{"id", "Email"},
			Columns: map[string]ColumnSpec{
				"id":    {},
				"email": {Encrypted: true, CastType: "text", Indexes: map[eql.IndexKind]struct{}{eql.Match: {}}},
			},
		},
	}
}

func TestResolveTableIsCaseInsensitiveUnlessQuoted(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()

	if _, err := view.ResolveTable("USERS", false); err != nil {
		t.Errorf("unquoted uppercase lookup should fold to lowercase: %v", err)
	}
	if _, err := view.ResolveTable("Users", true); err == nil {
		t.Error("quoted lookup with wrong case should not match")
	}
}

func TestResolveColumnUnknownColumn(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()

	_, err := view.ResolveColumn("users", "nickname", false, false)
	uc, ok := err.(*ErrUnknownColumn)
	if !ok {
		t.Fatalf("expected *ErrUnknownColumn, got %T: %v", err, err)
	}
	if uc.Table != "users" || uc.Column != "nickname" {
		t.Errorf("unexpected error fields: %+v", uc)
	}
}

func TestResolveTableNotFound(t *testing.T) {
	reg := New()
	view := reg.NewSessionView()

	_, err := view.ResolveTable("ghost", false)
	if _, ok := err.(*ErrTableNotFound); !ok {
		t.Fatalf("expected *ErrTableNotFound, got %T: %v", err, err)
	}
}

func TestResolveColumnReportsEncryptedSpec(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()

	spec, err := view.ResolveColumn("users", "email", false, false)
	if err != nil {
		t.Fatalf("ResolveColumn: %v", err)
	}
	if spec.Native() {
		t.Error("expected email to be encrypted")
	}
	if !spec.HasIndex(eql.Match) {
		t.Error("expected email to carry the match index")
	}
	if spec.HasIndex(eql.Ore) {
		t.Error("email should not carry an ore index")
	}
}

func TestReloadSwapsSnapshotAtomically(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()

	if _, err := view.ResolveTable("users", false); err != nil {
		t.Fatalf("expected users to resolve before reload: %v", err)
	}

	reg.Reload(nil)

	if _, err := view.ResolveTable("users", false); err == nil {
		t.Error("expected users to be gone after reloading an empty schema")
	}
}

func TestSessionViewDDLOverlayIsPerConnection(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()
	other := reg.NewSessionView()

	view.ObserveDDL(&Table{
		Name:    "sessions",
		Order:   []string{"token"},
		Columns: map[string]ColumnSpec{"token": {}},
	})

	if _, err := view.ResolveTable("sessions", false); err != nil {
		t.Errorf("expected session-local DDL overlay to resolve: %v", err)
	}
	if _, err := other.ResolveTable("sessions", false); err == nil {
		t.Error("expected the DDL overlay to be invisible to a different session")
	}
}

func TestSnapshotMergesOverlayOverBase(t *testing.T) {
	reg := NewWithTables(sampleTables())
	view := reg.NewSessionView()
	view.ObserveDDL(&Table{Name: "users", Order: []string{"id"}, Columns: map[string]ColumnSpec{"id": {}}})

	snap := view.Snapshot()
	var found *Table
	for _, tbl := range snap {
		if tbl.Name == "users" {
			found = tbl
		}
	}
	if found == nil {
		t.Fatal("expected users in snapshot")
	}
	if len(found.Order) != 1 {
		t.Errorf("expected overlay version of users (1 column), got %d", len(found.Order))
	}
}
