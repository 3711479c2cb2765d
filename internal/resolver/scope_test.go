package resolver

import (
	"testing"

	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
)

func testView() *schema.SessionView {
	reg := schema.NewWithTables([]*schema.Table{
		{
			Name:  "users",
			Order: []string{"id", "email", "name"},
			Columns: map[string]schema.ColumnSpec{
				"id":    {},
				"email": {Encrypted: true, CastType: "text"},
				"name":  {},
			},
		},
		{
			Name:  "orders",
			Order: []string{"id", "user_id", "total"},
			Columns: map[string]schema.ColumnSpec{
				"id":      {},
				"user_id": {},
				"total":   {},
			},
		},
	})
	return reg.NewSessionView()
}

func noopExpose(q *sqlast.Query) ([]string, []ColumnType, error) {
	return nil, nil, nil
}

func TestResolveQualifiedColumnByTableName(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	rel, name, err := scope.ResolveColumn(&sqlast.ColumnRef{Qualifiers: []string{"users"}, Name: "email"})
	if err != nil {
		t.Fatalf("ResolveColumn: %v", err)
	}
	if name != "email" || rel.Table.Name != "users" {
		t.Errorf("unexpected resolution: rel=%+v name=%s", rel, name)
	}
}

func TestResolveQualifiedColumnUnknownInRelation(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	_, _, err = scope.ResolveColumn(&sqlast.ColumnRef{Qualifiers: []string{"users"}, Name: "nickname"})
	if err == nil {
		t.Fatal("expected an error resolving an unknown column on a known relation")
	}
	if _, ok := err.(*ScopeError); !ok {
		t.Fatalf("expected *ScopeError, got %T", err)
	}
}

func TestResolveUnqualifiedColumnUniqueMatch(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "orders"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	rel, name, err := scope.ResolveColumn(&sqlast.ColumnRef{Name: "total"})
	if err != nil {
		t.Fatalf("ResolveColumn: %v", err)
	}
	if name != "total" || rel.Table.Name != "orders" {
		t.Errorf("unexpected resolution: rel=%+v name=%s", rel, name)
	}
}

// A join across two relations sharing an "id" column makes an
// unqualified reference to "id" ambiguous.
func TestResolveUnqualifiedColumnAmbiguousAcrossJoin(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.Join{
			Left:  &sqlast.TableRef{Table: "users"},
			Right: &sqlast.TableRef{Table: "orders"},
		},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	_, _, err = scope.ResolveColumn(&sqlast.ColumnRef{Name: "id"})
	if err == nil {
		t.Fatal("expected an ambiguous column reference error")
	}
	se, ok := err.(*ScopeError)
	if !ok {
		t.Fatalf("expected *ScopeError, got %T", err)
	}
	if se.Ident != "id" {
		t.Errorf("expected error ident %q, got %q", "id", se.Ident)
	}
}

func TestResolveUnqualifiedColumnUnknownInScope(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	_, _, err = scope.ResolveColumn(&sqlast.ColumnRef{Name: "ghost"})
	if err == nil {
		t.Fatal("expected an error for a column unknown to every relation in scope")
	}
}

// A correlated subquery's inner scope falls back to its parent when a
// column isn't found locally.
func TestResolveColumnFallsBackToParentScope(t *testing.T) {
	outer, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope(outer): %v", err)
	}
	inner, err := BuildFromScope(testView(), outer, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "orders"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope(inner): %v", err)
	}
	rel, name, err := inner.ResolveColumn(&sqlast.ColumnRef{Name: "email"})
	if err != nil {
		t.Fatalf("expected correlated lookup to fall back to the outer scope: %v", err)
	}
	if name != "email" || rel.Table.Name != "users" {
		t.Errorf("unexpected resolution: rel=%+v name=%s", rel, name)
	}
}

func TestResolveTableAliasBinding(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users", Alias: "u"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	if _, _, err := scope.ResolveColumn(&sqlast.ColumnRef{Qualifiers: []string{"u"}, Name: "email"}); err != nil {
		t.Fatalf("expected alias-qualified lookup to succeed: %v", err)
	}
	if _, err := scope.ResolveQualified("users"); err == nil {
		t.Error("expected the unaliased table name to no longer resolve once aliased")
	}
}

func TestExpandWildcardOverSingleRelationDeclaredOrder(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "users"},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	cols, err := scope.ExpandWildcard(&sqlast.Wildcard{})
	if err != nil {
		t.Fatalf("ExpandWildcard: %v", err)
	}
	want := []string{"id", "email", "name"}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i, w := range want {
		if cols[i].Column != w {
			t.Errorf("column %d: expected %q, got %q", i, w, cols[i].Column)
		}
	}
}

func TestExpandQualifiedWildcardOnlyCoversOneRelation(t *testing.T) {
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.Join{
			Left:  &sqlast.TableRef{Table: "users"},
			Right: &sqlast.TableRef{Table: "orders"},
		},
	}, nil, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	cols, err := scope.ExpandWildcard(&sqlast.Wildcard{Qualifier: "orders"})
	if err != nil {
		t.Fatalf("ExpandWildcard: %v", err)
	}
	want := []string{"id", "user_id", "total"}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i, w := range want {
		if cols[i].Column != w {
			t.Errorf("column %d: expected %q, got %q", i, w, cols[i].Column)
		}
	}
}

func TestCTEResolvesAsRelationByName(t *testing.T) {
	cte := Relation{Binding: "recent", Columns: []string{"id", "total"}}
	scope, err := BuildFromScope(testView(), nil, []sqlast.TableExpr{
		&sqlast.TableRef{Table: "recent"},
	}, map[string]Relation{"recent": cte}, noopExpose)
	if err != nil {
		t.Fatalf("BuildFromScope: %v", err)
	}
	rel, name, err := scope.ResolveColumn(&sqlast.ColumnRef{Qualifiers: []string{"recent"}, Name: "total"})
	if err != nil {
		t.Fatalf("ResolveColumn: %v", err)
	}
	if name != "total" || rel.Binding != "recent" {
		t.Errorf("unexpected resolution: rel=%+v name=%s", rel, name)
	}
}
