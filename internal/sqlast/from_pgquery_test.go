package sqlast

import "testing"

func parseOne(t *testing.T, sql string) Statement {
	t.Helper()
	stmts, err := Parse(sql)
	if err != nil {
		t.Fatalf("parsing %q: %v", sql, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	return stmts[0]
}

func TestParseSimpleSelectProducesQuery(t *testing.T) {
	stmt := parseOne(t, "SELECT id, email FROM users WHERE id = $1")
	q, ok := stmt.(*Query)
	if !ok {
		t.Fatalf("expected *Query, got %T", stmt)
	}
	sel, ok := q.Body.(*Select)
	if !ok {
		t.Fatalf("expected *Select body, got %T", q.Body)
	}
	if len(sel.Projection) != 2 {
		t.Fatalf("expected 2 projection items, got %d", len(sel.Projection))
	}
	if sel.Where == nil {
		t.Fatal("expected a WHERE clause")
	}
}

func TestParseInsertStatement(t *testing.T) {
	stmt := parseOne(t, "INSERT INTO users(id, email) VALUES ($1, $2)")
	ins, ok := stmt.(*InsertStatement)
	if !ok {
		t.Fatalf("expected *InsertStatement, got %T", stmt)
	}
	if ins.Table.Table != "users" {
		t.Errorf("expected table users, got %q", ins.Table.Table)
	}
	if len(ins.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(ins.Columns))
	}
}

func TestParseUpdateStatement(t *testing.T) {
	stmt := parseOne(t, "UPDATE users SET email = $1 WHERE id = $2")
	upd, ok := stmt.(*UpdateStatement)
	if !ok {
		t.Fatalf("expected *UpdateStatement, got %T", stmt)
	}
	if upd.Table.Table != "users" {
		t.Errorf("expected table users, got %q", upd.Table.Table)
	}
	if len(upd.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(upd.Assignments))
	}
}

func TestParseDeleteStatement(t *testing.T) {
	stmt := parseOne(t, "DELETE FROM users WHERE id = $1")
	del, ok := stmt.(*DeleteStatement)
	if !ok {
		t.Fatalf("expected *DeleteStatement, got %T", stmt)
	}
	if del.Table.Table != "users" {
		t.Errorf("expected table users, got %q", del.Table.Table)
	}
}

func TestParseSetStatement(t *testing.T) {
	stmt := parseOne(t, "SET cipherstash.keyset_id = 'prod'")
	set, ok := stmt.(*SetStatement)
	if !ok {
		t.Fatalf("expected *SetStatement, got %T", stmt)
	}
	if set.Name != "cipherstash.keyset_id" {
		t.Errorf("unexpected SET name: %q", set.Name)
	}
}

func TestParseMultipleStatementsInOneBatch(t *testing.T) {
	stmts, err := Parse("SELECT 1; SELECT 2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
}

func TestParseInvalidSQLReturnsError(t *testing.T) {
	if _, err := Parse("SELEKT * FORM nowhere"); err == nil {
		t.Fatal("expected a parse error for malformed SQL")
	}
}

func TestParseJoinProducesJoinTableExpr(t *testing.T) {
	stmt := parseOne(t, "SELECT u.id FROM users u JOIN orders o ON u.id = o.user_id")
	q := stmt.(*Query)
	sel := q.Body.(*Select)
	if len(sel.From) != 1 {
		t.Fatalf("expected 1 FROM entry, got %d", len(sel.From))
	}
	join, ok := sel.From[0].(*Join)
	if !ok {
		t.Fatalf("expected *Join, got %T", sel.From[0])
	}
	if join.On == nil {
		t.Fatal("expected a join ON condition")
	}
}

func TestParseWildcardProjection(t *testing.T) {
	stmt := parseOne(t, "SELECT * FROM users")
	q := stmt.(*Query)
	sel := q.Body.(*Select)
	if len(sel.Projection) != 1 || sel.Projection[0].Wildcard == nil {
		t.Fatalf("expected a single wildcard projection item, got %+v", sel.Projection)
	}
}
