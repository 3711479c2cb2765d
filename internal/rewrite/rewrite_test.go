package rewrite

import (
	"strings"
	"testing"

	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
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
	})
	return reg.NewSessionView()
}

func parseOne(t *testing.T, sql string) sqlast.Statement {
	t.Helper()
	stmts, err := sqlast.Parse(sql)
	if err != nil {
		t.Fatalf("parsing %q: %v", sql, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	return stmts[0]
}

func TestGroupByEqlColWrapsOre(t *testing.T) {
	stmt := parseOne(t, "SELECT email FROM users GROUP BY email")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	out := sqlast.RenderStatement(stmt)
	if !strings.Contains(out, "eql_v1.ore_block_u64_8_256") {
		t.Errorf("expected GROUP BY key wrapped in ore fn, got: %s", out)
	}
	if !strings.Contains(out, "eql_v1.grouped_value") {
		t.Errorf("expected projected encrypted column wrapped in grouped_value, got: %s", out)
	}
}

func TestOrderByEqlColWrapsOre(t *testing.T) {
	stmt := parseOne(t, "SELECT id FROM users ORDER BY email")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	out := sqlast.RenderStatement(stmt)
	if !strings.Contains(out, "eql_v1.ore_block_u64_8_256") {
		t.Errorf("expected ORDER BY key wrapped in ore fn, got: %s", out)
	}
}

func TestPreserveEffectiveAliasAfterGroupWrap(t *testing.T) {
	stmt := parseOne(t, "SELECT email FROM users GROUP BY email")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	sel := stmt.(*sqlast.Query).Body.(*sqlast.Select)
	if len(sel.Projection) != 1 {
		t.Fatalf("expected 1 projection item, got %d", len(sel.Projection))
	}
	if sel.Projection[0].Alias != "email" {
		t.Errorf("expected alias 'email' preserved after wrapping, got %q", sel.Projection[0].Alias)
	}
}

func TestReplacePlaintextEqlLiterals(t *testing.T) {
	stmt := parseOne(t, "SELECT id FROM users WHERE email = 'alice@example.com'")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}
	if len(res.EqlLiterals) != 1 {
		t.Fatalf("expected 1 eql literal candidate, got %d", len(res.EqlLiterals))
	}

	ciphertexts := map[*sqlast.Literal]string{
		res.EqlLiterals[0].Lit: `{"c":"mBbL...","i":{"t":"users","c":"email"}}`,
	}

	ctx := NewContext(stmt, res, ciphertexts)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	out := sqlast.RenderStatement(stmt)
	if strings.Contains(out, "alice@example.com") {
		t.Errorf("expected plaintext literal gone, got: %s", out)
	}
	if !strings.Contains(out, "::jsonb") {
		t.Errorf("expected ciphertext spliced in as a jsonb literal, got: %s", out)
	}
}

func TestUseEquivalentSqlFuncForEqlTypes(t *testing.T) {
	stmt := parseOne(t, "SELECT max(email) FROM users")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	out := sqlast.RenderStatement(stmt)
	if !strings.Contains(out, "eql_v1.max") {
		t.Errorf("expected max() rewritten to its EQL-aware counterpart, got: %s", out)
	}
}

func TestNativeColumnsUntouched(t *testing.T) {
	stmt := parseOne(t, "SELECT id, name FROM users WHERE id = 1 GROUP BY id, name ORDER BY name")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	out := sqlast.RenderStatement(stmt)
	if strings.Contains(out, "eql_v1") {
		t.Errorf("expected no EQL wrapping for an all-native statement, got: %s", out)
	}
}

func TestPipelineIsIdempotent(t *testing.T) {
	stmt := parseOne(t, "SELECT email FROM users GROUP BY email ORDER BY email")

	res, err := typeinfer.InferStatement(stmt, testView())
	if err != nil {
		t.Fatalf("InferStatement: %v", err)
	}

	ctx := NewContext(stmt, res, nil)
	if err := Rewrite(ctx); err != nil {
		t.Fatalf("first Rewrite: %v", err)
	}
	first := sqlast.RenderStatement(stmt)

	// Running the same pipeline again over the already-rewritten AST
	// (reusing the same Result, which still names the original nodes)
	// must not double-wrap anything.
	if err := DefaultPipeline().Run(ctx); err != nil {
		t.Fatalf("second Rewrite: %v", err)
	}
	second := sqlast.RenderStatement(stmt)

	if first != second {
		t.Errorf("pipeline not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}
