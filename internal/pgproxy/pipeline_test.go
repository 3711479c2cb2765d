package pgproxy

import (
	"context"
	"testing"

	"github.com/cloudshield/eqlproxy/internal/eql"
	"github.com/cloudshield/eqlproxy/internal/pgerror"
	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
)

// fakeCryptor is the in-memory stand-in for the external Cryptor
// capability: it "encrypts" a plaintext target by prefixing it with "enc:",
// just enough to exercise the pipeline's batching and ordering without
// a real keyset service (§6).
type fakeCryptor struct {
	encryptCalls int
}

func (f *fakeCryptor) Encrypt(ctx context.Context, targets []eql.PlaintextTarget) ([]eql.Ciphertext, error) {
	f.encryptCalls++
	out := make([]eql.Ciphertext, len(targets))
	for i, t := range targets {
		out[i] = eql.Ciphertext{Kind: "ct", C: "enc:" + t.Plaintext, Ident: t.Ident, Version: t.Version}
	}
	return out, nil
}

func (f *fakeCryptor) Decrypt(ctx context.Context, records []eql.Ciphertext) ([]eql.PlaintextTarget, error) {
	out := make([]eql.PlaintextTarget, len(records))
	for i, r := range records {
		out[i] = eql.PlaintextTarget{Plaintext: r.C, Ident: r.Ident, Version: r.Version}
	}
	return out, nil
}

func testSessionView() *schema.SessionView {
	reg := schema.NewWithTables([]*schema.Table{
		{
			Name:  "users",
			Order: []string{"id", "email"},
			Columns: map[string]schema.ColumnSpec{
				"id":    {},
				"email": {Encrypted: true, CastType: "text"},
			},
		},
	})
	return reg.NewSessionView()
}

func parseOneStatement(t *testing.T, sql string) sqlast.Statement {
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

func TestPrepareEncryptsLiteralInWhereClause(t *testing.T) {
	fc := &fakeCryptor{}
	p := &pipeline{view: testSessionView(), cryptor: fc}

	stmt := parseOneStatement(t, "SELECT id FROM users WHERE email = 'a@example.com'")
	sql, res, err := p.prepare(context.Background(), stmt)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if fc.encryptCalls != 1 {
		t.Fatalf("expected exactly one Encrypt batch call, got %d", fc.encryptCalls)
	}
	if res.ParamCount() != 0 {
		t.Fatalf("expected no params, got %d", res.ParamCount())
	}
	if sql == "" {
		t.Fatal("expected rewritten SQL")
	}
}

func TestKeysetPolicyRejectsOverrideWhenDefaultConfigured(t *testing.T) {
	p := &pipeline{
		view:          testSessionView(),
		cryptor:       &fakeCryptor{},
		defaultKeyset: "prod",
	}

	stmt := parseOneStatement(t, "SET cipherstash.keyset_id = 'alt'")
	_, _, err := p.prepare(context.Background(), stmt)
	if err == nil {
		t.Fatal("expected keyset override to be rejected")
	}
	pe, ok := err.(*pgerror.Error)
	if !ok {
		t.Fatalf("expected *pgerror.Error, got %T", err)
	}
	if pe.Kind != pgerror.AuthPolicy {
		t.Fatalf("expected AuthPolicy kind, got %s", pe.Kind)
	}
	if !pe.Fatal() {
		t.Fatal("expected AuthPolicy fault to be fatal")
	}
}

func TestKeysetPolicyAllowsOverrideWhenNoDefaultConfigured(t *testing.T) {
	p := &pipeline{view: testSessionView(), cryptor: &fakeCryptor{}}

	stmt := parseOneStatement(t, "SET cipherstash.keyset_id = 'alt'")
	if _, _, err := p.prepare(context.Background(), stmt); err != nil {
		t.Fatalf("expected no error with no default keyset configured, got %v", err)
	}
}

func TestKeysetPolicyAllowsOtherSetStatements(t *testing.T) {
	p := &pipeline{
		view:          testSessionView(),
		cryptor:       &fakeCryptor{},
		defaultKeyset: "prod",
	}

	stmt := parseOneStatement(t, "SET search_path = public")
	if _, _, err := p.prepare(context.Background(), stmt); err != nil {
		t.Fatalf("expected unrelated SET to pass through, got %v", err)
	}
}
