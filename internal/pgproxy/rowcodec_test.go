package pgproxy

import (
	"context"
	"testing"

	"github.com/cloudshield/eqlproxy/internal/eql"
	"github.com/cloudshield/eqlproxy/internal/session"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
)

func TestEncryptParamsOnlyTouchesEqlPositions(t *testing.T) {
	fc := &fakeCryptor{}
	stmt := &session.PreparedStatement{
		ParamTypes: []*typeinfer.Type{typeinfer.NewNative(nil), typeinfer.NewEql("users", "email")},
	}
	values := [][]byte{[]byte("123"), []byte("a@example.com")}

	out, formats, err := encryptParams(context.Background(), fc, stmt, nil, values)
	if err != nil {
		t.Fatalf("encryptParams: %v", err)
	}
	if string(out[0]) != "123" {
		t.Errorf("expected native param untouched, got %q", out[0])
	}
	if string(out[1]) == "a@example.com" {
		t.Error("expected the eql param to be replaced by a ciphertext envelope")
	}
	if fc.encryptCalls != 1 {
		t.Errorf("expected exactly one batched Encrypt call, got %d", fc.encryptCalls)
	}
	if formats[1] != 0 {
		t.Error("expected the rewritten eql param to be marked text format")
	}
}

func TestEncryptParamsNoEqlPositionsIsNoop(t *testing.T) {
	fc := &fakeCryptor{}
	stmt := &session.PreparedStatement{
		ParamTypes: []*typeinfer.Type{typeinfer.NewNative(nil)},
	}
	values := [][]byte{[]byte("123")}

	out, _, err := encryptParams(context.Background(), fc, stmt, nil, values)
	if err != nil {
		t.Fatalf("encryptParams: %v", err)
	}
	if fc.encryptCalls != 0 {
		t.Errorf("expected no Encrypt call when no param is eql-typed, got %d", fc.encryptCalls)
	}
	if string(out[0]) != "123" {
		t.Errorf("expected values unchanged, got %q", out[0])
	}
}

func TestEncryptParamsRejectsBinaryFormatForEqlParam(t *testing.T) {
	fc := &fakeCryptor{}
	stmt := &session.PreparedStatement{
		ParamTypes: []*typeinfer.Type{typeinfer.NewEql("users", "email")},
	}
	values := [][]byte{[]byte("a@example.com")}

	if _, _, err := encryptParams(context.Background(), fc, stmt, []int16{1}, values); err == nil {
		t.Fatal("expected binary-format encrypted parameter to be rejected")
	}
}

func TestDecryptRowOnlyTouchesEqlProjectionColumns(t *testing.T) {
	fc := &fakeCryptor{}
	cols := []typeinfer.ProjectionColumn{
		{Alias: "id", Type: typeinfer.NewNative(nil)},
		{Alias: "email", Type: typeinfer.NewEql("users", "email")},
	}
	envelope, err := eql.MarshalCiphertext(eql.Ciphertext{
		C:     "a@example.com",
		Ident: eql.IdentSpec{Table: "users", Column: "email"},
	})
	if err != nil {
		t.Fatalf("marshaling test ciphertext: %v", err)
	}
	values := [][]byte{[]byte("123"), envelope}

	out, err := decryptRow(context.Background(), fc, cols, values)
	if err != nil {
		t.Fatalf("decryptRow: %v", err)
	}
	if string(out[0]) != "123" {
		t.Errorf("expected native column untouched, got %q", out[0])
	}
	if string(out[1]) != "a@example.com" {
		t.Errorf("unexpected decrypted value: %q", out[1])
	}
}

func TestWidenNumericToNumericReformatsDecimal(t *testing.T) {
	got, err := widenNumeric("3.140", "numeric")
	if err != nil {
		t.Fatalf("widenNumeric: %v", err)
	}
	if got != "3.14" {
		t.Errorf("expected normalized decimal text %q, got %q", "3.14", got)
	}
}

func TestWidenNumericPassesThroughOtherKinds(t *testing.T) {
	got, err := widenNumeric("42", "int8")
	if err != nil {
		t.Fatalf("widenNumeric: %v", err)
	}
	if got != "42" {
		t.Errorf("expected unchanged text for a non-numeric target, got %q", got)
	}
}

func TestWidenNumericRejectsMalformedDecimal(t *testing.T) {
	if _, err := widenNumeric("not-a-number", "numeric"); err == nil {
		t.Fatal("expected an error widening malformed decimal text")
	}
}

func TestFormatAtDefaultsAndBroadcasts(t *testing.T) {
	if formatAt(nil, 3) != 0 {
		t.Error("expected default text format when no formats are given")
	}
	if formatAt([]int16{1}, 5) != 1 {
		t.Error("expected a single format entry to broadcast to every position")
	}
	if formatAt([]int16{0, 1}, 1) != 1 {
		t.Error("expected a per-position format to be honored")
	}
}
