package pgerror

import "testing"

func TestKindFatal(t *testing.T) {
	cases := []struct {
		k     Kind
		fatal bool
	}{
		{Protocol, true},
		{Mapping, false},
		{Encryption, false},
		{ConfigIO, false},
		{AuthPolicy, true},
	}
	for _, c := range cases {
		if got := c.k.Fatal(); got != c.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", c.k, got, c.fatal)
		}
	}
}

func TestUnknownColumnCode(t *testing.T) {
	err := UnknownColumn("users", "emali")
	if err.Code != "unknown_column" {
		t.Errorf("expected code unknown_column, got %s", err.Code)
	}
	resp := ToErrorResponse(err)
	if resp.Severity != "ERROR" {
		t.Errorf("expected ERROR severity, got %s", resp.Severity)
	}
}

func TestAuthPolicyIsFatal(t *testing.T) {
	err := AuthPolicyf("SET CIPHERSTASH.KEYSET_ID is not permitted: a default keyset is configured")
	resp := ToErrorResponse(err)
	if resp.Severity != "FATAL" {
		t.Errorf("expected FATAL severity, got %s", resp.Severity)
	}
}

func TestFromGenericDefaultsToFatalProtocol(t *testing.T) {
	err := FromGeneric(errString("boom"))
	if err.Kind != Protocol {
		t.Errorf("expected Protocol kind for an unclassified error, got %s", err.Kind)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
