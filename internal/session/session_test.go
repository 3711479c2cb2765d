package session

import "testing"

func TestParseBindExecuteCycleReturnsToIdle(t *testing.T) {
	s := New()

	if err := s.BeginParse(&PreparedStatement{Name: ""}); err != nil {
		t.Fatalf("BeginParse: %v", err)
	}
	if s.State() != Parsing {
		t.Fatalf("expected Parsing, got %s", s.State())
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatalf("ParseComplete: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle after ParseComplete, got %s", s.State())
	}

	if _, err := s.BeginBind("", ""); err != nil {
		t.Fatalf("BeginBind: %v", err)
	}
	if s.State() != Bound {
		t.Fatalf("expected Bound, got %s", s.State())
	}
	if err := s.BindComplete(); err != nil {
		t.Fatalf("BindComplete: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle after BindComplete, got %s", s.State())
	}

	if _, err := s.BeginExecute(""); err != nil {
		t.Fatalf("BeginExecute: %v", err)
	}
	if s.State() != Executing {
		t.Fatalf("expected Executing, got %s", s.State())
	}
	if err := s.EndExecute(false); err != nil {
		t.Fatalf("EndExecute: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle after EndExecute, got %s", s.State())
	}
}

func TestDescribeStatementRoute(t *testing.T) {
	s := New()
	stmt := &PreparedStatement{Name: "sel1"}
	if err := s.BeginParse(stmt); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}

	if err := s.BeginDescribe(ObjectStatement, "sel1"); err != nil {
		t.Fatalf("BeginDescribe: %v", err)
	}
	got, err := s.DescribeTarget()
	if err != nil {
		t.Fatalf("DescribeTarget: %v", err)
	}
	if got != stmt {
		t.Errorf("expected DescribeTarget to resolve the parsed statement")
	}
	if err := s.EndDescribe(); err != nil {
		t.Fatalf("EndDescribe: %v", err)
	}
	if s.State() != Idle {
		t.Errorf("expected Idle after EndDescribe, got %s", s.State())
	}
}

func TestDescribePortalRoutesThroughItsStatement(t *testing.T) {
	s := New()
	stmt := &PreparedStatement{Name: "sel1"}
	if err := s.BeginParse(stmt); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginBind("p1", "sel1"); err != nil {
		t.Fatal(err)
	}
	if err := s.BindComplete(); err != nil {
		t.Fatal(err)
	}

	if err := s.BeginDescribe(ObjectPortal, "p1"); err != nil {
		t.Fatalf("BeginDescribe: %v", err)
	}
	got, err := s.DescribeTarget()
	if err != nil {
		t.Fatalf("DescribeTarget: %v", err)
	}
	if got != stmt {
		t.Errorf("expected portal Describe to resolve its backing statement")
	}
}

func TestParseNotLegalOutsideIdle(t *testing.T) {
	s := New()
	if err := s.BeginParse(&PreparedStatement{Name: ""}); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginParse(&PreparedStatement{Name: "x"}); err == nil {
		t.Error("expected a second Parse while Parsing to be rejected")
	}
}

func TestBindUnknownStatementFails(t *testing.T) {
	s := New()
	if _, err := s.BeginBind("", "missing"); err == nil {
		t.Error("expected BeginBind against an unknown statement to fail")
	}
	if s.State() != Idle {
		t.Errorf("a failed BeginBind must not change state, got %s", s.State())
	}
}

func TestSyncResetsLatchesButKeepsStatementsAndPortals(t *testing.T) {
	s := New()
	if err := s.BeginParse(&PreparedStatement{Name: "sel1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginBind("p0", "sel1"); err != nil {
		t.Fatal(err)
	}
	if err := s.BindComplete(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginBind("p1", "sel1"); err != nil {
		t.Fatal(err)
	}

	s.Sync()
	if s.State() != Idle {
		t.Errorf("expected Idle after Sync, got %s", s.State())
	}
	if _, err := s.Statement("sel1"); err != nil {
		t.Errorf("Sync must not drop prepared statements: %v", err)
	}
	if _, err := s.Portal("p0"); err != nil {
		t.Errorf("Sync must not drop committed portals: %v", err)
	}
}

func TestCloseRemovesStatementAndPortal(t *testing.T) {
	s := New()
	if err := s.BeginParse(&PreparedStatement{Name: "sel1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginBind("p1", "sel1"); err != nil {
		t.Fatal(err)
	}
	if err := s.BindComplete(); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(ObjectPortal, "p1"); err != nil {
		t.Fatalf("Close portal: %v", err)
	}
	if _, err := s.Portal("p1"); err == nil {
		t.Error("expected portal p1 to be gone after Close")
	}

	if err := s.Close(ObjectStatement, "sel1"); err != nil {
		t.Fatalf("Close statement: %v", err)
	}
	if _, err := s.Statement("sel1"); err == nil {
		t.Error("expected statement sel1 to be gone after Close")
	}
}

func TestErrorResponseAbortsAndReadyForQueryClears(t *testing.T) {
	s := New()
	if err := s.BeginParse(&PreparedStatement{Name: ""}); err != nil {
		t.Fatal(err)
	}

	s.OnErrorResponse()
	if !s.Aborted() {
		t.Error("expected session to be marked aborted")
	}
	if s.State() != Idle {
		t.Errorf("expected Idle after ErrorResponse, got %s", s.State())
	}

	s.OnReadyForQuery()
	if s.Aborted() {
		t.Error("expected ReadyForQuery to clear the aborted flag")
	}
}

func TestUnnamedStatementReplacedWithoutExplicitClose(t *testing.T) {
	s := New()
	first := &PreparedStatement{Name: "", SQL: "select 1"}
	if err := s.BeginParse(first); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}

	second := &PreparedStatement{Name: "", SQL: "select 2"}
	if err := s.BeginParse(second); err != nil {
		t.Fatal(err)
	}
	if err := s.ParseComplete(); err != nil {
		t.Fatal(err)
	}

	got, err := s.Statement("")
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if got != second {
		t.Error("expected the second unnamed Parse to replace the first")
	}
}

func TestIsEqlParamOutOfRangeIsFalse(t *testing.T) {
	p := &PreparedStatement{}
	if p.IsEqlParam(0) {
		t.Error("expected IsEqlParam to be false with no param types recorded")
	}
}
