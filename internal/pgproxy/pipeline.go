package pgproxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/cryptor"
	"github.com/cloudshield/eqlproxy/internal/eql"
	"github.com/cloudshield/eqlproxy/internal/pgerror"
	"github.com/cloudshield/eqlproxy/internal/rewrite"
	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/session"
	"github.com/cloudshield/eqlproxy/internal/sqlast"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
	"github.com/cloudshield/eqlproxy/internal/wire"
)

// pipeline runs one client connection's message loop once startup and
// authentication have completed: read a client frontend message,
// type-check/rewrite/encrypt as needed, forward it, then relay the
// matching backend reply (or reply stream), decrypting DataRow
// payloads as they pass (C9, §4.7, §4.8).
type pipeline struct {
	client   *wire.ClientCodec
	upstream *wire.UpstreamCodec
	view     *schema.SessionView
	sess     *session.Session
	cryptor  cryptor.Cryptor
	metrics  Metrics

	// defaultKeyset/allowClientKeysetOverride implement the §7 keyset
	// policy check applied in prepare.
	defaultKeyset             string
	allowClientKeysetOverride bool

	// activeProjection is the projection of the statement currently
	// producing rows — set when a RowDescription is relayed, consulted
	// by every DataRow until the next CommandComplete/RowDescription.
	activeProjection []typeinfer.ProjectionColumn
}

func (p *pipeline) run(ctx context.Context) error {
	for {
		msg, err := p.client.Receive()
		if err != nil {
			return fmt.Errorf("pgproxy: receiving client message: %w", err)
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			if err := p.handleSimpleQuery(ctx, m); err != nil {
				return err
			}
		case *pgproto3.Parse:
			if err := p.handleParse(ctx, m); err != nil {
				return err
			}
		case *pgproto3.Describe:
			if err := p.handleDescribe(m); err != nil {
				return err
			}
		case *pgproto3.Bind:
			if err := p.handleBind(ctx, m); err != nil {
				return err
			}
		case *pgproto3.Execute:
			if err := p.handleExecute(ctx, m); err != nil {
				return err
			}
		case *pgproto3.Sync:
			if err := p.forwardAndAwait(m, isReadyForQuery); err != nil {
				return err
			}
			p.sess.Sync()
		case *pgproto3.Close:
			if err := p.forwardAndAwait(m, isCloseComplete); err != nil {
				return err
			}
			_ = p.sess.Close(m.ObjectType, m.Name)
		case *pgproto3.Flush:
			if err := p.upstream.Send(m); err != nil {
				return fmt.Errorf("forwarding Flush: %w", err)
			}
			p.sess.Flush()
		case *pgproto3.Terminate:
			_ = p.upstream.Send(m)
			p.sess.Terminate()
			return nil
		default:
			if err := p.upstream.Send(msg); err != nil {
				return fmt.Errorf("forwarding %T: %w", msg, err)
			}
		}
	}
}

// handleSimpleQuery implements the Simple Query sub-protocol (§4.7):
// every statement in the batch is parsed, type-checked, and rewritten,
// then the rewritten batch is sent upstream as a single Query message
// and every reply up to ReadyForQuery is relayed, decrypting DataRows
// against each statement's projection in turn.
func (p *pipeline) handleSimpleQuery(ctx context.Context, q *pgproto3.Query) error {
	stmts, err := sqlast.Parse(q.String)
	if err != nil {
		return p.sendLocalError(pgerror.InvalidStatement("%v", err))
	}

	var results []*typeinfer.Result
	rewritten := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		sql, res, err := p.prepare(ctx, stmt)
		if err != nil {
			return p.sendLocalError(pgerror.FromGeneric(err))
		}
		results = append(results, res)
		rewritten = append(rewritten, sql)
	}

	out := rewritten[0]
	for _, s := range rewritten[1:] {
		out += "; " + s
	}

	if err := p.upstream.Send(&pgproto3.Query{String: out}); err != nil {
		return fmt.Errorf("forwarding Query: %w", err)
	}

	pending := results
	for {
		msg, err := p.upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving query reply: %w", err)
		}
		if err := p.relayBackendMessage(ctx, msg, &pending); err != nil {
			return err
		}
		if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
			return nil
		}
	}
}

// handleParse implements Parse at Idle (§4.7): type-check and rewrite
// the statement text, store the result as a PreparedStatement, swap
// any Eql parameter OID for the JSONB OID, forward, and await
// ParseComplete.
func (p *pipeline) handleParse(ctx context.Context, m *pgproto3.Parse) error {
	stmts, err := sqlast.Parse(m.Query)
	if err != nil {
		return p.sendLocalError(pgerror.InvalidStatement("%v", err))
	}
	if len(stmts) != 1 {
		return p.sendLocalError(pgerror.InvalidStatement("Parse expects exactly one statement, got %d", len(stmts)))
	}

	sql, res, err := p.prepare(ctx, stmts[0])
	if err != nil {
		return p.sendLocalError(pgerror.FromGeneric(err))
	}

	paramTypes := make([]*typeinfer.Type, res.ParamCount())
	oids := append([]uint32(nil), m.ParameterOIDs...)
	for len(oids) < len(paramTypes) {
		oids = append(oids, 0)
	}
	for i := range paramTypes {
		t := res.ParamType(i + 1)
		paramTypes[i] = t
		// The server-bound Parse must declare the JSONB OID for every
		// Eql param, since Bind re-encodes it as a JSONB envelope; the
		// column's declared logical OID (e.g. TEXT/INT4) is only ever
		// shown to the client, in rewriteParameterDescription.
		if t.IsEql() {
			oids[i] = eql.OIDJSONB
		}
	}

	ps := &session.PreparedStatement{
		Name:       m.Name,
		SQL:        sql,
		Stmt:       stmts[0],
		Res:        res,
		ParamOIDs:  oids,
		ParamTypes: paramTypes,
	}
	if err := p.sess.BeginParse(ps); err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}

	fwd := *m
	fwd.Query = sql
	fwd.ParameterOIDs = oids
	if err := p.upstream.Send(&fwd); err != nil {
		return fmt.Errorf("forwarding Parse: %w", err)
	}

	reply, err := p.upstream.Receive()
	if err != nil {
		return fmt.Errorf("receiving ParseComplete: %w", err)
	}
	switch reply.(type) {
	case *pgproto3.ParseComplete:
		if err := p.sess.ParseComplete(); err != nil {
			return fmt.Errorf("pgproxy: %w", err)
		}
	}
	return p.relayBackendMessage(ctx, reply, nil)
}

// handleDescribe implements Describe at Idle: latch, forward
// unchanged (Describe only names an object, never a type), then relay
// the ParameterDescription/RowDescription/NoData sequence, rewriting
// Eql OIDs to their declared logical type.
func (p *pipeline) handleDescribe(m *pgproto3.Describe) error {
	if err := p.sess.BeginDescribe(m.ObjectType, m.Name); err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}
	stmt, err := p.sess.DescribeTarget()
	if err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}

	if err := p.upstream.Send(m); err != nil {
		return fmt.Errorf("forwarding Describe: %w", err)
	}

	for {
		reply, err := p.upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving Describe reply: %w", err)
		}
		done := false
		switch r := reply.(type) {
		case *pgproto3.ParameterDescription:
			rewriteParameterDescription(r, stmt, p.view)
		case *pgproto3.RowDescription:
			rewriteRowDescription(r, stmt, p.view)
			p.activeProjection = stmt.Res.Projection
			done = true
		case *pgproto3.NoData:
			done = true
		case *pgproto3.ErrorResponse:
			done = true
		}
		if err := p.client.Send(reply); err != nil {
			return fmt.Errorf("relaying Describe reply: %w", err)
		}
		if done {
			return p.sess.EndDescribe()
		}
	}
}

// handleBind implements Bind at Idle: resolve the named statement,
// encrypt any Eql-typed parameter values, forward the rewritten Bind,
// and await BindComplete.
func (p *pipeline) handleBind(ctx context.Context, m *pgproto3.Bind) error {
	stmt, err := p.sess.BeginBind(m.DestinationPortal, m.PreparedStatement)
	if err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}
	if err := p.sess.SetPendingFormats(m.ParameterFormatCodes, m.ResultFormatCodes); err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}

	values, formats, err := encryptParams(ctx, p.cryptor, stmt, m.ParameterFormatCodes, m.Parameters)
	if err != nil {
		return p.sendLocalError(pgerror.Encryptionf("%v", err))
	}

	fwd := *m
	fwd.Parameters = values
	fwd.ParameterFormatCodes = formats
	if err := p.upstream.Send(&fwd); err != nil {
		return fmt.Errorf("forwarding Bind: %w", err)
	}

	reply, err := p.upstream.Receive()
	if err != nil {
		return fmt.Errorf("receiving BindComplete: %w", err)
	}
	if _, ok := reply.(*pgproto3.BindComplete); ok {
		if err := p.sess.BindComplete(); err != nil {
			return fmt.Errorf("pgproxy: %w", err)
		}
	}
	return p.relayBackendMessage(ctx, reply, nil)
}

// handleExecute implements Execute at Idle: forward, then relay the
// DataRow stream (decrypting Eql columns against the bound portal's
// projection) up to CommandComplete/EmptyQueryResponse/PortalSuspended.
func (p *pipeline) handleExecute(ctx context.Context, m *pgproto3.Execute) error {
	portal, err := p.sess.BeginExecute(m.Portal)
	if err != nil {
		return fmt.Errorf("pgproxy: %w", err)
	}
	if portal.Statement != nil {
		p.activeProjection = portal.Statement.Res.Projection
	}

	if err := p.upstream.Send(m); err != nil {
		return fmt.Errorf("forwarding Execute: %w", err)
	}

	for {
		reply, err := p.upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving Execute reply: %w", err)
		}

		suspended := false
		done := false
		switch reply.(type) {
		case *pgproto3.PortalSuspended:
			suspended = true
			done = true
		case *pgproto3.CommandComplete, *pgproto3.EmptyQueryResponse, *pgproto3.ErrorResponse:
			done = true
		}

		if err := p.relayBackendMessage(ctx, reply, nil); err != nil {
			return err
		}
		if done {
			return p.sess.EndExecute(suspended)
		}
	}
}

// forwardAndAwait forwards m and relays backend replies until stop
// reports true, which it also relays.
func (p *pipeline) forwardAndAwait(m pgproto3.FrontendMessage, stop func(pgproto3.BackendMessage) bool) error {
	if err := p.upstream.Send(m); err != nil {
		return fmt.Errorf("forwarding %T: %w", m, err)
	}
	for {
		reply, err := p.upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving reply to %T: %w", m, err)
		}
		if err := p.client.Send(reply); err != nil {
			return fmt.Errorf("relaying reply to %T: %w", m, err)
		}
		if stop(reply) {
			return nil
		}
	}
}

func isReadyForQuery(m pgproto3.BackendMessage) bool {
	_, ok := m.(*pgproto3.ReadyForQuery)
	return ok
}

func isCloseComplete(m pgproto3.BackendMessage) bool {
	_, ok := m.(*pgproto3.CloseComplete)
	return ok
}

// relayBackendMessage forwards a single backend reply to the client,
// decrypting DataRow payloads and rewriting RowDescription OIDs along
// the way. pending, when non-nil, is the queue of per-statement
// results for a simple-query batch; relayBackendMessage advances it
// each time a RowDescription is seen.
func (p *pipeline) relayBackendMessage(ctx context.Context, msg pgproto3.BackendMessage, pending *[]*typeinfer.Result) error {
	switch m := msg.(type) {
	case *pgproto3.RowDescription:
		if pending != nil && len(*pending) > 0 {
			p.activeProjection = (*pending)[0].Projection
			*pending = (*pending)[1:]
		}
		rewriteRowDescriptionFields(m, p.activeProjection, p.view)
	case *pgproto3.DataRow:
		values, err := decryptRow(ctx, p.cryptor, p.activeProjection, m.Values)
		if err != nil {
			if p.metrics != nil {
				p.metrics.CryptorFailure()
			}
			return p.sendLocalError(pgerror.Encryptionf("%v", err))
		}
		m.Values = values
	}
	if err := p.client.Send(msg); err != nil {
		return fmt.Errorf("relaying %T: %w", msg, err)
	}
	return nil
}

// prepare type-checks and rewrites a single parsed statement,
// returning the SQL text to forward upstream.
func (p *pipeline) prepare(ctx context.Context, stmt sqlast.Statement) (string, *typeinfer.Result, error) {
	if set, ok := stmt.(*sqlast.SetStatement); ok {
		if err := p.checkKeysetPolicy(set); err != nil {
			return "", nil, err
		}
	}
	if ct, ok := stmt.(*sqlast.CreateTableStatement); ok {
		t := &schema.Table{Name: ct.Table, Columns: map[string]schema.ColumnSpec{}}
		for _, c := range ct.Columns {
			t.Order = append(t.Order, c.Name)
			t.Columns[strings.ToLower(c.Name)] = schema.ColumnSpec{}
		}
		p.view.ObserveDDL(t)
	}

	res, err := typeinfer.InferStatement(stmt, p.view)
	if err != nil {
		return "", nil, pgerror.InvalidStatement("%v", err)
	}

	ciphertexts, err := p.encryptLiterals(ctx, res)
	if err != nil {
		return "", nil, pgerror.Encryptionf("%v", err)
	}

	rctx := rewrite.NewContext(stmt, res, ciphertexts)
	if err := rewrite.Rewrite(rctx); err != nil {
		return "", nil, pgerror.InvalidStatement("%v", err)
	}

	return sqlast.RenderStatement(stmt), res, nil
}

// keysetVariablePrefix names the session variable namespace a client
// would use to pick a non-default keyset (§6, §7).
const keysetVariablePrefix = "cipherstash.keyset_"

// checkKeysetPolicy implements §7's Auth/keyset policy fault: a client
// attempting to SET cipherstash.keyset_... is fatal when a default
// keyset is configured and override is disallowed, since the Cryptor
// capability always encrypts against the one configured keyset in
// that case.
func (p *pipeline) checkKeysetPolicy(set *sqlast.SetStatement) error {
	if p.defaultKeyset == "" || p.allowClientKeysetOverride {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(set.Name), keysetVariablePrefix) {
		return pgerror.AuthPolicyf("cannot override keyset: a default keyset is configured for this proxy")
	}
	return nil
}

// encryptLiterals batch-encrypts every plaintext literal the type
// inferencer found sitting in an Eql position, returning the map
// internal/rewrite's ReplacePlaintextEqlLiterals rule consults to
// splice each literal's ciphertext envelope back into the AST.
func (p *pipeline) encryptLiterals(ctx context.Context, res *typeinfer.Result) (map[*sqlast.Literal]string, error) {
	if len(res.EqlLiterals) == 0 {
		return nil, nil
	}

	targets := make([]eql.PlaintextTarget, len(res.EqlLiterals))
	for i, el := range res.EqlLiterals {
		targets[i] = eql.NewPlaintextTarget(el.Table, el.Column, el.Lit.Text, eql.QueryMatch)
	}

	cts, err := p.cryptor.Encrypt(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("encrypting literals: %w", err)
	}
	if len(cts) != len(targets) {
		return nil, fmt.Errorf("pgproxy: cryptor returned %d ciphertexts for %d literals", len(cts), len(targets))
	}

	out := make(map[*sqlast.Literal]string, len(res.EqlLiterals))
	for i, el := range res.EqlLiterals {
		raw, err := eql.MarshalCiphertext(cts[i])
		if err != nil {
			return nil, fmt.Errorf("marshaling literal ciphertext: %w", err)
		}
		out[el.Lit] = string(raw)
	}
	return out, nil
}
