// Package pgproxy wires together wire, session, sqlast, typeinfer,
// rewrite, cryptor, and schema into the actual connection handler:
// accept a client, negotiate TLS and startup, relay authentication
// byte-for-byte, then run the extended/simple query pipeline for the
// life of the connection (§4.2, §4.7, §5, C2+C9).
package pgproxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/cryptor"
	"github.com/cloudshield/eqlproxy/internal/pgerror"
	"github.com/cloudshield/eqlproxy/internal/schema"
	"github.com/cloudshield/eqlproxy/internal/session"
	"github.com/cloudshield/eqlproxy/internal/wire"
)

// Metrics is the subset of observability hooks the handler calls into;
// satisfied by internal/metrics.Collector.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	QueryDuration(d time.Duration)
	RewriteFailure()
	CryptorFailure()
}

// Handler accepts PostgreSQL client connections and proxies them to a
// single upstream server, rewriting statements and row payloads for
// encrypted columns along the way.
type Handler struct {
	UpstreamAddr string
	ClientTLS    *tls.Config
	UpstreamTLS  bool
	UpstreamServerName string
	DialTimeout  time.Duration

	Schema  *schema.Registry
	Cryptor cryptor.Cryptor
	Metrics Metrics

	// DefaultKeyset and AllowClientKeysetOverride implement the §7
	// keyset policy: when a default keyset is configured and override
	// is not allowed, a client `SET cipherstash.keyset_...` is a fatal
	// AuthPolicy fault rather than a forwarded statement.
	DefaultKeyset             string
	AllowClientKeysetOverride bool

	active atomic.Int64
}

// ActiveConnections reports the number of client connections currently
// being proxied, for the admin API's /status endpoint.
func (h *Handler) ActiveConnections() int {
	return int(h.active.Load())
}

// Handle drives one client connection end to end. It returns when the
// connection closes, either cleanly (client Terminate) or on a
// Protocol/AuthPolicy fault.
func (h *Handler) Handle(ctx context.Context, clientConn net.Conn) error {
	defer clientConn.Close()

	client := wire.NewClientCodec(clientConn, clientConn)

	startup, cancel, rawConn, err := h.negotiateStartup(clientConn, client)
	if err != nil {
		return fmt.Errorf("pgproxy: startup negotiation: %w", err)
	}
	clientConn = rawConn
	client = wire.NewClientCodec(clientConn, clientConn)

	var upConn net.Conn
	err = DefaultBackoff().Retry(ctx, func() error {
		var dialErr error
		upConn, dialErr = net.DialTimeout("tcp", h.UpstreamAddr, h.dialTimeout())
		return dialErr
	})
	if err != nil {
		return pgerror.ConfigIOf("connecting to upstream: %v", err)
	}
	defer upConn.Close()

	if h.UpstreamTLS {
		upConn, err = negotiateUpstreamTLS(upConn, h.UpstreamServerName)
		if err != nil {
			return pgerror.ConfigIOf("upstream TLS: %v", err)
		}
	}
	upstream := wire.NewUpstreamCodec(upConn, upConn)

	if cancel != nil {
		// CancelRequest is a side channel: forward verbatim and close
		// (§4.2, §5) — no session state applies to it.
		if err := upstream.Send(cancel); err != nil {
			return fmt.Errorf("forwarding CancelRequest: %w", err)
		}
		return nil
	}

	if err := upstream.Send(startup); err != nil {
		return fmt.Errorf("forwarding StartupMessage: %w", err)
	}

	if err := relayAuth(client, upstream); err != nil {
		return fmt.Errorf("pgproxy: auth relay: %w", err)
	}

	h.active.Add(1)
	defer h.active.Add(-1)
	if h.Metrics != nil {
		h.Metrics.ConnectionOpened()
		defer h.Metrics.ConnectionClosed()
	}

	view := h.Schema.NewSessionView()
	sess := session.New()

	p := &pipeline{
		client:                    client,
		upstream:                  upstream,
		view:                      view,
		sess:                      sess,
		cryptor:                   h.Cryptor,
		metrics:                   h.Metrics,
		defaultKeyset:             h.DefaultKeyset,
		allowClientKeysetOverride: h.AllowClientKeysetOverride,
	}
	return p.run(ctx)
}

func (h *Handler) dialTimeout() time.Duration {
	if h.DialTimeout > 0 {
		return h.DialTimeout
	}
	return 5 * time.Second
}

// negotiateStartup runs the SSLRequest retry loop against the client
// (§4.2), rebuilding the codec over a freshly wrapped TLS connection
// each time the client asks for one, and returns the real
// net.Conn the rest of the handshake should use from here on.
func (h *Handler) negotiateStartup(conn net.Conn, client *wire.ClientCodec) (*pgproto3.StartupMessage, *pgproto3.CancelRequest, net.Conn, error) {
	for attempt := 0; attempt < maxStartupAttempts; attempt++ {
		res, err := receiveStartupOnce(client.Backend)
		if err != nil {
			return nil, nil, nil, err
		}
		if res.Startup != nil {
			return res.Startup, nil, conn, nil
		}
		if res.Cancel != nil {
			return nil, res.Cancel, conn, nil
		}
		newConn, tlsActive, err := negotiateClientTLS(conn, h.ClientTLS)
		if err != nil {
			return nil, nil, nil, err
		}
		conn = newConn
		if tlsActive {
			client = wire.NewClientCodec(conn, conn)
		}
	}
	return nil, nil, nil, fmt.Errorf("pgproxy: too many startup negotiation attempts")
}

// relayAuth forwards the authentication sub-protocol between client
// and upstream message-for-message, never synthesizing credentials
// (§4.2): whatever challenge/response scheme the real server picked —
// cleartext, MD5, or SASL — passes through this proxy unexamined until
// AuthenticationOk.
func relayAuth(client *wire.ClientCodec, upstream *wire.UpstreamCodec) error {
	for {
		msg, err := upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving from upstream during auth: %w", err)
		}
		if err := client.Send(msg); err != nil {
			return fmt.Errorf("forwarding auth message to client: %w", err)
		}

		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			return drainToReadyForQuery(client, upstream)
		case *pgproto3.AuthenticationCleartextPassword,
			*pgproto3.AuthenticationMD5Password,
			*pgproto3.AuthenticationSASL,
			*pgproto3.AuthenticationSASLContinue:
			reply, err := client.Receive()
			if err != nil {
				return fmt.Errorf("receiving client auth response: %w", err)
			}
			if err := upstream.Send(reply); err != nil {
				return fmt.Errorf("forwarding client auth response: %w", err)
			}
		case *pgproto3.AuthenticationSASLFinal:
			// No client reply expected; the server follows with
			// AuthenticationOk or an ErrorResponse.
		case *pgproto3.ErrorResponse:
			return pgerror.FromGeneric(fmt.Errorf("upstream rejected authentication: %s", m.Message))
		default:
			log.Printf("pgproxy: unexpected message %T during auth relay", m)
		}
	}
}

// drainToReadyForQuery forwards BackendKeyData/ParameterStatus/NoticeResponse
// frames the server sends right after AuthenticationOk, stopping once
// ReadyForQuery arrives.
func drainToReadyForQuery(client *wire.ClientCodec, upstream *wire.UpstreamCodec) error {
	for {
		msg, err := upstream.Receive()
		if err != nil {
			return fmt.Errorf("receiving post-auth message: %w", err)
		}
		if err := client.Send(msg); err != nil {
			return fmt.Errorf("forwarding post-auth message: %w", err)
		}
		if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
			return nil
		}
	}
}
