package pgproxy

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgproto3"
)

// SSLRequest and CancelRequest are the two pseudo-protocol version
// numbers a client may send instead of a real StartupMessage (§4.2),
// handled by pgproto3.Backend.ReceiveStartupMessage as the
// *pgproto3.SSLRequest / *pgproto3.CancelRequest cases.

// negotiateClientTLS answers a client's SSLRequest and, if it accepts,
// wraps conn in a TLS server connection. Returns the connection to use
// from here on (possibly wrapped) and whether TLS is now active.
func negotiateClientTLS(conn net.Conn, tlsConfig *tls.Config) (net.Conn, bool, error) {
	if tlsConfig == nil {
		if _, err := conn.Write([]byte{'N'}); err != nil {
			return nil, false, fmt.Errorf("declining SSLRequest: %w", err)
		}
		return conn, false, nil
	}
	if _, err := conn.Write([]byte{'S'}); err != nil {
		return nil, false, fmt.Errorf("accepting SSLRequest: %w", err)
	}
	tlsConn := tls.Server(conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return nil, false, fmt.Errorf("client TLS handshake: %w", err)
	}
	return tlsConn, true, nil
}

// negotiateUpstreamTLS performs the same SSLRequest handshake as a
// client would, against the real server, when the upstream config
// requires TLS (§4.2 — the proxy terminates client TLS and
// independently originates its own TLS session upstream; the two are
// never the same handshake).
func negotiateUpstreamTLS(conn net.Conn, serverName string) (net.Conn, error) {
	req := make([]byte, 8)
	req[0], req[1], req[2], req[3] = 0, 0, 0, 8
	req[4], req[5], req[6], req[7] = 4, 210, 47, 47 // 80877103 big-endian
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("sending upstream SSLRequest: %w", err)
	}
	resp := make([]byte, 1)
	if _, err := conn.Read(resp); err != nil {
		return nil, fmt.Errorf("reading upstream SSL response: %w", err)
	}
	if resp[0] != 'S' {
		return nil, fmt.Errorf("upstream refused SSLRequest")
	}
	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName})
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("upstream TLS handshake: %w", err)
	}
	return tlsConn, nil
}

// startupResult is one iteration of the client startup loop: exactly
// one of its fields is set.
type startupResult struct {
	Startup *pgproto3.StartupMessage
	Cancel  *pgproto3.CancelRequest
	// WantsTLS is set when the client sent SSLRequest/GSSEncRequest;
	// the caller must answer, possibly rebuild its codec over a TLS
	// connection, and call receiveStartupOnce again.
	WantsTLS bool
}

// receiveStartupOnce reads one startup frame per §4.2. The caller
// loops (bounded at maxStartupAttempts) on WantsTLS results, rebuilding
// its pgproto3.Backend over the negotiated connection each time —
// pgproto3 requires a fresh Backend once the underlying net.Conn
// changes out from under it.
func receiveStartupOnce(client *pgproto3.Backend) (startupResult, error) {
	msg, err := client.ReceiveStartupMessage()
	if err != nil {
		return startupResult{}, err
	}
	switch m := msg.(type) {
	case *pgproto3.StartupMessage:
		return startupResult{Startup: m}, nil
	case *pgproto3.CancelRequest:
		return startupResult{Cancel: m}, nil
	case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
		return startupResult{WantsTLS: true}, nil
	default:
		return startupResult{}, fmt.Errorf("pgproxy: unexpected startup message %T", msg)
	}
}

// maxStartupAttempts bounds the SSLRequest/GSSEncRequest retry loop a
// misbehaving or probing client could otherwise drive indefinitely.
const maxStartupAttempts = 3
