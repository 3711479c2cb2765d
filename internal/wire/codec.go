// Package wire is the PostgreSQL wire-protocol codec (§4.1): it gives
// the rest of the proxy typed Go values for every frontend/backend
// message instead of raw bytes, built on pgproto3 — the same
// wire-exact decoder the ecosystem already uses for this exact job.
//
// A connection has two distinct codec roles, matching pgproto3's own
// naming: the half that decodes what a *client* sends and encodes what
// a server sends back to it is a Backend (this proxy plays that role
// toward the application); the half that encodes what a client sends
// and decodes what a server sends back is a Frontend (this proxy plays
// that role toward the real PostgreSQL server).
package wire

import (
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
)

// ClientCodec speaks the server's half of the protocol toward a
// connecting application: Receive yields the FrontendMessage the
// client sent (Query, Parse, Bind, Describe, Execute, Sync, Close,
// Flush, Terminate, the password/SASL response messages, or a startup
// frame via ReceiveStartupMessage), Send writes a BackendMessage to it.
type ClientCodec struct {
	*pgproto3.Backend
}

// NewClientCodec builds a ClientCodec reading from r and writing to w
// (usually the same net.Conn for both).
func NewClientCodec(r io.Reader, w io.Writer) *ClientCodec {
	return &ClientCodec{Backend: pgproto3.NewBackend(r, w)}
}

// Send queues msg and flushes it to the client immediately. pgx/v5's
// Backend.Send only buffers; without an explicit Flush nothing would
// ever reach the wire, so Send here shadows the embedded buffering
// Send with a send-and-flush pair, keeping every call site a plain
// "if err := codec.Send(msg); err != nil" check.
func (c *ClientCodec) Send(msg pgproto3.BackendMessage) error {
	c.Backend.Send(msg)
	return c.Backend.Flush()
}

// UpstreamCodec speaks the client's half of the protocol toward the
// real PostgreSQL server: Send writes a FrontendMessage, Receive yields
// the BackendMessage the server sent.
type UpstreamCodec struct {
	*pgproto3.Frontend
}

// NewUpstreamCodec builds an UpstreamCodec reading from r and writing
// to w.
func NewUpstreamCodec(r io.Reader, w io.Writer) *UpstreamCodec {
	return &UpstreamCodec{Frontend: pgproto3.NewFrontend(r, w)}
}

// Send queues msg and flushes it to the upstream server immediately,
// for the same reason ClientCodec.Send does: Frontend.Send only
// buffers in pgx/v5.
func (c *UpstreamCodec) Send(msg pgproto3.FrontendMessage) error {
	c.Frontend.Send(msg)
	return c.Frontend.Flush()
}
