package pgproxy

import (
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/cloudshield/eqlproxy/internal/pgerror"
)

// sendLocalError implements §4.8's local recovery path: a Mapping or
// Encryption fault the proxy itself detected (never reaching the real
// server) is reported as ErrorResponse followed by ReadyForQuery, and
// the connection stays usable for the next command. A Protocol or
// AuthPolicy fault is still sent to the client but is fatal, so the
// caller's error return unwinds the connection.
func (p *pipeline) sendLocalError(e *pgerror.Error) error {
	if err := p.client.Send(pgerror.ToErrorResponse(e)); err != nil {
		return err
	}
	if e.Fatal() {
		return e
	}
	if err := p.client.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'}); err != nil {
		return err
	}
	return nil
}
