// Package cryptor defines the Cryptor capability: the opaque, external
// encrypt/decrypt collaborator the proxy core invokes but never
// implements. Per spec, the cryptographic primitives themselves are out
// of scope — this package only carries the interface boundary plus
// HTTPClient, an implementation that calls a keyset-service endpoint.
package cryptor

import (
	"context"
	"fmt"

	"github.com/cloudshield/eqlproxy/internal/eql"
)

// Cryptor performs batched encrypt/decrypt of EQL values. Implementations
// may call out to a network service (a ZeroKMS-style keyset service); the
// proxy only requires order-preserving batches.
type Cryptor interface {
	// Encrypt turns plaintext targets into their ciphertext envelopes,
	// preserving order.
	Encrypt(ctx context.Context, targets []eql.PlaintextTarget) ([]eql.Ciphertext, error)
	// Decrypt turns ciphertext envelopes back into plaintext tokens,
	// preserving order.
	Decrypt(ctx context.Context, records []eql.Ciphertext) ([]eql.PlaintextTarget, error)
}

// ErrUnconfigured is returned when a column has no reachable keyset —
// the Encryption error kind in §7.
var ErrUnconfigured = fmt.Errorf("cryptor: no keyset configured for column")

// Config carries the bare connection details for a real Cryptor
// implementation (keyset service endpoint, default keyset id). Schema
// file parsing and config loading are out of scope; this struct is the
// minimal seam a real implementation plugs into.
type Config struct {
	Endpoint      string
	DefaultKeyset string
}
