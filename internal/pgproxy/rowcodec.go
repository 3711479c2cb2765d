package pgproxy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudshield/eqlproxy/internal/cryptor"
	"github.com/cloudshield/eqlproxy/internal/eql"
	"github.com/cloudshield/eqlproxy/internal/session"
	"github.com/cloudshield/eqlproxy/internal/typeinfer"
)

// encryptParams walks a Bind's parameter values, encrypting the ones
// whose prepared-statement position is Eql-typed and leaving native
// ones untouched (§4.7's Bind action, §6). Parameters are always
// treated as text-format values in and out: a client sending a binary
// parameter for an encrypted column is rejected, since this proxy has
// no way to know the client's binary encoding for an arbitrary
// upstream type without a full type catalog (documented in
// DESIGN.md).
func encryptParams(ctx context.Context, c cryptor.Cryptor, stmt *session.PreparedStatement, formats []int16, values [][]byte) ([][]byte, []int16, error) {
	var targets []eql.PlaintextTarget
	var positions []int

	for i, v := range values {
		if !stmt.IsEqlParam(i) {
			continue
		}
		if v == nil {
			continue
		}
		if formatAt(formats, i) != 0 {
			return nil, nil, fmt.Errorf("pgproxy: binary-format parameter for encrypted column at position %d is not supported", i+1)
		}
		tc, _ := stmt.ParamTypes[i].EqlColumn()
		targets = append(targets, eql.NewPlaintextTarget(tc.Table, tc.Column, string(v), eql.QueryMatch))
		positions = append(positions, i)
	}

	if len(targets) == 0 {
		return values, formats, nil
	}

	cts, err := c.Encrypt(ctx, targets)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypting parameters: %w", err)
	}
	if len(cts) != len(targets) {
		return nil, nil, fmt.Errorf("pgproxy: cryptor returned %d ciphertexts for %d targets", len(cts), len(targets))
	}

	outValues := append([][]byte(nil), values...)
	outFormats := normalizeFormats(formats, len(values))
	for j, pos := range positions {
		raw, err := eql.MarshalCiphertext(cts[j])
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling ciphertext: %w", err)
		}
		outValues[pos] = raw
		outFormats[pos] = 0
	}
	return outValues, outFormats, nil
}

// decryptRow walks one DataRow's values, decrypting every Eql-typed
// projection column back to its plaintext representation. Native
// columns pass through unchanged.
func decryptRow(ctx context.Context, c cryptor.Cryptor, cols []typeinfer.ProjectionColumn, values [][]byte) ([][]byte, error) {
	var cts []eql.Ciphertext
	var positions []int

	for i, v := range values {
		if i >= len(cols) || !cols[i].Type.IsEql() {
			continue
		}
		if v == nil {
			continue
		}
		ct, err := eql.UnmarshalCiphertext(v)
		if err != nil {
			return nil, fmt.Errorf("decoding ciphertext column %d: %w", i, err)
		}
		cts = append(cts, ct)
		positions = append(positions, i)
	}

	if len(cts) == 0 {
		return values, nil
	}

	plains, err := c.Decrypt(ctx, cts)
	if err != nil {
		return nil, fmt.Errorf("decrypting row: %w", err)
	}
	if len(plains) != len(cts) {
		return nil, fmt.Errorf("pgproxy: cryptor returned %d plaintexts for %d ciphertexts", len(plains), len(cts))
	}

	out := append([][]byte(nil), values...)
	for j, pos := range positions {
		out[pos] = []byte(plains[j].Plaintext)
	}
	return out, nil
}

func formatAt(formats []int16, i int) int16 {
	if len(formats) == 0 {
		return 0
	}
	if len(formats) == 1 {
		return formats[0]
	}
	if i < len(formats) {
		return formats[i]
	}
	return 0
}

func normalizeFormats(formats []int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = formatAt(formats, i)
	}
	return out
}

// widenNumeric implements §4.9's parameter-type widening: a narrower
// numeric literal/parameter bound against a wider column type is
// promoted, never narrowed. text is the original decimal text of the
// value; want is the column's native numeric kind ("int4", "int8",
// "float8", "numeric"). Returns the (possibly reformatted) text.
func widenNumeric(text string, want string) (string, error) {
	switch want {
	case "numeric":
		d, err := decimal.NewFromString(text)
		if err != nil {
			return "", fmt.Errorf("widening %q to numeric: %w", text, err)
		}
		return d.String(), nil
	default:
		return text, nil
	}
}
