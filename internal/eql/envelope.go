// Package eql defines the on-wire JSONB envelope used to carry encrypted
// column values between the proxy and the real PostgreSQL server.
package eql

import "encoding/json"

// IndexKind names a searchable index a ciphertext may carry.
type IndexKind string

const (
	Match     IndexKind = "match"
	Ore       IndexKind = "ore"
	Unique    IndexKind = "unique"
	SteVecIndex IndexKind = "ste_vec"
	EjsonPath IndexKind = "ejson_path"
)

// IdentSpec names the source table/column a ciphertext was encrypted for.
type IdentSpec struct {
	Table  string `json:"t"`
	Column string `json:"c"`
}

// Ciphertext is the "ct" envelope variant: a single encrypted scalar.
type Ciphertext struct {
	Kind    string    `json:"k"`
	C       string    `json:"c"`
	Ident   IdentSpec `json:"i"`
	Version uint16    `json:"v"`
	Match   []uint16  `json:"m,omitempty"`
	Ore     []string  `json:"o,omitempty"`
	Unique  string    `json:"u,omitempty"`
}

// SteVec is the "sv" envelope variant: a structured vector used for
// indexing into encrypted JSON(B) documents.
type SteVec struct {
	Kind    string          `json:"k"`
	Vec     json.RawMessage `json:"sv"`
	Ident   IdentSpec       `json:"i"`
	Version uint16          `json:"v"`
}

// Query names the kind of searchable query a PlaintextTarget will be
// encrypted for, selecting which index the Cryptor attaches.
type Query string

const (
	QueryMatch       Query = "match"
	QueryOre         Query = "ore"
	QueryUnique      Query = "unique"
	QuerySteVec      Query = "ste_vec"
	QueryEjsonPath   Query = "ejson_path"
	QuerySteVecTerm  Query = "ste_vec_term"
)

// PlaintextTarget is the internal, never-serialized-to-a-real-client
// representation of a value that is about to be encrypted: a plaintext
// payload tagged with the column it is destined for and, optionally, the
// kind of query it must remain comparable under.
type PlaintextTarget struct {
	Plaintext string    `json:"p"`
	Ident     IdentSpec `json:"i"`
	Version   uint16    `json:"v"`
	Query     Query     `json:"q,omitempty"`
}

const currentEnvelopeVersion uint16 = 1

// NewPlaintextTarget builds a PlaintextTarget for table.column, tagging it
// with the query kind the comparison context requires (or "" for a plain
// equality/insert target).
func NewPlaintextTarget(table, column, plaintext string, q Query) PlaintextTarget {
	return PlaintextTarget{
		Plaintext: plaintext,
		Ident:     IdentSpec{Table: table, Column: column},
		Version:   currentEnvelopeVersion,
		Query:     q,
	}
}

// envelopeKind sniffs the "k" discriminator of a raw JSONB envelope without
// fully unmarshaling it.
func envelopeKind(raw []byte) (string, error) {
	var probe struct {
		Kind string `json:"k"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	return probe.Kind, nil
}

// IsCiphertextEnvelope reports whether raw looks like a "ct" or "sv"
// envelope, as opposed to a plain JSONB value that happens to share a
// column with an encrypted one (shouldn't occur, but decoding is
// defensive at the boundary with the real server).
func IsCiphertextEnvelope(raw []byte) bool {
	kind, err := envelopeKind(raw)
	if err != nil {
		return false
	}
	return kind == "ct" || kind == "sv"
}

// MarshalCiphertext renders a Ciphertext envelope to JSON bytes.
func MarshalCiphertext(c Ciphertext) ([]byte, error) {
	c.Kind = "ct"
	return json.Marshal(c)
}

// MarshalPlaintextTarget renders a PlaintextTarget to JSON bytes, the wire
// shape the Cryptor's Encrypt batch call expects.
func MarshalPlaintextTarget(p PlaintextTarget) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalCiphertext parses a "ct" envelope.
func UnmarshalCiphertext(raw []byte) (Ciphertext, error) {
	var c Ciphertext
	err := json.Unmarshal(raw, &c)
	return c, err
}
