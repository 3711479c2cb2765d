package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RawFrame is one length-prefixed wire message, read and written
// byte-exact with no interpretation of Body: a one-byte type code
// followed by a 4-byte big-endian inclusive length and the payload
// (§4.1). The connection handler and message pipeline do not use it:
// authentication messages, CopyData and every other message are
// received and re-sent through the pgproto3 codecs in codec.go.
type RawFrame struct {
	Code byte
	Body []byte
}

// ReadFrame reads one RawFrame from r.
func ReadFrame(r io.Reader) (RawFrame, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return RawFrame{}, err
	}
	n := int(binary.BigEndian.Uint32(head[1:5])) - 4
	if n < 0 || n > 1<<24 {
		return RawFrame{}, fmt.Errorf("wire: invalid frame length %d", n)
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return RawFrame{}, err
		}
	}
	return RawFrame{Code: head[0], Body: body}, nil
}

// WriteFrame writes f byte-exact.
func WriteFrame(w io.Writer, f RawFrame) error {
	buf := make([]byte, 5+len(f.Body))
	buf[0] = f.Code
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Body)+4))
	copy(buf[5:], f.Body)
	_, err := w.Write(buf)
	return err
}
