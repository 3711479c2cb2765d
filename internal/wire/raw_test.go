package wire

import (
	"bytes"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	f := RawFrame{Code: 'p', Body: []byte("a scram client-final-message")}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Code != f.Code {
		t.Errorf("expected code %q, got %q", f.Code, got.Code)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Errorf("expected body %q, got %q", f.Body, got.Body)
	}
}

func TestReadFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, RawFrame{Code: 'S'}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Body) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(got.Body))
	}
}

func TestReadFrameRejectsBogusLength(t *testing.T) {
	// length field claims a negative body size (< 4).
	buf := bytes.NewBuffer([]byte{'Q', 0x00, 0x00, 0x00, 0x02})
	if _, err := ReadFrame(buf); err == nil {
		t.Error("expected an error for an invalid frame length")
	}
}
