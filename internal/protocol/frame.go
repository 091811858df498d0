// Package protocol — frame.go
//
// Wire framing for the traffic-range coordinator.
//
// Every frame is a 4-byte big-endian unsigned length prefix followed by
// that many UTF-8 bytes of a JSON object. The object always carries a
// "type" string field and a "timestamp" float field (seconds since epoch,
// informational only); every other field is per-message-type.
//
// Payload strings inside attack/dummy/noise/decoy messages are base64 of
// their UTF-8 bytes, so the on-wire bytes never plainly reveal the
// semantic string to a traffic-capture observer — decoding is the
// client's job, via DecodePayload.
package protocol

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes bounds the body of a single frame. A length prefix beyond
// this is rejected before any allocation is attempted.
const MaxFrameBytes = 1 << 20 // 1 MiB

const headerSize = 4

// ShortRead is returned when the peer closes the connection mid-frame.
type ShortRead struct {
	Stage string // "header" or "body"
	Got   int
	Want  int
}

func (e *ShortRead) Error() string {
	return fmt.Sprintf("protocol: short read in %s: got %d of %d bytes", e.Stage, e.Got, e.Want)
}

// ProtocolError covers malformed frames: bad length, non-UTF-8/JSON body,
// or a JSON value that isn't an object.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

// WriteMessage encodes v as JSON and writes one length-prefixed frame.
// The header and body are written with a single underlying Write where
// possible so emission is atomic with respect to interleaved writers.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(body) > MaxFrameBytes {
		return &ProtocolError{Reason: fmt.Sprintf("outgoing frame too large: %d bytes", len(body))}
	}

	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(body)))
	copy(buf[headerSize:], body)

	_, err = w.Write(buf)
	return err
}

// ReadMessage reads one length-prefixed frame and decodes its JSON body
// into a generic envelope (see Envelope). Callers type-switch on
// Envelope.Type to reach a concrete message.
func ReadMessage(r *bufio.Reader) (Envelope, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Envelope{}, &ShortRead{Stage: "header", Want: headerSize}
		}
		return Envelope{}, err
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 || length > MaxFrameBytes {
		return Envelope{}, &ProtocolError{Reason: fmt.Sprintf("invalid frame length %d", length)}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Envelope{}, &ShortRead{Stage: "body", Want: int(length)}
		}
		return Envelope{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, &ProtocolError{Reason: "body is not a JSON object: " + err.Error()}
	}

	typ, _ := raw["type"].(string)
	if typ == "" {
		return Envelope{}, &ProtocolError{Reason: `missing "type" field`}
	}

	return Envelope{Type: typ, Raw: body}, nil
}

// Envelope is the tagged-sum entry point: the dispatcher reads Type, then
// unmarshals Raw into the concrete struct for that type.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the envelope's raw body into dst.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Raw, dst)
}

// EncodePayload base64-encodes a UTF-8 payload string for transmission.
func EncodePayload(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodePayload reverses EncodePayload. On malformed input it returns
// the input string unchanged — a payload is never dropped just because
// it failed to decode.
func DecodePayload(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	return string(decoded)
}
