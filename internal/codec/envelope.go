// Package codec implements envelope serialization and the two wire framings
// the Gateway accepts: raw JSON text frames (WebSocket) and LSP-style
// Content-Length framing (FIFO/STDIO), plus the "#streamId#payload" binary
// stream frame encoding.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mew-run/gateway/pkg/protocol"
)

// DecodeEnvelope parses one JSON envelope from raw bytes.
func DecodeEnvelope(data []byte) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("codec: decode envelope: %w", err)
	}
	return env, nil
}

// EncodeEnvelope serializes an envelope to its wire JSON form.
func EncodeEnvelope(env protocol.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: encode envelope: %w", err)
	}
	return data, nil
}

// StreamFrameMarker is the leading byte that distinguishes a stream data
// frame from a JSON envelope on a text-oriented transport.
const StreamFrameMarker = '#'

// IsStreamFrame reports whether a raw text frame is a stream data frame
// rather than a JSON envelope.
func IsStreamFrame(data []byte) bool {
	return len(data) > 0 && data[0] == StreamFrameMarker
}

// EncodeStreamFrame builds "#<streamId>#<payload>"; the
// trailing portion is opaque application data forwarded verbatim.
func EncodeStreamFrame(streamID string, payload []byte) []byte {
	var b strings.Builder
	b.WriteByte(StreamFrameMarker)
	b.WriteString(streamID)
	b.WriteByte(StreamFrameMarker)
	b.Write(payload)
	return []byte(b.String())
}

// DecodeStreamFrame splits "#<streamId>#<payload>" into its parts. Returns
// an error if the frame does not have the leading marker and a second
// marker delimiting the stream id.
func DecodeStreamFrame(data []byte) (streamID string, payload []byte, err error) {
	if !IsStreamFrame(data) {
		return "", nil, fmt.Errorf("codec: not a stream frame")
	}
	rest := data[1:]
	idx := strings.IndexByte(string(rest), StreamFrameMarker)
	if idx < 0 {
		return "", nil, fmt.Errorf("codec: stream frame missing closing marker")
	}
	return string(rest[:idx]), rest[idx+1:], nil
}
