package owl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// msgType discriminates the two probe message kinds exchanged over UDP.
type msgType string

const (
	msgPing msgType = "ping"
	msgPong msgType = "pong"
)

// pingPayload is the signed payload of a probe request.
type pingPayload struct {
	Type      msgType `json:"type"`
	Src       string  `json:"src"`
	Dest      string  `json:"dest"`
	Seq       uint64  `json:"seq"`
	TimestampNs int64 `json:"timestamp_ns"`
}

// pongPayload is the signed payload of a probe reply, echoing the
// original timestamp so the prober can compute round-trip time without
// relying on synchronized clocks between nodes (spec §5.2: latency here
// is a round-trip measurement, not a true one-way figure).
type pongPayload struct {
	Type          msgType `json:"type"`
	Src           string  `json:"src"`
	Dest          string  `json:"dest"`
	Seq           uint64  `json:"seq"`
	OrigTimestampNs int64 `json:"orig_timestamp_ns"`
	PongTimestampNs int64 `json:"pong_timestamp_ns"`
}

// envelope is the wire representation of a signed probe message: the
// payload plus an HMAC-SHA256 signature over its canonical JSON bytes.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

func sign(secret []byte, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

func verify(secret []byte, payload []byte, signature string) bool {
	expected := sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// encodeEnvelope marshals v, signs its bytes, and wraps both in an
// envelope ready to send over the wire.
func encodeEnvelope(secret []byte, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("owl: marshal payload: %w", err)
	}
	env := envelope{Payload: payload, Signature: sign(secret, payload)}
	return json.Marshal(env)
}

// decodeEnvelope unmarshals raw into an envelope, verifies its
// signature, and returns the inner payload bytes for further decoding
// into pingPayload or pongPayload by the caller (the type field must be
// inspected first).
func decodeEnvelope(secret []byte, raw []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("owl: malformed envelope: %w", err)
	}
	if !verify(secret, env.Payload, env.Signature) {
		return nil, errBadSignature
	}
	return env.Payload, nil
}

// peekType extracts just the discriminator field without fully
// unmarshaling into either payload shape.
func peekType(payload []byte) (msgType, error) {
	var t struct {
		Type msgType `json:"type"`
	}
	if err := json.Unmarshal(payload, &t); err != nil {
		return "", fmt.Errorf("owl: malformed payload: %w", err)
	}
	return t.Type, nil
}
