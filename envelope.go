package tautan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const msgInvalidResponse = "Invalid response format"

// Envelope is the normalized shape every successful call returns.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Decode unmarshals the envelope payload into v. A null or missing payload
// leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	return e != nil && len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null"))
}

// Clone returns a deep copy so cached envelopes are never shared mutably.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Data != nil {
		cp.Data = append(json.RawMessage(nil), e.Data...)
	}
	return &cp
}

// DecodeData decodes the envelope payload into a value of type T.
func DecodeData[T any](env *Envelope) (T, error) {
	var out T
	err := env.Decode(&out)
	return out, err
}

// NormalizeEnvelope converts a raw success body into an Envelope. Empty bodies
// become a successful null payload; invalid JSON becomes a soft failure
// envelope; bodies that already look like an envelope are decoded as-is.
func NormalizeEnvelope(body []byte) *Envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Envelope{Success: true}
	}

	if !json.Valid(trimmed) {
		return &Envelope{Success: false, Message: msgInvalidResponse}
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			_, hasSuccess := fields["success"]
			_, hasData := fields["data"]
			if hasSuccess || hasData {
				return decodeEnvelope(fields)
			}
		}
	}

	return &Envelope{Success: true, Data: append(json.RawMessage(nil), trimmed...)}
}

func decodeEnvelope(fields map[string]json.RawMessage) *Envelope {
	env := &Envelope{Success: true}

	if raw, ok := fields["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err == nil {
			env.Success = success
		}
	}
	if raw, ok := fields["data"]; ok {
		env.Data = append(json.RawMessage(nil), raw...)
	}
	if raw, ok := fields["message"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			env.Message = msg
		}
	}
	return env
}
