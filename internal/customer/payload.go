package customer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ShapeError reports a payload that matches none of the known record shapes.
// It is terminal: callers show an "unexpected data format" state and never a
// partially filled record.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "unexpected data format: " + e.Reason
}

func shapeErrorf(format string, args ...any) error {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

// Payload is one backend customer encoding. It is implemented by
// KeyedPayload, WrappedPayload and PositionalPayload only.
type Payload interface {
	shape() string
}

// KeyedPayload is a flat object keyed by field name.
type KeyedPayload map[string]any

// WrappedPayload is the {"customer": {...}} envelope used by the detail endpoint.
type WrappedPayload struct {
	Customer KeyedPayload
}

// PositionalPayload is the legacy row encoding: LegacyColumns values in fixed order.
type PositionalPayload []any

func (KeyedPayload) shape() string      { return "object" }
func (WrappedPayload) shape() string    { return "wrapped" }
func (PositionalPayload) shape() string { return "positional" }

// ParsePayload decodes one JSON customer payload and classifies its shape.
func ParsePayload(data []byte) (Payload, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, shapeErrorf("invalid json: %v", err)
	}
	return PayloadOf(v)
}

// PayloadOf classifies an already decoded value.
func PayloadOf(v any) (Payload, error) {
	switch x := v.(type) {
	case Payload:
		return x, nil
	case map[string]any:
		if inner, ok := x["customer"].(map[string]any); ok {
			return WrappedPayload{Customer: KeyedPayload(inner)}, nil
		}
		return KeyedPayload(x), nil
	case []any:
		if len(x) != len(LegacyColumns) {
			return nil, shapeErrorf("positional record has %d values, want %d", len(x), len(LegacyColumns))
		}
		return PositionalPayload(x), nil
	case nil:
		return nil, shapeErrorf("empty payload")
	default:
		return nil, shapeErrorf("unsupported payload type %T", v)
	}
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
