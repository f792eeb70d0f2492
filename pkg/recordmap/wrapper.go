package recordmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecognizedShape is returned when a wrapper is neither a nested nor a
// flat record (null, array, scalar or broken JSON).
var ErrUnrecognizedShape = errors.New("unrecognized wrapper shape")

// Shape tells how a wrapper carried its payload.
type Shape int

const (
	// ShapeFlat means the wrapper is the record itself.
	ShapeFlat Shape = iota + 1

	// ShapeNested means the record sits one level down under "value".
	ShapeNested
)

// String implements fmt.Stringer.
func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Wrapper is a raw record-map entry as returned by the API.
type Wrapper json.RawMessage

// IsNull reports whether the wrapper is absent or JSON null.
func (w Wrapper) IsNull() bool {
	trimmed := bytes.TrimSpace(w)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Payload is a wrapper resolved to the record it carries.
type Payload struct {
	Shape Shape
	Raw   json.RawMessage
}

// Unwrap resolves the wrapper once. The nested form ({"value": {...}}) is
// tried first, then the flat form. Only one level of nesting is unwrapped.
func (w Wrapper) Unwrap() (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(w, &fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if fields == nil {
		return Payload{}, fmt.Errorf("%w: null wrapper", ErrUnrecognizedShape)
	}

	if inner, ok := fields["value"]; ok && isObject(inner) {
		return Payload{Shape: ShapeNested, Raw: inner}, nil
	}
	return Payload{Shape: ShapeFlat, Raw: json.RawMessage(w)}, nil
}

// Block decodes the payload as block metadata.
func (p Payload) Block() (Block, error) {
	var b Block
	if err := json.Unmarshal(p.Raw, &b); err != nil {
		return Block{}, fmt.Errorf("decode %s block: %w", p.Shape, err)
	}
	return b, nil
}

// Collection decodes the payload as a collection.
func (p Payload) Collection() (Collection, error) {
	var c Collection
	if err := json.Unmarshal(p.Raw, &c); err != nil {
		return Collection{}, fmt.Errorf("decode %s collection: %w", p.Shape, err)
	}
	return c, nil
}

// UnwrapBlock is Unwrap followed by Block.
func (w Wrapper) UnwrapBlock() (Block, error) {
	p, err := w.Unwrap()
	if err != nil {
		return Block{}, err
	}
	return p.Block()
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
