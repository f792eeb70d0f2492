package recordmap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/notion-posts/pkg/pageid"
)

// Table is one record-map table (block, collection, collection_view).
// Keys are canonical page identifiers and keep the order in which they
// first appeared, so "the first collection" means the same thing as in the
// JSON document the API sent.
type Table struct {
	keys    []string
	entries map[string]Wrapper
}

// NewTable returns an empty table.
func NewTable() Table {
	return Table{entries: make(map[string]Wrapper)}
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t.keys)
}

// Keys returns the canonical keys in insertion order.
func (t Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get looks up a wrapper by id. The id is canonicalized first.
func (t Table) Get(id string) (Wrapper, bool) {
	w, ok := t.entries[pageid.Canonical(id)]
	return w, ok
}

// Has reports whether the table holds id.
func (t Table) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

// Set stores w under the canonical form of id. A replaced entry keeps its
// original position.
func (t *Table) Set(id string, w Wrapper) {
	if t.entries == nil {
		t.entries = make(map[string]Wrapper)
	}
	key := pageid.Canonical(id)
	if _, exists := t.entries[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.entries[key] = w
}

// Merge adds the entries of other that t does not hold yet and returns how
// many were added. Existing keys are never overwritten.
func (t *Table) Merge(other Table) int {
	added := 0
	for _, key := range other.keys {
		if t.Has(key) {
			continue
		}
		t.Set(key, other.entries[key])
		added++
	}
	return added
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (t *Table) UnmarshalJSON(data []byte) error {
	*t = NewTable()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode table: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode table key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode table: unexpected key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode table entry %q: %w", key, err)
		}
		t.Set(key, Wrapper(raw))
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	return nil
}

// MarshalJSON encodes the table as a JSON object in insertion order.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		w := t.entries[key]
		if len(w) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(w)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
