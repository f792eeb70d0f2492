package recordmap

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTable_PreservesDocumentOrder(t *testing.T) {
	var tbl Table
	if err := json.Unmarshal([]byte(`{"c": 1, "a": 2, "b": 3}`), &tbl); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got := tbl.Keys(); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Errorf("Keys() = %v, want [c a b]", got)
	}

	out, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `{"c":1,"a":2,"b":3}` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestTable_CanonicalKeys(t *testing.T) {
	var tbl Table
	doc := `{"3F2504E04F8941D39A0C0305E82C3301": {"type": "page"}}`
	if err := json.Unmarshal([]byte(doc), &tbl); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, id := range []string{
		"3f2504e04f8941d39a0c0305e82c3301",
		"3f2504e0-4f89-41d3-9a0c-0305e82c3301",
	} {
		if !tbl.Has(id) {
			t.Errorf("Has(%q) = false", id)
		}
	}
	if tbl.Keys()[0] != "3f2504e0-4f89-41d3-9a0c-0305e82c3301" {
		t.Errorf("stored key = %q", tbl.Keys()[0])
	}
}

func TestTable_NullDecodesEmpty(t *testing.T) {
	var rm RecordMap
	if err := json.Unmarshal([]byte(`{"block": null}`), &rm); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rm.Block.Len() != 0 {
		t.Errorf("Len() = %d, want 0", rm.Block.Len())
	}
}

func TestTable_RejectsNonObject(t *testing.T) {
	var tbl Table
	if err := json.Unmarshal([]byte(`[1,2]`), &tbl); err == nil {
		t.Error("Expected error for array table")
	}
}

func TestTable_MergeIsAdditive(t *testing.T) {
	acc := NewTable()
	acc.Set("a", Wrapper(`{"v": 1}`))

	other := NewTable()
	other.Set("a", Wrapper(`{"v": 2}`))
	other.Set("b", Wrapper(`{"v": 3}`))

	if added := acc.Merge(other); added != 1 {
		t.Errorf("Merge() added %d, want 1", added)
	}
	w, _ := acc.Get("a")
	if string(w) != `{"v": 1}` {
		t.Errorf("existing key overwritten: %s", w)
	}
	if !acc.Has("b") {
		t.Error("new key not merged")
	}

	// Merging the same table again changes nothing.
	if added := acc.Merge(other); added != 0 {
		t.Errorf("second Merge() added %d, want 0", added)
	}
	if acc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", acc.Len())
	}
}

func TestTable_SetKeepsPosition(t *testing.T) {
	var tbl Table
	tbl.Set("a", Wrapper(`1`))
	tbl.Set("b", Wrapper(`2`))
	tbl.Set("a", Wrapper(`3`))

	if got := tbl.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}
	if w, _ := tbl.Get("a"); string(w) != "3" {
		t.Errorf("Get(a) = %s, want 3", w)
	}
}
