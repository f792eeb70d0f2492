package recordmap

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/notion-posts/pkg/pageid"
)

// ErrInvalid matches every structural failure reported by Normalize.
var ErrInvalid = errors.New("invalid record map")

// Root page types that identify a collection page.
const (
	TypeCollectionViewPage = "collection_view_page"
	TypeCollectionView     = "collection_view"
)

// Reason classifies why a record map was rejected.
type Reason string

const (
	// ReasonNoCollection means the collection table holds no usable entry.
	ReasonNoCollection Reason = "no_collection"

	// ReasonMalformedCollection means the collection wrapper has no recognizable shape.
	ReasonMalformedCollection Reason = "malformed_collection"

	// ReasonMissingBlock means the root page is not in the block table.
	ReasonMissingBlock Reason = "missing_block"

	// ReasonMalformedBlock means the root block wrapper has no recognizable shape.
	ReasonMalformedBlock Reason = "malformed_block"

	// ReasonWrongType means the root block is not a collection page.
	ReasonWrongType Reason = "wrong_type"
)

// InvalidError reports a record map that cannot produce posts. Retrying
// the fetch will not fix it.
type InvalidError struct {
	Reason Reason
	Detail string
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid record map (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("invalid record map (%s)", e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) succeed for any InvalidError.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Normalized is what Normalize extracts from a root page response.
type Normalized struct {
	CollectionID string
	Schema       Schema
	Root         Block

	CollectionShape Shape
	RootShape       Shape
}

// IsCollectionPageType reports whether t is an allowed root page type.
func IsCollectionPageType(t string) bool {
	return t == TypeCollectionViewPage || t == TypeCollectionView
}

// Normalize extracts the collection schema and the root page metadata
// from rm. rootID may be in any form pageid.Canonical accepts. Normalize
// performs no I/O.
func Normalize(rm *RecordMap, rootID string) (*Normalized, error) {
	if rm == nil {
		return nil, &InvalidError{Reason: ReasonNoCollection, Detail: "nil record map"}
	}

	collectionID, wrapper, ok := firstCollection(rm.Collection)
	if !ok {
		return nil, &InvalidError{Reason: ReasonNoCollection}
	}

	payload, err := wrapper.Unwrap()
	if err != nil {
		return nil, &InvalidError{Reason: ReasonMalformedCollection, Detail: err.Error()}
	}
	collection, err := payload.Collection()
	if err != nil {
		return nil, &InvalidError{Reason: ReasonMalformedCollection, Detail: err.Error()}
	}

	rootKey := pageid.Canonical(rootID)
	rootWrapper, ok := rm.Block.Get(rootKey)
	if !ok || rootWrapper.IsNull() {
		return nil, &InvalidError{Reason: ReasonMissingBlock, Detail: rootKey}
	}

	rootPayload, err := rootWrapper.Unwrap()
	if err != nil {
		return nil, &InvalidError{Reason: ReasonMalformedBlock, Detail: err.Error()}
	}
	root, err := rootPayload.Block()
	if err != nil {
		return nil, &InvalidError{Reason: ReasonMalformedBlock, Detail: err.Error()}
	}

	if !IsCollectionPageType(root.Type) {
		return nil, &InvalidError{Reason: ReasonWrongType, Detail: fmt.Sprintf("type %q", root.Type)}
	}

	return &Normalized{
		CollectionID:    collectionID,
		Schema:          collection.Schema,
		Root:            root,
		CollectionShape: payload.Shape,
		RootShape:       rootPayload.Shape,
	}, nil
}

// firstCollection returns the first non-null collection in document order.
func firstCollection(t Table) (string, Wrapper, bool) {
	for _, key := range t.keys {
		w := t.entries[key]
		if w.IsNull() {
			continue
		}
		return key, w, true
	}
	return "", nil, false
}
