// Package recordmap models the record map returned by Notion's content API
// and normalizes its inconsistent wrapper shapes.
//
// Every table entry may carry its record directly or one level deeper under
// a "value" field, depending on the API version that produced it. Wrapper
// resolves that once into a Payload tagged with its Shape; Normalize uses it
// to pull the collection schema and root page metadata out of a page
// response.
package recordmap

import (
	"encoding/json"
	"time"
)

// RecordMap is the payload of a single page fetch.
type RecordMap struct {
	Block          Table `json:"block"`
	Collection     Table `json:"collection"`
	CollectionView Table `json:"collection_view"`

	// CollectionQuery maps collection id -> view id -> query result.
	CollectionQuery map[string]map[string]QueryResult `json:"collection_query,omitempty"`
}

// QueryResult is the reducer output of a collection query. Older API
// versions return blockIds at the top level, newer ones inside
// collection_group_results.
type QueryResult struct {
	BlockIDs               []string     `json:"blockIds,omitempty"`
	CollectionGroupResults *GroupResult `json:"collection_group_results,omitempty"`
}

// GroupResult holds the ordered page ids of a collection view.
type GroupResult struct {
	Type     string   `json:"type,omitempty"`
	BlockIDs []string `json:"blockIds"`
	HasMore  bool     `json:"hasMore,omitempty"`
}

// PageIDs returns the page ids of the query result in view order.
func (q QueryResult) PageIDs() []string {
	if q.CollectionGroupResults != nil && len(q.CollectionGroupResults.BlockIDs) > 0 {
		return q.CollectionGroupResults.BlockIDs
	}
	return q.BlockIDs
}

// Block is the metadata of a single block (a page is a block).
type Block struct {
	ID             string                     `json:"id"`
	Type           string                     `json:"type"`
	Alive          *bool                      `json:"alive,omitempty"`
	ParentID       string                     `json:"parent_id,omitempty"`
	ParentTable    string                     `json:"parent_table,omitempty"`
	CreatedTime    float64                    `json:"created_time,omitempty"`
	LastEditedTime float64                    `json:"last_edited_time,omitempty"`
	Properties     map[string]json.RawMessage `json:"properties,omitempty"`
	Format         *BlockFormat               `json:"format,omitempty"`
	Content        []string                   `json:"content,omitempty"`
	CollectionID   string                     `json:"collection_id,omitempty"`
	ViewIDs        []string                   `json:"view_ids,omitempty"`
}

// BlockFormat holds the layout flags of a page block.
type BlockFormat struct {
	PageFullWidth *bool `json:"page_full_width,omitempty"`
}

// CreatedAt converts the millisecond epoch creation time. A missing value
// yields the Unix epoch.
func (b Block) CreatedAt() time.Time {
	return time.UnixMilli(int64(b.CreatedTime)).UTC()
}

// FullWidth reports the page_full_width layout flag, false when unset.
func (b Block) FullWidth() bool {
	if b.Format == nil || b.Format.PageFullWidth == nil {
		return false
	}
	return *b.Format.PageFullWidth
}

// Collection is a Notion collection (database).
type Collection struct {
	ID     string          `json:"id"`
	Name   json.RawMessage `json:"name,omitempty"`
	Schema Schema          `json:"schema"`
}

// Schema maps property ids to their definitions.
type Schema map[string]SchemaProperty

// SchemaProperty is one property definition of a collection schema.
type SchemaProperty struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// PropertyID returns the id of the first property with the given type, or
// "" when none matches. Schemas are unordered, so callers relying on this
// should only ask for types that occur once (title, created_time).
func (s Schema) PropertyID(propertyType string) string {
	for id, prop := range s {
		if prop.Type == propertyType {
			return id
		}
	}
	return ""
}
