// Package collection provides the default collaborators of the post
// assembler: a page-id enumerator over collection query results and a
// plain-text property extractor.
package collection

import (
	"github.com/Sternrassler/notion-posts/pkg/pageid"
	"github.com/Sternrassler/notion-posts/pkg/recordmap"
)

// PageIDs lists the child pages of a collection page response.
//
// Collection view blocks are visited in record-map order and their views in
// view_ids order, taking each view's query result. When the record map
// carries no query results, pages whose parent is a collection are listed
// in block-table order instead. Ids are returned canonical and
// de-duplicated.
func PageIDs(rm *recordmap.RecordMap) []string {
	if rm == nil {
		return nil
	}

	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if pageid.IsBlank(id) {
			return
		}
		key := pageid.Canonical(id)
		if seen[key] {
			return
		}
		seen[key] = true
		ids = append(ids, key)
	}

	for _, key := range rm.Block.Keys() {
		w, _ := rm.Block.Get(key)
		block, err := w.UnwrapBlock()
		if err != nil || !recordmap.IsCollectionPageType(block.Type) {
			continue
		}
		views := lookupViews(rm.CollectionQuery, block.CollectionID)
		for _, viewID := range block.ViewIDs {
			if q, ok := lookupQuery(views, viewID); ok {
				for _, id := range q.PageIDs() {
					add(id)
				}
			}
		}
	}
	if len(ids) > 0 {
		return ids
	}

	for _, key := range rm.Block.Keys() {
		w, _ := rm.Block.Get(key)
		block, err := w.UnwrapBlock()
		if err != nil || block.Type != "page" || block.ParentTable != "collection" {
			continue
		}
		if block.Alive != nil && !*block.Alive {
			continue
		}
		add(key)
	}
	return ids
}

func lookupViews(queries map[string]map[string]recordmap.QueryResult, collectionID string) map[string]recordmap.QueryResult {
	if views, ok := queries[collectionID]; ok {
		return views
	}
	want := pageid.Canonical(collectionID)
	for id, views := range queries {
		if pageid.Canonical(id) == want {
			return views
		}
	}
	return nil
}

func lookupQuery(views map[string]recordmap.QueryResult, viewID string) (recordmap.QueryResult, bool) {
	if q, ok := views[viewID]; ok {
		return q, true
	}
	want := pageid.Canonical(viewID)
	for id, q := range views {
		if pageid.Canonical(id) == want {
			return q, true
		}
	}
	return recordmap.QueryResult{}, false
}
