package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/notion-posts/pkg/recordmap"
	"github.com/Sternrassler/notion-posts/pkg/throttle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rootPageID = "3f2504e04f8941d39a0c0305e82c3301"
	rootKey    = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	childA     = "00000000-0000-4000-8000-00000000000a"
	childB     = "00000000-0000-4000-8000-00000000000b"
	childC     = "00000000-0000-4000-8000-00000000000c"
	childGone  = "00000000-0000-4000-8000-0000000000ff"
)

// fakeAPI serves a root page and child blocks from memory.
type fakeAPI struct {
	rootType    string
	children    map[string]string // id -> block wrapper JSON
	pageErr     error
	pageCalls   []string
	blocksCalls [][]string
}

func (f *fakeAPI) GetPage(_ context.Context, id string) (*recordmap.RecordMap, error) {
	f.pageCalls = append(f.pageCalls, id)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	doc := fmt.Sprintf(`{
		"collection": {"col": {"value": {"id": "col", "schema": {"title": {"name": "title", "type": "title"}}}}},
		"block": {%q: {"value": {"id": %q, "type": %q}}}
	}`, rootKey, rootKey, f.rootType)

	var rm recordmap.RecordMap
	if err := json.Unmarshal([]byte(doc), &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}

func (f *fakeAPI) GetBlocks(_ context.Context, ids []string) (recordmap.Table, error) {
	f.blocksCalls = append(f.blocksCalls, ids)
	tbl := recordmap.NewTable()
	for _, id := range ids {
		if raw, ok := f.children[id]; ok {
			tbl.Set(id, recordmap.Wrapper(raw))
		}
	}
	return tbl, nil
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		rootType: "collection_view_page",
		children: map[string]string{
			// Mixed shapes on purpose.
			childA: `{"value": {"id": "a", "type": "page", "created_time": 1700000000000}}`,
			childB: `{"id": "b", "type": "page", "created_time": 1710000000000, "format": {"page_full_width": true}}`,
			childC: `{"value": {"id": "c", "type": "page", "created_time": 1690000000000}}`,
		},
	}
}

func staticEnumerator(ids ...string) Enumerator {
	return EnumeratorFunc(func(*recordmap.RecordMap) []string {
		return ids
	})
}

// titleExtractor returns a post with the page id as title.
var titleExtractor = ExtractorFunc(func(_ context.Context, id string, _ recordmap.Table, _ recordmap.Schema) (*Post, error) {
	return &Post{ID: id, Properties: map[string]any{"title": "post " + id[len(id)-1:]}}, nil
})

func noSleep(context.Context, time.Duration) error { return nil }

func newTestAssembler(t *testing.T, api API, en Enumerator, ex Extractor) *Assembler {
	t.Helper()
	a, err := NewAssembler(api, en, ex, DefaultConfig(), WithSleep(noSleep), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return a
}

func TestNewAssembler_Validation(t *testing.T) {
	api := newFakeAPI()
	en := staticEnumerator()

	_, err := NewAssembler(nil, en, titleExtractor, DefaultConfig())
	assert.EqualError(t, err, "api is required")

	_, err = NewAssembler(api, nil, titleExtractor, DefaultConfig())
	assert.EqualError(t, err, "page id enumerator is required")

	_, err = NewAssembler(api, en, nil, DefaultConfig())
	assert.EqualError(t, err, "property extractor is required")
}

func TestAssemble_SkipsMissingBlockAndSortsByCreatedTime(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator(childA, childGone, childB), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 2)
	assert.Equal(t, childB, got[0].ID)
	assert.Equal(t, childA, got[1].ID)
	assert.Equal(t, "2024-03-09T16:00:00.000Z", got[0].CreatedTime)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", got[1].CreatedTime)
	assert.True(t, got[0].FullWidth)
	assert.False(t, got[1].FullWidth)
}

func TestAssemble_ThreeValidChildrenOneMissing(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator(childA, childGone, childB, childC), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 3)
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{childB, childA, childC}, ids)
}

func TestAssemble_ExplicitDateWins(t *testing.T) {
	api := newFakeAPI()
	dated := ExtractorFunc(func(_ context.Context, id string, _ recordmap.Table, _ recordmap.Schema) (*Post, error) {
		p := &Post{ID: id}
		if id == childC {
			// Oldest created page, newest explicit date.
			p.Date = &Date{StartDate: "2025-01-01"}
		}
		return p, nil
	})
	a := newTestAssembler(t, api, staticEnumerator(childA, childB, childC), dated)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 3)
	assert.Equal(t, childC, got[0].ID)
	assert.Equal(t, childB, got[1].ID)
	assert.Equal(t, childA, got[2].ID)
}

func TestAssemble_Idempotent(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator(childA, childB, childC, childGone), titleExtractor)

	first := a.Assemble(context.Background(), rootPageID)
	second := a.Assemble(context.Background(), rootPageID)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestAssemble_BlankRootMakesNoRemoteCall(t *testing.T) {
	for _, root := range []string{"", "   "} {
		api := newFakeAPI()
		a := newTestAssembler(t, api, staticEnumerator(childA), titleExtractor)

		got := a.Assemble(context.Background(), root)

		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Empty(t, api.pageCalls)
		assert.Empty(t, api.blocksCalls)
	}
}

func TestAssemble_AliasRootReturnsEmpty(t *testing.T) {
	api := newFakeAPI()
	api.rootType = "alias"
	a := newTestAssembler(t, api, staticEnumerator(childA), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	assert.Empty(t, got)
	assert.Empty(t, api.blocksCalls, "children must not be fetched for an invalid root")
}

func TestAssemble_RootIDPassedAsGiven(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator(childA), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 1)
	assert.Equal(t, []string{rootPageID}, api.pageCalls)
}

func TestAssemble_RootFetchExhausted(t *testing.T) {
	api := newFakeAPI()
	api.pageErr = errors.New("status 429")
	a := newTestAssembler(t, api, staticEnumerator(childA), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	assert.Empty(t, got)
	assert.Len(t, api.pageCalls, throttle.DefaultConfig().MaxAttempts)
}

func TestAssemble_FiltersBlankChildIDs(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator("", childA, "  ", childA), titleExtractor)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 1)
	require.Len(t, api.blocksCalls, 1)
	assert.Equal(t, []string{childA}, api.blocksCalls[0])
}

func TestAssemble_NoChildrenReturnsEmpty(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator("", " "), titleExtractor)

	assert.Empty(t, a.Assemble(context.Background(), rootPageID))
	assert.Empty(t, api.blocksCalls)
}

func TestAssemble_ExtractorFailuresSkipPages(t *testing.T) {
	api := newFakeAPI()
	picky := ExtractorFunc(func(_ context.Context, id string, _ recordmap.Table, _ recordmap.Schema) (*Post, error) {
		switch id {
		case childA:
			return nil, errors.New("unparseable properties")
		case childB:
			return nil, nil
		default:
			return &Post{ID: id}, nil
		}
	})
	a := newTestAssembler(t, api, staticEnumerator(childA, childB, childC), picky)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 1)
	assert.Equal(t, childC, got[0].ID)
}

func TestAssemble_SchemaReachesExtractor(t *testing.T) {
	api := newFakeAPI()
	var seen recordmap.Schema
	ex := ExtractorFunc(func(_ context.Context, id string, _ recordmap.Table, schema recordmap.Schema) (*Post, error) {
		seen = schema
		return &Post{ID: id}, nil
	})
	a := newTestAssembler(t, api, staticEnumerator(childA), ex)

	a.Assemble(context.Background(), rootPageID)

	assert.Equal(t, recordmap.Schema{"title": {Name: "title", Type: "title"}}, seen)
}

func TestAssemble_CancelledContext(t *testing.T) {
	api := newFakeAPI()
	a := newTestAssembler(t, api, staticEnumerator(childA), titleExtractor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, a.Assemble(ctx, rootPageID))
	assert.Empty(t, api.pageCalls)
}

func TestAssemble_DefaultsMissingIDToPageID(t *testing.T) {
	api := newFakeAPI()
	anonymous := ExtractorFunc(func(context.Context, string, recordmap.Table, recordmap.Schema) (*Post, error) {
		return &Post{}, nil
	})
	a := newTestAssembler(t, api, staticEnumerator(childA), anonymous)

	got := a.Assemble(context.Background(), rootPageID)

	require.Len(t, got, 1)
	assert.Equal(t, childA, got[0].ID)
}
