package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/notion-posts/pkg/posts"
	"github.com/Sternrassler/notion-posts/pkg/recordmap"
)

// ErrNoProperties is returned for a page block without properties.
var ErrNoProperties = errors.New("page has no properties")

// Extractor turns a page block's properties into a post. Values are keyed by
// the schema's property name:
//
//   - date: a *posts.Date; the property named "date" becomes Post.Date
//   - select, multi_select: []string of the comma separated options
//   - person: []string of user ids
//   - file: []string of URLs
//   - everything else: the property's plain text
//
// Properties whose id is not in the schema are ignored.
type Extractor struct{}

// NewExtractor returns the default plain-text extractor.
func NewExtractor() Extractor {
	return Extractor{}
}

// Extract implements posts.Extractor.
func (Extractor) Extract(_ context.Context, pageID string, blocks recordmap.Table, schema recordmap.Schema) (*posts.Post, error) {
	wrapper, ok := blocks.Get(pageID)
	if !ok {
		return nil, fmt.Errorf("block %s not found", pageID)
	}
	block, err := wrapper.UnwrapBlock()
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", pageID, err)
	}
	if len(block.Properties) == 0 {
		return nil, fmt.Errorf("block %s: %w", pageID, ErrNoProperties)
	}

	post := &posts.Post{
		ID:         pageID,
		Properties: make(map[string]any, len(schema)),
	}
	for propID, prop := range schema {
		raw, ok := block.Properties[propID]
		if !ok || prop.Name == "" {
			continue
		}
		segments, err := decodeSegments(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q of %s: %w", prop.Name, pageID, err)
		}

		switch prop.Type {
		case "date":
			date := dateValue(segments)
			if date == nil {
				continue
			}
			if prop.Name == "date" {
				post.Date = date
			} else {
				post.Properties[prop.Name] = date
			}
		case "select", "multi_select":
			post.Properties[prop.Name] = splitOptions(plainText(segments))
		case "person":
			post.Properties[prop.Name] = mentions(segments, "u")
		case "file":
			post.Properties[prop.Name] = mentions(segments, "a")
		default:
			post.Properties[prop.Name] = plainText(segments)
		}
	}
	return post, nil
}

// segment is one run of a rich-text property: the text and its
// decorations, e.g. ["‣", [["d", {...}]]].
type segment struct {
	Text        string
	Decorations [][]json.RawMessage
}

func decodeSegments(raw json.RawMessage) ([]segment, error) {
	var runs [][]json.RawMessage
	if err := json.Unmarshal(raw, &runs); err != nil {
		return nil, fmt.Errorf("decode rich text: %w", err)
	}

	out := make([]segment, 0, len(runs))
	for _, run := range runs {
		if len(run) == 0 {
			continue
		}
		var s segment
		if err := json.Unmarshal(run[0], &s.Text); err != nil {
			return nil, fmt.Errorf("decode rich text run: %w", err)
		}
		if len(run) > 1 {
			// Unknown decoration layouts are dropped, not fatal.
			_ = json.Unmarshal(run[1], &s.Decorations)
		}
		out = append(out, s)
	}
	return out, nil
}

func plainText(segments []segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func splitOptions(text string) []string {
	out := []string{}
	for _, opt := range strings.Split(text, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}

// dateValue returns the first "d" decoration with a start date.
func dateValue(segments []segment) *posts.Date {
	for _, s := range segments {
		for _, deco := range s.Decorations {
			if len(deco) < 2 || decorationKind(deco) != "d" {
				continue
			}
			var d posts.Date
			if err := json.Unmarshal(deco[1], &d); err != nil || d.StartDate == "" {
				continue
			}
			return &d
		}
	}
	return nil
}

// mentions collects the values of all decorations of the given kind
// ("u" for users, "a" for links).
func mentions(segments []segment, kind string) []string {
	out := []string{}
	for _, s := range segments {
		for _, deco := range s.Decorations {
			if len(deco) < 2 || decorationKind(deco) != kind {
				continue
			}
			var v string
			if err := json.Unmarshal(deco[1], &v); err == nil && v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func decorationKind(deco []json.RawMessage) string {
	var kind string
	if err := json.Unmarshal(deco[0], &kind); err != nil {
		return ""
	}
	return kind
}
