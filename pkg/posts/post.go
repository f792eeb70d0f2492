package posts

import (
	"encoding/json"
	"sort"
	"time"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Date is an explicit date property of a post.
type Date struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// Post is one assembled child page.
type Post struct {
	// ID is the canonical page id.
	ID string

	// Properties holds the extracted property values keyed by property
	// name. Keys "id", "date", "createdTime" and "fullWidth" are shadowed by
	// the fields below when encoding.
	Properties map[string]any

	// Date is the explicit date property, nil when the page has none.
	Date *Date

	// CreatedTime is the page creation time in ISO 8601 (UTC, millisecond
	// precision). Injected by the Assembler.
	CreatedTime string

	// FullWidth is the page_full_width layout flag. Injected by the
	// Assembler.
	FullWidth bool
}

// MarshalJSON flattens Properties next to the fixed fields.
func (p Post) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Properties)+4)
	for k, v := range p.Properties {
		out[k] = v
	}
	out["id"] = p.ID
	if p.Date != nil {
		out["date"] = p.Date
	}
	out["createdTime"] = p.CreatedTime
	out["fullWidth"] = p.FullWidth
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Cached post lists are read
// back through it.
func (p *Post) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*p = Post{Properties: make(map[string]any)}
	for k, raw := range fields {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(raw, &p.ID)
		case "date":
			err = json.Unmarshal(raw, &p.Date)
		case "createdTime":
			err = json.Unmarshal(raw, &p.CreatedTime)
		case "fullWidth":
			err = json.Unmarshal(raw, &p.FullWidth)
		default:
			var v any
			err = json.Unmarshal(raw, &v)
			p.Properties[k] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SortKey is the time a post is ordered by: the explicit start date when
// present and parseable, the creation time otherwise.
func (p Post) SortKey() time.Time {
	if p.Date != nil && p.Date.StartDate != "" {
		if t, ok := parseTime(p.Date.StartDate); ok {
			return t
		}
	}
	t, _ := parseTime(p.CreatedTime)
	return t
}

// SortNewestFirst orders posts descending by SortKey. Equal keys keep
// their input order.
func SortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].SortKey().After(posts[j].SortKey())
	})
}

var dateLayouts = []string{
	time.RFC3339Nano,
	isoMillis,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatCreatedTime renders t the way CreatedTime is stored.
func FormatCreatedTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
