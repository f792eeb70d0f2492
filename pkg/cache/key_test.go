package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "posts of dashed page id",
			key:  PostsKey("3f2504e0-4f89-41d3-9a0c-0305e82c3301"),
			want: "notion:posts:3f2504e0-4f89-41d3-9a0c-0305e82c3301",
		},
		{
			name: "posts of compact upper-case page id",
			key:  PostsKey("3F2504E04F8941D39A0C0305E82C3301"),
			want: "notion:posts:3f2504e0-4f89-41d3-9a0c-0305e82c3301",
		},
		{
			name: "resource only",
			key:  CacheKey{Resource: "/posts/"},
			want: "notion:posts",
		},
		{
			name: "blank page id is omitted",
			key:  CacheKey{Resource: "posts", PageID: "  "},
			want: "notion:posts",
		},
		{
			name: "query params (sorted)",
			key: CacheKey{
				Resource: "posts",
				PageID:   "abc",
				QueryParams: url.Values{
					"tag":  []string{"go"},
					"lang": []string{"en"},
				},
			},
			want: "notion:posts:abc:lang=en:tag=go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	key := CacheKey{
		Resource: "posts",
		PageID:   "page",
		QueryParams: url.Values{
			"z": []string{"3"},
			"a": []string{"1"},
			"m": []string{"2"},
		},
	}

	first := key.String()
	for i := 0; i < 100; i++ {
		if got := key.String(); got != first {
			t.Fatalf("Non-deterministic key: iteration %d got %q, want %q", i, got, first)
		}
	}
}
