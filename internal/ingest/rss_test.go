package ingest

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips utm params",
			in:   "https://example.com/story?utm_source=rss&utm_medium=feed&id=7",
			want: "https://example.com/story?id=7",
		},
		{
			name: "strips fragment",
			in:   "https://example.com/story#section-2",
			want: "https://example.com/story",
		},
		{
			name: "strips trailing slash",
			in:   "https://example.com/story/",
			want: "https://example.com/story",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "plain url unchanged",
			in:   "https://example.com/a/b?q=1",
			want: "https://example.com/a/b?q=1",
		},
		{
			name: "whitespace trimmed",
			in:   "  https://example.com/story  ",
			want: "https://example.com/story",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
