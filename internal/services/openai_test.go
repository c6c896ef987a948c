package services

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kehsibha/walter/internal/models"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "code fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "leading prose", in: "Here you go: {\"a\":1}", want: `{"a":1}`},
		{name: "no object", in: "sorry, no", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 80); got != "short" {
		t.Errorf("short input should pass through, got %q", got)
	}

	got := truncateString(strings.Repeat("x", 100), 20)
	if got != strings.Repeat("x", 20)+"..." {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestTrimToMax(t *testing.T) {
	if got := trimToMax("  short  ", 80); got != "short" {
		t.Errorf("expected trim only, got %q", got)
	}

	long := strings.Repeat("word ", 40)
	got := trimToMax(long, 80)
	if utf8.RuneCountInString(got) > 80 {
		t.Errorf("cap exceeded: %d runes", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncation should end with ellipsis, got %q", got)
	}
}

func TestCoerceWhatToWatchArray(t *testing.T) {
	raw := json.RawMessage(`["first", "  ", "second", "third", "fourth", "fifth"]`)
	got := coerceWhatToWatch(raw)
	if len(got) != 4 {
		t.Fatalf("expected cap at 4, got %d: %v", len(got), got)
	}
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected items: %v", got)
	}
}

func TestCoerceWhatToWatchString(t *testing.T) {
	raw := json.RawMessage(`"watch the vote; earnings next week\nregulator response"`)
	got := coerceWhatToWatch(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %v", got)
	}
}

func TestCoerceWhatToWatchEmpty(t *testing.T) {
	if got := coerceWhatToWatch(nil); got != nil {
		t.Errorf("nil input should give nil, got %v", got)
	}
	if got := coerceWhatToWatch(json.RawMessage(`42`)); got != nil {
		t.Errorf("unusable input should give nil, got %v", got)
	}
}

func TestCoerceSourcesObjects(t *testing.T) {
	raw := json.RawMessage(`[{"title":"Story","url":"https://x/1","outlet":"NPR"}]`)
	got := coerceSources(raw, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 source, got %d", len(got))
	}
	if got[0].Outlet != "NPR" {
		t.Errorf("outlet lost: %+v", got[0])
	}
}

func TestCoerceSourcesStringMatchesResearch(t *testing.T) {
	research := []models.ResearchSource{
		{Title: "Chip export rules tighten", URL: "https://x/chips", Outlet: "Reuters"},
	}
	raw := json.RawMessage(`["chip export rules", "https://y/unmatched", "not a url"]`)
	got := coerceSources(raw, research)
	if len(got) != 2 {
		t.Fatalf("expected 2 sources, got %v", got)
	}
	if got[0].URL != "https://x/chips" {
		t.Errorf("string should match research source, got %+v", got[0])
	}
	if got[1].URL != "https://y/unmatched" {
		t.Errorf("bare URL should pass through, got %+v", got[1])
	}
}

func TestMatchResearchSourceRejectsShortTitleOverlap(t *testing.T) {
	research := []models.ResearchSource{
		{Title: "A", URL: "https://x/1"},
	}

	if _, ok := matchResearchSource("garbage text", research); ok {
		t.Error("a one-letter title inside junk text must not count as a citation")
	}
	if _, ok := matchResearchSource("a", research); !ok {
		t.Error("an exact title match should still be accepted")
	}
}

func TestNormalizeSummaryFallbackSources(t *testing.T) {
	research := []models.ResearchSource{
		{Title: "A", URL: "https://x/1"},
		{Title: "B", URL: "https://x/2"},
	}
	raw := rawSummary{
		Headline:     "Headline",
		Lede:         "Lede",
		WhyItMatters: "Why",
		KeyFacts:     []string{"fact one", "fact two", "fact three"},
		BigPicture:   "Big picture",
		Sources:      json.RawMessage(`["garbage text"]`),
	}

	got := normalizeSummary(raw, research)
	if len(got.Sources) != 2 {
		t.Fatalf("expected research fallback, got %v", got.Sources)
	}
	if got.Sources[0].URL != "https://x/1" {
		t.Errorf("unexpected fallback order: %+v", got.Sources)
	}
}

func TestNormalizeSummaryCapsFields(t *testing.T) {
	raw := rawSummary{
		Headline:     strings.Repeat("h", 200),
		Lede:         "Lede",
		WhyItMatters: "Why",
		KeyFacts:     []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		BigPicture:   "Big",
		Sources:      json.RawMessage(`[{"title":"t","url":"https://x/1"}]`),
	}

	got := normalizeSummary(raw, nil)
	if utf8.RuneCountInString(got.Headline) > maxHeadlineLen {
		t.Errorf("headline over cap: %d", utf8.RuneCountInString(got.Headline))
	}
	if len(got.KeyFacts) != maxKeyFacts {
		t.Errorf("key facts not capped: %d", len(got.KeyFacts))
	}
}
