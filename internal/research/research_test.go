package research

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/services"
)

type fakeSearcher struct {
	sources []services.ExaSource
}

func (f *fakeSearcher) SearchNews(ctx context.Context, topic string, days, numResults int) ([]services.ExaSource, error) {
	return f.sources, nil
}

type fakeStore struct {
	articles []models.Article
}

func (f *fakeStore) RecentArticles(ctx context.Context, limit int) ([]models.Article, error) {
	return f.articles, nil
}

func TestBuildMergesSearchFirst(t *testing.T) {
	now := time.Now()
	text := "exa body"
	searcher := &fakeSearcher{sources: []services.ExaSource{
		{Title: "Exa hit", URL: "https://a.example/1", PublishedDate: &now, Text: "exa text"},
	}}
	store := &fakeStore{articles: []models.Article{
		{Headline: "RSS story", ContentURL: "https://b.example/2", Source: "Feed", FullText: &text},
	}}

	pkg, err := Build(context.Background(), searcher, store, "chips", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if pkg.Topic != "chips" {
		t.Errorf("topic = %q", pkg.Topic)
	}
	if len(pkg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(pkg.Sources))
	}
	if pkg.Sources[0].URL != "https://a.example/1" {
		t.Errorf("search hits should come first, got %s", pkg.Sources[0].URL)
	}
	if pkg.Sources[1].Outlet != "Feed" {
		t.Errorf("rss source missing outlet: %+v", pkg.Sources[1])
	}
	if pkg.Notes == "" {
		t.Error("notes should not be empty")
	}
}

func TestBuildDedupesByURL(t *testing.T) {
	dup := "https://a.example/same"
	searcher := &fakeSearcher{sources: []services.ExaSource{
		{Title: "first", URL: dup, Text: "one"},
		{Title: "second", URL: dup, Text: "two"},
	}}
	store := &fakeStore{articles: []models.Article{
		{Headline: "third", ContentURL: dup, Source: "Feed"},
	}}

	pkg, err := Build(context.Background(), searcher, store, "t", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(pkg.Sources) != 1 {
		t.Fatalf("expected 1 deduped source, got %d", len(pkg.Sources))
	}
	if pkg.Sources[0].Title != "first" {
		t.Errorf("first occurrence should win, got %q", pkg.Sources[0].Title)
	}
}

func TestBuildIdempotentMembership(t *testing.T) {
	searcher := &fakeSearcher{sources: []services.ExaSource{
		{Title: "a", URL: "https://x/1"},
		{Title: "b", URL: "https://x/2"},
	}}
	store := &fakeStore{articles: []models.Article{
		{Headline: "c", ContentURL: "https://x/2", Source: "Feed"},
		{Headline: "d", ContentURL: "https://x/3", Source: "Feed"},
	}}

	first, err := Build(context.Background(), searcher, store, "t", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := Build(context.Background(), searcher, store, "t", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	urls := func(pkg *models.ResearchPackage) map[string]bool {
		m := map[string]bool{}
		for _, s := range pkg.Sources {
			if m[s.URL] {
				t.Fatalf("duplicate url %s", s.URL)
			}
			m[s.URL] = true
		}
		return m
	}

	a, b := urls(first), urls(second)
	if len(a) != len(b) {
		t.Fatalf("membership differs: %d vs %d", len(a), len(b))
	}
	for u := range a {
		if !b[u] {
			t.Errorf("url %s missing from second build", u)
		}
	}
}

func TestBuildCapsSources(t *testing.T) {
	var sources []services.ExaSource
	for i := 0; i < 30; i++ {
		sources = append(sources, services.ExaSource{
			Title: "hit",
			URL:   "https://x/" + strings.Repeat("a", i+1),
		})
	}
	searcher := &fakeSearcher{sources: sources}
	store := &fakeStore{}

	pkg, err := Build(context.Background(), searcher, store, "t", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(pkg.Sources) != maxSources {
		t.Errorf("expected cap at %d, got %d", maxSources, len(pkg.Sources))
	}
}

func TestExcerptTruncates(t *testing.T) {
	long := strings.Repeat("x", 1000)
	searcher := &fakeSearcher{sources: []services.ExaSource{
		{Title: "a", URL: "https://x/1", Text: long},
	}}

	pkg, err := Build(context.Background(), searcher, &fakeStore{}, "t", Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := len(pkg.Sources[0].Excerpt); got != excerptLen {
		t.Errorf("excerpt length = %d, want %d", got, excerptLen)
	}
	if len(pkg.Sources[0].FullText) != 1000 {
		t.Errorf("full text should be untruncated")
	}
}
