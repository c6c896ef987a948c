package research

import (
	"context"
	"fmt"

	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/services"
)

const (
	maxSources = 20
	excerptLen = 420
)

const packageNotes = "This research package aggregates diverse sources. Summaries should separate verifiable facts from speculation and avoid loaded language."

// Searcher finds recent external coverage of a topic.
type Searcher interface {
	SearchNews(ctx context.Context, topic string, days, numResults int) ([]services.ExaSource, error)
}

// Store supplies locally ingested articles.
type Store interface {
	RecentArticles(ctx context.Context, limit int) ([]models.Article, error)
}

// Options bound the two source streams feeding a package.
type Options struct {
	ExaDays        int
	ExaNumResults  int
	MaxRSSArticles int
}

// Build assembles the research package for one topic: external search hits
// first, then locally ingested articles, deduplicated by URL and capped.
// Either stream failing fails the build — a package missing a whole stream
// would silently skew the summary.
func Build(ctx context.Context, searcher Searcher, store Store, topic string, opts Options) (*models.ResearchPackage, error) {
	if opts.ExaDays <= 0 {
		opts.ExaDays = 7
	}
	if opts.ExaNumResults <= 0 {
		opts.ExaNumResults = 10
	}
	if opts.MaxRSSArticles <= 0 {
		opts.MaxRSSArticles = 10
	}

	exaSources, err := searcher.SearchNews(ctx, topic, opts.ExaDays, opts.ExaNumResults)
	if err != nil {
		return nil, fmt.Errorf("news search failed for %q: %w", topic, err)
	}

	articles, err := store.RecentArticles(ctx, opts.MaxRSSArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to load ingested articles: %w", err)
	}

	var merged []models.ResearchSource
	seen := make(map[string]bool)

	for _, exa := range exaSources {
		if exa.URL == "" || seen[exa.URL] {
			continue
		}
		merged = append(merged, models.ResearchSource{
			Title:       exa.Title,
			URL:         exa.URL,
			PublishedAt: exa.PublishedDate,
			Excerpt:     excerpt(exa.Text),
			FullText:    exa.Text,
		})
		seen[exa.URL] = true
	}

	for _, a := range articles {
		if a.ContentURL == "" || seen[a.ContentURL] {
			continue
		}
		src := models.ResearchSource{
			Title:       a.Headline,
			URL:         a.ContentURL,
			Outlet:      a.Source,
			PublishedAt: a.PublishedAt,
		}
		if a.FullText != nil {
			src.Excerpt = excerpt(*a.FullText)
			src.FullText = *a.FullText
		}
		merged = append(merged, src)
		seen[a.ContentURL] = true
	}

	if len(merged) > maxSources {
		merged = merged[:maxSources]
	}

	return &models.ResearchPackage{
		Topic:   topic,
		Sources: merged,
		Notes:   packageNotes,
	}, nil
}

func excerpt(text string) string {
	if len(text) > excerptLen {
		return text[:excerptLen]
	}
	return text
}
