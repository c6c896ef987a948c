package ingest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/kehsibha/walter/internal/models"
)

// DefaultFeeds is the built-in rotation of general-news RSS sources. Feeds
// that fail to fetch or parse are reported but never fail the ingest run.
var DefaultFeeds = []string{
	"https://feeds.bbci.co.uk/news/world/rss.xml",
	"https://feeds.bbci.co.uk/news/technology/rss.xml",
	"https://www.theguardian.com/world/rss",
	"https://www.theguardian.com/uk/business/rss",
	"https://feeds.arstechnica.com/arstechnica/index",
	"https://www.espn.com/espn/rss/news",
}

const (
	fetchTimeout       = 20 * time.Second
	maxSampleHeadlines = 12
)

// Store is the persistence surface ingest needs.
type Store interface {
	UpsertArticle(ctx context.Context, a *models.Article) error
}

// Result summarizes one ingest run. Errors holds per-feed failures; the run
// as a whole succeeds as long as the store stayed reachable.
type Result struct {
	InsertedOrUpdated int
	Errors            []string
	SampleHeadlines   []string
}

// Ingester pulls articles from RSS feeds into the articles table.
type Ingester struct {
	store         Store
	feeds         []string
	itemsPerFeed  int
	fetchFullText bool
	parser        *gofeed.Parser
	client        *http.Client
}

func New(store Store, feeds []string, itemsPerFeed int, fetchFullText bool) *Ingester {
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	if itemsPerFeed <= 0 {
		itemsPerFeed = 10
	}
	return &Ingester{
		store:         store,
		feeds:         feeds,
		itemsPerFeed:  itemsPerFeed,
		fetchFullText: fetchFullText,
		parser:        gofeed.NewParser(),
		client:        &http.Client{Timeout: fetchTimeout},
	}
}

// Run fetches every configured feed and upserts the newest items. A feed
// failure is recorded and skipped; a store failure aborts the run.
func (in *Ingester) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	for _, feedURL := range in.feeds {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		feed, err := in.parser.ParseURLWithContext(feedURL, fetchCtx)
		cancel()
		if err != nil {
			log.Printf("[Ingest] Feed failed %s: %v", feedURL, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", feedURL, err))
			continue
		}

		items := feed.Items
		if len(items) > in.itemsPerFeed {
			items = items[:in.itemsPerFeed]
		}

		for _, item := range items {
			article := itemToArticle(feed, item)
			if article == nil {
				continue
			}
			if in.fetchFullText {
				// Extraction failures keep the feed description; the
				// article row is still worth having.
				text, err := in.extractArticleText(ctx, article.ContentURL)
				if err != nil {
					log.Printf("[Ingest] Full-text fetch failed %s: %v", article.ContentURL, err)
				} else if text != "" {
					article.FullText = &text
				}
			}
			if err := in.store.UpsertArticle(ctx, article); err != nil {
				return res, fmt.Errorf("failed to store article %s: %w", article.ContentURL, err)
			}
			res.InsertedOrUpdated++
			if len(res.SampleHeadlines) < maxSampleHeadlines {
				res.SampleHeadlines = append(res.SampleHeadlines, article.Headline)
			}
		}
	}

	log.Printf("[Ingest] Stored %d articles from %d feeds (%d feed errors)", res.InsertedOrUpdated, len(in.feeds), len(res.Errors))
	return res, nil
}

func itemToArticle(feed *gofeed.Feed, item *gofeed.Item) *models.Article {
	link := NormalizeURL(item.Link)
	if link == "" || strings.TrimSpace(item.Title) == "" {
		return nil
	}

	a := &models.Article{
		Headline:   strings.TrimSpace(item.Title),
		ContentURL: link,
		Source:     strings.TrimSpace(feed.Title),
	}
	if desc := strings.TrimSpace(item.Description); desc != "" {
		a.FullText = &desc
	}
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		a.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		a.PublishedAt = &t
	}
	return a
}

// NormalizeURL canonicalizes an article link so the same story seen via
// different trackers dedupes to one row: strips the fragment and any
// utm_* query parameters, drops a trailing slash on the path.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}
