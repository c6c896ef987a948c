package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Pages yielding less text than this are boilerplate (cookie walls,
	// paywall stubs) and not worth storing over the feed description.
	minArticleTextLen = 200
	maxArticleBytes   = 2 << 20

	extractUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) WalterDemo/0.1 Safari/537.36"
)

// extractArticleText fetches an article page and pulls its readable body
// text. Returns "" when the page yields too little text to be useful.
func (in *Ingester) extractArticleText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", extractUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := in.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return "", err
	}

	text := readableText(doc)
	if len(text) < minArticleTextLen {
		return "", nil
	}
	return text, nil
}

// readableText extracts paragraph text from the page: chrome elements are
// stripped, then paragraphs are taken from the first <article> or <main>
// container, falling back to the whole body.
func readableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, figure").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}

	sel := root.Find("p")
	if root.Length() == 0 || sel.Length() == 0 {
		sel = doc.Find("body p")
	}

	var parts []string
	sel.Each(func(_ int, p *goquery.Selection) {
		if t := collapseSpace(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
