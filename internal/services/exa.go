package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Exa News Search Service
// Uses the Exa REST API (search + contents) to find recent coverage of a
// topic. Results feed the research package alongside locally ingested RSS.
// ---------------------------------------------------------------------------

const exaBaseURL = "https://api.exa.ai"

// ExaService queries Exa for fresh news sources.
type ExaService struct {
	apiKey string
	client *http.Client
}

func NewExaService(apiKey string) *ExaService {
	return &ExaService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExaSource is one search hit with its extracted page text.
type ExaSource struct {
	Title         string
	URL           string
	PublishedDate *time.Time
	Text          string
}

type exaSearchRequest struct {
	Query              string      `json:"query"`
	NumResults         int         `json:"numResults"`
	UseAutoprompt      bool        `json:"useAutoprompt"`
	StartPublishedDate string      `json:"startPublishedDate,omitempty"`
	Contents           exaContents `json:"contents"`
}

type exaContents struct {
	Text bool `json:"text"`
}

type exaSearchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
}

// SearchNews searches coverage of topic published within the last `days`
// days. Hits without a URL are dropped; a missing title falls back to the URL.
func (s *ExaService) SearchNews(ctx context.Context, topic string, days, numResults int) ([]ExaSource, error) {
	if days <= 0 {
		days = 7
	}
	if numResults <= 0 {
		numResults = 10
	}

	reqBody := exaSearchRequest{
		Query:              topic,
		NumResults:         numResults,
		UseAutoprompt:      true,
		StartPublishedDate: time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339),
		Contents:           exaContents{Text: true},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Exa request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", exaBaseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create Exa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	log.Printf("[Exa] Searching news (topic=%q, days=%d, numResults=%d)", topic, days, numResults)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Exa request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Exa returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed exaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode Exa response: %w", err)
	}

	sources := make([]ExaSource, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		src := ExaSource{
			Title: r.Title,
			URL:   r.URL,
			Text:  r.Text,
		}
		if src.Title == "" {
			src.Title = r.URL
		}
		if r.PublishedDate != "" {
			if t, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
				src.PublishedDate = &t
			}
		}
		sources = append(sources, src)
	}

	log.Printf("[Exa] Found %d sources for %q", len(sources), topic)
	return sources, nil
}
