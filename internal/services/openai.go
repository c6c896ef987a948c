package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kehsibha/walter/internal/models"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"

	maxHeadlineLen   = 80
	maxLedeLen       = 220
	maxWhyMattersLen = 420
	maxBigPictureLen = 520
	maxKeyFacts      = 6
	maxWhatToWatch   = 4
	maxSummarySrcs   = 12

	scriptDurationTarget = 25
)

// OpenAIService generates structured summaries and video scripts. Model
// output is decoded permissively first (string-or-array quirks and all),
// then normalized into the canonical types, so callers never see the
// loose shapes.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// ---------------------------------------------------------------------------
// Permissive raw shapes — what the model actually sends back
// ---------------------------------------------------------------------------

// rawSummary tolerates the common quirks: what_to_watch as a string or an
// array, sources as strings or objects.
type rawSummary struct {
	Headline     string          `json:"headline"`
	Lede         string          `json:"lede"`
	WhyItMatters string          `json:"why_it_matters"`
	KeyFacts     []string        `json:"key_facts"`
	BigPicture   string          `json:"the_big_picture"`
	WhatToWatch  json.RawMessage `json:"what_to_watch"`
	Sources      json.RawMessage `json:"sources"`
}

type rawSource struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Outlet string `json:"outlet"`
}

// GenerateNewsSummary produces the Axios-style summary for one research
// package.
func (s *OpenAIService) GenerateNewsSummary(ctx context.Context, pkg *models.ResearchPackage) (*models.NewsSummary, error) {
	systemPrompt := summarySystemPrompt()
	userPrompt := fmt.Sprintf("Topic: %s\n\nSources:\n%s", pkg.Topic, formatSourcesForPrompt(pkg.Sources))

	content, err := s.completeJSON(ctx, systemPrompt, userPrompt, 0.2)
	if err != nil {
		return nil, fmt.Errorf("summary generation failed: %w", err)
	}

	var raw rawSummary
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		log.Printf("[OpenAI summary] parse failed: %v (raw: %s)", err, truncateString(content, 500))
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	if raw.Headline == "" || raw.Lede == "" || raw.WhyItMatters == "" || raw.BigPicture == "" {
		return nil, fmt.Errorf("summary missing required fields")
	}

	summary := normalizeSummary(raw, pkg.Sources)
	if len(summary.KeyFacts) == 0 {
		return nil, fmt.Errorf("summary has no key facts")
	}
	if len(summary.Sources) == 0 {
		return nil, fmt.Errorf("summary has no sources")
	}

	log.Printf("[OpenAI summary] generated for %q (%d facts, %d sources)", pkg.Topic, len(summary.KeyFacts), len(summary.Sources))
	return summary, nil
}

// GenerateVideoScript turns a summary into a short-form script. The duration
// target is pinned regardless of what the model returns.
func (s *OpenAIService) GenerateVideoScript(ctx context.Context, summary *models.NewsSummary) (*models.VideoScript, error) {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	systemPrompt := strings.Join([]string{
		"You write short-form news video scripts.",
		"Tone: conversational, crisp, not a traditional anchor read.",
		"Target length: 60-80 words of voiceover for ~25 seconds.",
		"Hook within first 3 seconds.",
		"Add scene markers for 3-5 scenes, 5 seconds each.",
		"Include a few punchy text overlays (short phrases) suitable for vertical video.",
		"Return ONLY JSON matching the requested schema.",
	}, "\n")

	userPrompt := fmt.Sprintf(`Use this summary:

%s

Return JSON with:
- duration_seconds_target (25)
- hook
- voiceover
- pacing_notes
- background_music_tone
- text_overlays (optional)
- scenes: 3-5 items, each with seconds (5) and description and optional overlay.

The visuals should be modern, news-appropriate: dynamic motion graphics, relevant b-roll feel, no talking heads, no cheesy stock.
`, string(summaryJSON))

	content, err := s.completeJSON(ctx, systemPrompt, userPrompt, 0.35)
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	var script models.VideoScript
	if err := json.Unmarshal([]byte(content), &script); err != nil {
		log.Printf("[OpenAI script] parse failed: %v (raw: %s)", err, truncateString(content, 500))
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if script.Voiceover == "" {
		return nil, fmt.Errorf("script has empty voiceover")
	}
	if len(script.Scenes) == 0 {
		return nil, fmt.Errorf("script has no scenes")
	}
	for i := range script.Scenes {
		if script.Scenes[i].Seconds <= 0 {
			script.Scenes[i].Seconds = 5
		}
	}
	script.DurationSecondsTarget = scriptDurationTarget

	log.Printf("[OpenAI script] generated (%d scenes, %d overlay lines)", len(script.Scenes), len(script.TextOverlays))
	return &script, nil
}

// completeJSON runs a chat completion in JSON mode and returns the extracted
// JSON object text.
func (s *OpenAIService) completeJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return extractJSONObject(resp.Choices[0].Message.Content)
}

// extractJSONObject pulls the first-brace-to-last-brace span from a model
// response, tolerating stray prose or code fences around the object.
func extractJSONObject(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response: %s", truncateString(content, 200))
	}
	return content[start : end+1], nil
}

// ---------------------------------------------------------------------------
// Normalization — permissive in, canonical out
// ---------------------------------------------------------------------------

func normalizeSummary(raw rawSummary, research []models.ResearchSource) *models.NewsSummary {
	facts := make([]string, 0, len(raw.KeyFacts))
	for _, f := range raw.KeyFacts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	if len(facts) > maxKeyFacts {
		facts = facts[:maxKeyFacts]
	}

	sources := coerceSources(raw.Sources, research)
	if len(sources) == 0 {
		// Model cited nothing usable; fall back to the research package itself.
		for _, rs := range research {
			if len(sources) >= 6 {
				break
			}
			sources = append(sources, models.SummarySource{Title: rs.Title, URL: rs.URL, Outlet: rs.Outlet})
		}
	}

	return &models.NewsSummary{
		Headline:     trimToMax(raw.Headline, maxHeadlineLen),
		Lede:         trimToMax(raw.Lede, maxLedeLen),
		WhyItMatters: trimToMax(raw.WhyItMatters, maxWhyMattersLen),
		KeyFacts:     facts,
		BigPicture:   trimToMax(raw.BigPicture, maxBigPictureLen),
		WhatToWatch:  coerceWhatToWatch(raw.WhatToWatch),
		Sources:      sources,
	}
}

// trimToMax trims and caps a string at max runes, marking truncation with a
// single ellipsis rune so the cap is never exceeded.
func trimToMax(s string, max int) string {
	t := strings.TrimSpace(s)
	runes := []rune(t)
	if len(runes) <= max {
		return t
	}
	cut := strings.TrimRight(string(runes[:max-1]), " \t\n")
	return cut + "…"
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var watchSplitRe = regexp.MustCompile(`\n+|•|;|,|-`)

// coerceWhatToWatch accepts either an array of strings or one blob split on
// common bullet separators.
func coerceWhatToWatch(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var parts []string
	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		parts = asArray
	} else {
		var asString string
		if err := json.Unmarshal(raw, &asString); err != nil {
			return nil
		}
		parts = watchSplitRe.Split(asString, -1)
	}

	var cleaned []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
		if len(cleaned) >= maxWhatToWatch {
			break
		}
	}
	return cleaned
}

// coerceSources accepts source objects or bare strings. A string is matched
// against the research package by title or URL substring; an unmatched URL
// string becomes its own entry; anything else is dropped.
func coerceSources(raw json.RawMessage, research []models.ResearchSource) []models.SummarySource {
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	var out []models.SummarySource
	for _, entry := range entries {
		if len(out) >= maxSummarySrcs {
			break
		}

		var obj rawSource
		if err := json.Unmarshal(entry, &obj); err == nil && obj.Title != "" && obj.URL != "" {
			out = append(out, models.SummarySource{Title: obj.Title, URL: obj.URL, Outlet: obj.Outlet})
			continue
		}

		var str string
		if err := json.Unmarshal(entry, &str); err != nil {
			continue
		}
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}

		if match, ok := matchResearchSource(str, research); ok {
			out = append(out, match)
			continue
		}
		if strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") {
			out = append(out, models.SummarySource{Title: str, URL: str})
		}
	}
	return out
}

// Substring matching below this length is too loose: a stray letter inside
// junk model output must never count as a citation of a real source.
const minSourceMatchLen = 4

func matchResearchSource(str string, research []models.ResearchSource) (models.SummarySource, bool) {
	lower := strings.ToLower(strings.TrimSpace(str))
	if lower == "" {
		return models.SummarySource{}, false
	}
	for _, rs := range research {
		titleLower := strings.ToLower(rs.Title)
		matched := titleLower == lower ||
			(len(lower) >= minSourceMatchLen && strings.Contains(titleLower, lower)) ||
			(len(titleLower) >= minSourceMatchLen && strings.Contains(lower, titleLower)) ||
			(len(str) >= minSourceMatchLen && strings.Contains(rs.URL, str)) ||
			(len(rs.URL) >= minSourceMatchLen && strings.Contains(str, rs.URL))
		if matched {
			return models.SummarySource{Title: rs.Title, URL: rs.URL, Outlet: rs.Outlet}, true
		}
	}
	return models.SummarySource{}, false
}

// formatSourcesForPrompt renders the research package as a numbered plain-text
// list with whitespace-collapsed excerpts.
func formatSourcesForPrompt(sources []models.ResearchSource) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		outlet := ""
		if s.Outlet != "" {
			outlet = fmt.Sprintf(" (%s)", s.Outlet)
		}
		body := s.Excerpt
		if body == "" {
			body = s.FullText
		}
		if len(body) > 700 {
			body = body[:700]
		}
		body = strings.TrimSpace(collapseWhitespace(body))
		fmt.Fprintf(&b, "%d. %s%s\n%s\n%s", i+1, s.Title, outlet, s.URL, body)
	}
	return b.String()
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

func summarySystemPrompt() string {
	return strings.Join([]string{
		"Task: Using the completed research provided, generate an Axios-style newsletter summarizing the most important developments related to the user's interest areas. Produce an Axios-style newsletter that delivers maximum insight per word, feels authoritative and modern, and can be trusted by professional readers.",
		"",
		"Output requirements:",
		"- Generate one newsletter section per user interest area.",
		"- Each section should be concise, skimmable, and high-signal (<100 words).",
		"- Content must be factual, unbiased, and grounded in real, citable information from reputable sources.",
		"- Prioritize what is new, changing, or strategically important.",
		"",
		"Format behavior:",
		"- Write in short paragraphs and compact sentences suitable for email consumption.",
		"- Use clear, direct language optimized for fast scanning.",
		"- Prepend each section with a short, descriptive label for the interest area.",
		"- Do not rely on special formatting, emojis, or visual markup; plain text only.",
		"",
		"Axios-style structure (apply consistently):",
		"- Start with a sharp lead that summarizes the core development in one or two sentences.",
		"- Follow with clearly separated idea blocks that explain:",
		"  - What happened",
		"  - Why it matters",
		"  - What's driving it (data, decisions, or constraints)",
		"- Close with a forward-looking context line that explains implications without speculation.",
		"",
		"Style constraints:",
		"- Highly engaging but restrained; confident, not sensational.",
		"- Neutral and credible, similar to professional news briefings.",
		"- Avoid hype, opinionated framing, or narrative fluff.",
		"- Avoid jargon where possible; explain essential terms succinctly.",
		"",
		"Source behavior:",
		"- Base all claims on reputable, verifiable sources referenced in the research.",
		"- If sources are implied but not explicit, phrase statements conservatively.",
		"- Do not invent statistics, quotes, or attributions.",
		"",
		"Constraints:",
		"- No calls to action.",
		"- No predictions or unsupported forward-looking claims.",
		"- Do not restate research verbatim; synthesize and prioritize.",
		"",
		"Return JSON with keys: headline, lede, why_it_matters, key_facts, the_big_picture, what_to_watch (optional), sources.",
		"Map the content to these keys:",
		"- headline: Short, descriptive label for the interest area (max 80 chars)",
		"- lede: Sharp lead summarizing the core development (1-2 sentences, max 220 chars)",
		"- why_it_matters: Why it matters section (max 420 chars)",
		"- key_facts: Array of 3-5 string bullets describing what happened",
		"- the_big_picture: What's driving it (data, decisions, or constraints, max 520 chars)",
		"- what_to_watch: Array of 1-4 string items for forward-looking context (optional)",
		`- sources: Array of source OBJECTS, each with {title: string, url: string, outlet?: string}. Example: [{"title": "Article Title", "url": "https://...", "outlet": "NPR"}]`,
	}, "\n")
}
