package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/kehsibha/walter/internal/models"
)

// ---------------------------------------------------------------------------
// Kling Clip Generation (via fal.ai)
// Scene mode: one text-to-video clip per scene, stitched later with a
// separate voiceover track. Anchor mode: one silent presenter base video,
// then lip-synced voiceover chunks against it; audio arrives embedded.
// ---------------------------------------------------------------------------

const (
	klingSceneEndpoint   = "fal-ai/kling-video/v2.6/pro/text-to-video"
	klingLipsyncEndpoint = "fal-ai/kling-video/lipsync/text-to-video"

	klingSceneDuration = "5"
	klingAspectRatio   = "9:16"

	// Kling's lipsync TTS rejects text over 120 chars; keep a small buffer.
	lipsyncTextLimit = 115

	klingAnchorVoiceDefault = "uk_man2"
	klingAnchorVoiceSpeed   = 0.95
)

// anchorBaseEndpoints are tried in order when generating the presenter base
// video. Not every key has access to every model tier: an authorization
// failure moves to the next candidate, any other error is fatal.
var anchorBaseEndpoints = []string{
	"fal-ai/kling-video/v2.5-turbo/pro/text-to-video",
	"fal-ai/kling-video/v2.1/standard/text-to-video",
	"fal-ai/kling-video/v1.6/standard/text-to-video",
}

// KlingService produces video clips for both operating modes.
type KlingService struct {
	fal         *FalService
	voiceID     string
	anchorStyle string // "male" or "female" presenter
}

func NewKlingService(fal *FalService, voiceID, anchorGender string) *KlingService {
	if voiceID == "" {
		voiceID = klingAnchorVoiceDefault
	}
	if anchorGender == "" {
		anchorGender = "male"
	}
	return &KlingService{fal: fal, voiceID: voiceID, anchorStyle: anchorGender}
}

type klingVideoOutput struct {
	Video struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"video"`
}

func decodeVideoURL(raw json.RawMessage) (string, error) {
	var out klingVideoOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to parse Kling output: %w", err)
	}
	if out.Video.URL == "" {
		return "", fmt.Errorf("Kling did not return video.url")
	}
	return out.Video.URL, nil
}

// GenerateSceneClips renders one 5s vertical clip per scene, in scene order.
// Clip indices match scene indices so assembly can stitch them directly.
func (s *KlingService) GenerateSceneClips(ctx context.Context, script *models.VideoScript) ([]models.Clip, error) {
	clips := make([]models.Clip, 0, len(script.Scenes))

	for i, scene := range script.Scenes {
		prompt := buildScenePrompt(scene)

		log.Printf("[Kling] Generating scene clip %d/%d", i+1, len(script.Scenes))

		raw, err := s.fal.Run(ctx, klingSceneEndpoint, map[string]interface{}{
			"prompt":          prompt,
			"duration":        klingSceneDuration,
			"aspect_ratio":    klingAspectRatio,
			"generate_audio":  false,
			"negative_prompt": "blur, distort, low quality, text errors, watermarks, logos, cheap stock footage, TV studio, news desk, formal suit, stiff posture, multiple people, busy background",
			"cfg_scale":       0.55,
		})
		if err != nil {
			return nil, fmt.Errorf("scene %d clip generation failed: %w", i, err)
		}

		url, err := decodeVideoURL(raw)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		clips = append(clips, models.Clip{Index: i, URL: url})
	}

	return clips, nil
}

func buildScenePrompt(scene models.Scene) string {
	parts := []string{scene.Description}
	if scene.Overlay != "" {
		parts = append(parts, fmt.Sprintf("On-screen text overlay: %q", scene.Overlay))
	}
	parts = append(parts,
		"Style: A warm, approachable presenter speaking directly to camera in a clean, modern setting. Natural lighting, minimal background distractions. The presenter has a friendly, confident demeanor, like a knowledgeable friend explaining something important. Authentic, conversational, not a traditional news anchor.",
		"Setting: Simple, tasteful background (apartment, office, or neutral modern space). Warm color tones.",
		"Framing: Medium close-up, presenter centered, making eye contact with camera.",
	)
	return strings.Join(parts, "\n")
}

// GenerateAnchorClips produces a talking-presenter video set: a silent base
// clip, then one lip-synced clip per voiceover chunk, in chunk order.
func (s *KlingService) GenerateAnchorClips(ctx context.Context, voiceover string) ([]models.Clip, error) {
	chunks := SplitVoiceover(voiceover, lipsyncTextLimit)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("voiceover produced no lipsync chunks")
	}

	baseURL, err := s.generateAnchorBase(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor base video failed: %w", err)
	}

	log.Printf("[Kling] Base video ready, generating %d speech segments", len(chunks))

	clips := make([]models.Clip, 0, len(chunks))
	for i, chunk := range chunks {
		url, err := s.applyLipsync(ctx, baseURL, chunk)
		if err != nil {
			return nil, fmt.Errorf("lipsync chunk %d failed: %w", i, err)
		}
		clips = append(clips, models.Clip{Index: i, URL: url})
	}
	return clips, nil
}

// generateAnchorBase renders the silent presenter clip, walking the candidate
// endpoint list and skipping tiers this key cannot access.
func (s *KlingService) generateAnchorBase(ctx context.Context) (string, error) {
	presenter := "A distinguished British gentleman in his 40s wearing a tailored navy suit and burgundy tie"
	if s.anchorStyle == "female" {
		presenter = "An elegant British woman in her 40s wearing a sophisticated blouse and blazer"
	}

	prompt := strings.Join([]string{
		presenter,
		"sitting at an elegant mahogany news desk.",
		"Warm professional studio lighting, modern broadcast backdrop.",
		"Looking directly at camera with a composed, authoritative expression.",
		"Subtle natural movements, ready to deliver news.",
		"Professional broadcast quality, BBC style.",
	}, " ")

	var lastErr error
	for _, endpoint := range anchorBaseEndpoints {
		raw, err := s.fal.Run(ctx, endpoint, map[string]interface{}{
			"prompt":          prompt,
			"duration":        "10",
			"aspect_ratio":    klingAspectRatio,
			"negative_prompt": "blur, distorted, low quality, cartoon, anime, casual clothes, unprofessional",
		})
		if err != nil {
			if IsAuthError(err) {
				log.Printf("[Kling] No access to %s, trying next endpoint", endpoint)
				lastErr = err
				continue
			}
			return "", err
		}
		return decodeVideoURL(raw)
	}
	return "", fmt.Errorf("all anchor base endpoints denied access: %w", lastErr)
}

func (s *KlingService) applyLipsync(ctx context.Context, baseVideoURL, text string) (string, error) {
	if len(text) > 120 {
		return "", fmt.Errorf("lipsync text exceeds 120 char limit: %d chars", len(text))
	}

	raw, err := s.fal.Run(ctx, klingLipsyncEndpoint, map[string]interface{}{
		"video_url":      baseVideoURL,
		"text":           text,
		"voice_id":       s.voiceID,
		"voice_language": "en",
		"voice_speed":    klingAnchorVoiceSpeed,
	})
	if err != nil {
		return "", err
	}
	return decodeVideoURL(raw)
}

// SplitVoiceover breaks text into chunks of at most maxLen characters,
// preferring sentence boundaries, then a comma past 40% of the limit, then
// the last word boundary, then a hard cut.
func SplitVoiceover(text string, maxLen int) []string {
	var chunks []string
	remaining := strings.TrimSpace(text)

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}

		splitIdx := -1
		for _, ender := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
			if idx := lastIndexWithin(remaining, ender, maxLen); idx > 0 && idx+1 > splitIdx {
				splitIdx = idx + 1 // include the punctuation
			}
		}

		if splitIdx <= 0 {
			if commaIdx := lastIndexWithin(remaining, ", ", maxLen); commaIdx > maxLen*4/10 {
				splitIdx = commaIdx + 1
			} else {
				splitIdx = lastIndexWithin(remaining, " ", maxLen)
				if splitIdx <= 0 {
					splitIdx = maxLen
				}
			}
		}

		chunk := strings.TrimSpace(remaining[:min(splitIdx+1, len(remaining))])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[min(splitIdx+1, len(remaining)):])
	}

	return chunks
}

// lastIndexWithin finds the last occurrence of sep starting at or before limit.
func lastIndexWithin(s, sep string, limit int) int {
	if limit >= len(s) {
		limit = len(s) - 1
	}
	end := limit + len(sep)
	if end > len(s) {
		end = len(s)
	}
	return strings.LastIndex(s[:end], sep)
}
