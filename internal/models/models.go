package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// EventKind is the fixed taxonomy of job event types. Events are the audit
// trail of a job and are rendered to observers in chronological order.
type EventKind string

const (
	EventIngest    EventKind = "ingest"
	EventTopics    EventKind = "topics"
	EventResearch  EventKind = "research"
	EventSummarize EventKind = "summarize"
	EventScript    EventKind = "script"
	EventClips     EventKind = "clip-generation"
	EventVoice     EventKind = "voice"
	EventAssemble  EventKind = "assemble"
	EventUpload    EventKind = "upload"
	EventError     EventKind = "error"
	EventDone      EventKind = "done"
)

// PipelineMode selects the visual strategy for a job run.
type PipelineMode string

const (
	// ModeScene generates independent visual clips per scene and muxes a
	// separately synthesized voiceover track over the concatenation.
	ModeScene PipelineMode = "scene"
	// ModeAnchor generates one talking-presenter base clip and lip-syncs
	// bounded voiceover chunks against it; audio arrives embedded in each clip.
	ModeAnchor PipelineMode = "anchor"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// Job is one generation request, tracked from queued through a fixed pipeline
// to succeeded or failed. The queued->running transition happens only via the
// store's conditional claim, so exactly one worker holds a running job, and
// status never regresses.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Owner      uuid.UUID  `json:"owner"`
	Status     JobStatus  `json:"status"`
	Step       *string    `json:"step,omitempty"` // free-text label of the current stage
	Progress   int        `json:"progress"`       // 0-100, monotonically non-decreasing
	Error      *string    `json:"error,omitempty"`
	Payload    JSONB      `json:"payload,omitempty"` // last-message snapshot
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobEvent is an append-only log entry tied to a job. Events are never
// mutated or deleted.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	Items     []string  `json:"items,omitempty"` // bounded sample of produced artifacts
	CreatedAt time.Time `json:"created_at"`
}

// Preference is one weighted topic interest belonging to an owner.
type Preference struct {
	Topic           string  `json:"topic"`
	Category        *string `json:"category,omitempty"`
	GeographicScope *string `json:"geographic_scope,omitempty"`
	Priority        int     `json:"priority"`
}

// Article is one locally ingested news item, upserted by content URL.
type Article struct {
	Headline    string     `json:"headline"`
	ContentURL  string     `json:"content_url"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FullText    *string    `json:"full_text,omitempty"`
}

// ResearchSource is one deduplicated source record inside a research package.
type ResearchSource struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Outlet      string     `json:"outlet,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
	FullText    string     `json:"full_text,omitempty"`
}

// ResearchPackage is the capped, URL-deduplicated set of sources gathered for
// one topic before summarization.
type ResearchPackage struct {
	Topic   string           `json:"topic"`
	Sources []ResearchSource `json:"sources"`
	Notes   string           `json:"notes"`
}

// SummarySource is a cited source inside a news summary.
type SummarySource struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Outlet string `json:"outlet,omitempty"`
}

// NewsSummary is the Axios-style structured summary for one topic.
// Length caps are enforced by the summarizer's normalization pass, so this
// canonical type never carries optional-shape ambiguity from model output.
type NewsSummary struct {
	Headline     string          `json:"headline"`                // max 80 chars
	Lede         string          `json:"lede"`                    // max 220 chars
	WhyItMatters string          `json:"why_it_matters"`          // max 420 chars
	KeyFacts     []string        `json:"key_facts"`               // 3-6 bullets
	BigPicture   string          `json:"the_big_picture"`         // max 520 chars
	WhatToWatch  []string        `json:"what_to_watch,omitempty"` // up to 4
	Sources      []SummarySource `json:"sources"`                 // 1-12
}

// Scene is one visual unit of a video script.
type Scene struct {
	Seconds     int    `json:"seconds"`
	Description string `json:"description"`
	Overlay     string `json:"overlay,omitempty"`
}

// VideoScript is the structured narration unit produced from a summary.
type VideoScript struct {
	DurationSecondsTarget int      `json:"duration_seconds_target"`
	Hook                  string   `json:"hook"`
	Voiceover             string   `json:"voiceover"`
	PacingNotes           string   `json:"pacing_notes,omitempty"`
	BackgroundMusicTone   string   `json:"background_music_tone,omitempty"`
	TextOverlays          []string `json:"text_overlays,omitempty"`
	Scenes                []Scene  `json:"scenes"`
}

// Clip is one produced video segment. Clips for one script must be stitched
// in Index order.
type Clip struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// Content rows persisted at stage boundaries

type Summary struct {
	ID        uuid.UUID   `json:"id"`
	Summary   NewsSummary `json:"axios_summary"`
	CreatedAt time.Time   `json:"created_at"`
}

type Video struct {
	ID           uuid.UUID `json:"id"`
	SummaryID    uuid.UUID `json:"summary_id"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Duration     int       `json:"duration"` // seconds
	Script       string    `json:"script"`   // voiceover text
	CreatedAt    time.Time `json:"created_at"`
}

// UserContent links a produced video to the owner it was generated for.
type UserContent struct {
	ID        uuid.UUID `json:"id"`
	Owner     uuid.UUID `json:"owner"`
	VideoID   uuid.UUID `json:"video_id"`
	Viewed    bool      `json:"viewed"`
	Liked     bool      `json:"liked"`
	CreatedAt time.Time `json:"created_at"`
}

// DTOs for API responses

type CreateJobResponse struct {
	Job Job `json:"job"`
}

// ContentItem is one completed deliverable: the video plus its summary.
type ContentItem struct {
	ID        uuid.UUID    `json:"id"`
	Viewed    bool         `json:"viewed"`
	Liked     bool         `json:"liked"`
	CreatedAt time.Time    `json:"created_at"`
	Video     Video        `json:"video"`
	Summary   *NewsSummary `json:"summary,omitempty"`
}

// ContentResponse is the polling surface: the owner's most recent job, its
// recent events (only while the job is still in flight), and completed
// content items most-recent-first.
type ContentResponse struct {
	Job    *Job          `json:"job,omitempty"`
	Events []JobEvent    `json:"events"`
	Items  []ContentItem `json:"items"`
}

type PreferencesResponse struct {
	Preferences []Preference `json:"preferences"`
}
