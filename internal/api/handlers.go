package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/db"
	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/queue"
)

type Handler struct {
	db          *db.DB
	queue       *queue.Queue // optional; nil means workers rely on polling alone
	demoOwnerID uuid.UUID
}

func NewHandler(database *db.DB, q *queue.Queue, demoOwnerID uuid.UUID) *Handler {
	return &Handler{
		db:          database,
		queue:       q,
		demoOwnerID: demoOwnerID,
	}
}

// CreateJob handles POST /v1/jobs. It inserts a queued job for the owner and
// nudges any idle worker; the response returns immediately while generation
// runs in the background.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	owner, err := h.ownerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	step := "queued"
	job := &models.Job{
		ID:      uuid.New(),
		Owner:   owner,
		Status:  models.JobStatusQueued,
		Step:    &step,
		Payload: models.JSONB{},
	}
	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if h.queue != nil {
		// Best-effort: polling picks the job up anyway if the nudge is lost.
		_ = h.queue.Notify(r.Context(), job.ID)
	}

	respondJSON(w, http.StatusCreated, models.CreateJobResponse{Job: *job})
}

// GetJob handles GET /v1/jobs/{id} — a debug surface: the job snapshot plus
// its recent events regardless of state.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.db.GetJob(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	events, err := h.db.GetRecentJobEvents(r.Context(), jobID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load job events")
		return
	}
	if events == nil {
		events = []models.JobEvent{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":    job,
		"events": events,
	})
}

// GetContent handles GET /v1/content — the polling surface for the feed UI.
// It returns the owner's most recent job, its recent events while the job is
// still in flight, and completed content items most-recent-first.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	owner, err := h.ownerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	response := models.ContentResponse{
		Events: []models.JobEvent{},
		Items:  []models.ContentItem{},
	}

	job, err := h.db.GetLatestJobForOwner(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	response.Job = job

	if job != nil && (job.Status == models.JobStatusQueued || job.Status == models.JobStatusRunning) {
		events, err := h.db.GetRecentJobEvents(r.Context(), job.ID, 20)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load job events")
			return
		}
		response.Events = events
	}

	items, err := h.db.ListUserContent(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load content")
		return
	}
	response.Items = items

	respondJSON(w, http.StatusOK, response)
}

// GetPreferences handles GET /v1/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	owner, err := h.ownerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	prefs, err := h.db.GetPreferences(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	if prefs == nil {
		prefs = []models.Preference{}
	}

	respondJSON(w, http.StatusOK, models.PreferencesResponse{Preferences: prefs})
}

// ReplacePreferences handles POST /v1/preferences. The body is the full new
// preference set; it replaces whatever the owner had before.
func (h *Handler) ReplacePreferences(w http.ResponseWriter, r *http.Request) {
	owner, err := h.ownerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	var req models.PreferencesResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for _, p := range req.Preferences {
		if p.Topic == "" {
			respondError(w, http.StatusBadRequest, "Preference topic is required")
			return
		}
		if p.Priority < 1 || p.Priority > 10 {
			respondError(w, http.StatusBadRequest, "Preference priority must be between 1 and 10")
			return
		}
	}

	if err := h.db.ReplacePreferences(r.Context(), owner, req.Preferences); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	respondJSON(w, http.StatusOK, models.PreferencesResponse{Preferences: req.Preferences})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownerFromRequest resolves the acting owner: the owner query param when
// present, otherwise the configured demo owner. There is no multi-tenant auth
// yet; the single-owner demo flow is the supported path.
func (h *Handler) ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	if raw := r.URL.Query().Get("owner"); raw != "" {
		return uuid.Parse(raw)
	}
	return h.demoOwnerID, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
