package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/jobstore"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/pipelineerr"
	"github.com/reelforge/reelforge/internal/planner"
	"github.com/reelforge/reelforge/internal/queue"
)

type Handler struct {
	jobs      *jobstore.Store
	artifacts *artifactstore.Store
	queue     *queue.Queue
	hub       *orchestrator.Hub
}

func NewHandler(jobs *jobstore.Store, artifacts *artifactstore.Store, q *queue.Queue, hub *orchestrator.Hub) *Handler {
	return &Handler{jobs: jobs, artifacts: artifacts, queue: q, hub: hub}
}

// createJobRequest is the wire shape of POST /v1/jobs.
type createJobRequest struct {
	Script                string  `json:"script"`
	CharacterImage        string  `json:"character_image"` // base64, optionally a data URI
	CharacterName         string  `json:"character_name"`
	VoiceID               string  `json:"voice_id"`
	AspectRatio           string  `json:"aspect_ratio"`
	Resolution            string  `json:"resolution"`
	EnableVerification    bool    `json:"enable_verification"`
	VerificationThreshold float64 `json:"verification_threshold"`
	EnableSubtitles       bool    `json:"enable_subtitles"`
	BackgroundMusicPrompt string  `json:"background_music_prompt"`
	AddSoundEffects       bool    `json:"add_sound_effects"`
	SoundEffectPrompt     string  `json:"sound_effect_prompt"`
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// JWT validation and per-user API key resolution happen upstream of this
	// service; a gateway that has already authenticated the caller forwards
	// the resolved identity in X-User-Id. Requests with none are scoped to
	// artifactstore's "anonymous" bucket prefix.
	userID := r.Header.Get("X-User-Id")

	normalized := planner.Normalize(req.Script)
	if normalized == "" {
		respondValidationError(w, &pipelineerr.ValidationError{Reason: "script must be non-empty after normalization"})
		return
	}

	characterName := req.CharacterName
	if characterName == "" {
		characterName = "character"
	}

	aspectRatio := models.AspectRatio(req.AspectRatio)
	if aspectRatio == "" {
		aspectRatio = models.AspectRatio16x9
	}
	if aspectRatio != models.AspectRatio16x9 && aspectRatio != models.AspectRatio9x16 {
		respondValidationError(w, &pipelineerr.ValidationError{Reason: "aspect_ratio must be 16:9 or 9:16"})
		return
	}

	resolution := models.Resolution(req.Resolution)
	if resolution == "" {
		resolution = models.Resolution720p
	}
	if resolution != models.Resolution720p && resolution != models.Resolution1080p {
		respondValidationError(w, &pipelineerr.ValidationError{Reason: "resolution must be 720p or 1080p"})
		return
	}

	threshold := req.VerificationThreshold
	if threshold <= 0 {
		threshold = 0.6
	}

	job := &models.Job{
		ID:                    uuid.New(),
		UserID:                userID,
		OriginalScript:        req.Script,
		CharacterName:         characterName,
		VoiceID:               req.VoiceID,
		AspectRatio:           aspectRatio,
		Resolution:            resolution,
		EnableVerification:    req.EnableVerification,
		VerificationThreshold: threshold,
		EnableSubtitles:       req.EnableSubtitles,
		BackgroundMusicPrompt: req.BackgroundMusicPrompt,
		AddSoundEffects:       req.AddSoundEffects,
		SoundEffectPrompt:     req.SoundEffectPrompt,
		Status:                models.JobStatusPending,
	}

	if req.CharacterImage != "" {
		imageBytes, err := decodeCharacterImage(req.CharacterImage)
		if err != nil {
			respondValidationError(w, &pipelineerr.ValidationError{Reason: "character_image is not valid base64 image data"})
			return
		}
		key := artifactstore.CharacterImageKey(job.UserID, job.ID.String())
		if err := h.artifacts.Put(r.Context(), key, imageBytes, "image/png"); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store character image")
			return
		}
		url, err := h.artifacts.SignedURL(r.Context(), key, artifactstore.PublishTTL)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to sign character image")
			return
		}
		job.CharacterImageURL = url
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := h.queue.Admit(r.Context(), job.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to admit job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID.String(),
		"status": job.Status,
	})
}

const listJobsLimit = 50

// ListJobs handles GET /v1/jobs, returning the caller's own jobs most
// recent first. The caller is identified the same way CreateJob resolves
// it: X-User-Id, set by the upstream auth gateway.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		respondValidationError(w, &pipelineerr.ValidationError{Reason: "X-User-Id header is required"})
		return
	}

	jobs, err := h.jobs.ListByUser(r.Context(), userID, listJobsLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	summaries := make([]map[string]interface{}, len(jobs))
	for i := range jobs {
		summaries[i] = jobStatusResponse(&jobs[i])
	}
	respondJSON(w, http.StatusOK, summaries)
}

// GetJobStatus handles GET /v1/jobs/{id}
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.Load(r.Context(), jobID)
	if err != nil {
		if err == jobstore.ErrNotFound {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, jobStatusResponse(job))
}

// StreamJobEvents handles GET /v1/jobs/{id}/stream, an SSE endpoint that
// forwards progress events for one job until it reaches a terminal state or
// the client disconnects.
func (h *Handler) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.hub.Subscribe(jobID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeSSEStream(r.Context(), w, flusher, events)
}

func jobStatusResponse(job *models.Job) map[string]interface{} {
	return map[string]interface{}{
		"job_id":          job.ID.String(),
		"status":          job.Status,
		"progress":        job.Progress,
		"current_step":    job.CurrentStep,
		"final_video_url": nullableString(job.FinalVideoURL),
		"error_message":   nullableString(job.ErrorMessage),
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
		"segments":        job.Segments,
		"clips":           job.Clips,
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func decodeCharacterImage(raw string) ([]byte, error) {
	if idx := strings.Index(raw, ","); idx != -1 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	return base64.StdEncoding.DecodeString(raw)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationError(w http.ResponseWriter, err *pipelineerr.ValidationError) {
	respondError(w, http.StatusBadRequest, err.Error())
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
