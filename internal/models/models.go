// Package models defines the durable data model of the ad-creation pipeline:
// the Job document and its embedded Segments and Clips.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for PostgreSQL JSONB columns.
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

// JobStatus enumerates the lifecycle states of a Job.
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusPlanning         JobStatus = "planning"
	JobStatusGeneratingClips  JobStatus = "generating_clips"
	JobStatusVerifying        JobStatus = "verifying"
	JobStatusMerging          JobStatus = "merging"
	JobStatusEnhancingVoice   JobStatus = "enhancing_voice"
	JobStatusFinalizing       JobStatus = "finalizing"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// ClipStatus enumerates the per-clip state machine states.
type ClipStatus string

const (
	ClipStatusAbsent     ClipStatus = "absent"
	ClipStatusGenerating ClipStatus = "generating"
	ClipStatusCompleted  ClipStatus = "completed"
	ClipStatusFailed     ClipStatus = "failed"
	ClipStatusRecovered  ClipStatus = "recovered"
)

// AspectRatio and Resolution are constrained request enums.
type AspectRatio string

const (
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
)

type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// VerificationRecord is an optional per-clip observation from the vision
// verification adapter. It never drives retry — see the Clip Producer's
// no-in-pipeline-retry design note.
type VerificationRecord struct {
	Confidence        float64 `json:"confidence"`
	VisualDescription string  `json:"visual_description"`
	Feedback          string  `json:"feedback"`
	Passed            bool    `json:"passed"`
}

// Segment is one shot's dialogue plus its visual instruction.
type Segment struct {
	Index        int    `json:"index"`
	SpokenText   string `json:"spoken_text"`
	VisualPrompt string `json:"visual_prompt"`
}

// Clip is one produced video file, one per Segment.
type Clip struct {
	Index           int                 `json:"index"`
	SegmentRef      int                 `json:"segment_ref"`
	Status          ClipStatus          `json:"status"`
	ArtifactURL     string              `json:"artifact_url,omitempty"`
	DurationSeconds float64             `json:"duration_seconds,omitempty"`
	RetryCount      int                 `json:"retry_count"`
	UsedFallback    bool                `json:"used_fallback"`
	Verification    *VerificationRecord `json:"verification,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}

// Job is one ad-creation request, persisted as a single document.
type Job struct {
	ID         uuid.UUID `json:"job_id"`
	UserID     string    `json:"user_id"`
	CampaignID string    `json:"campaign_id,omitempty"`

	OriginalScript    string      `json:"original_script"`
	NormalizedScript  string      `json:"normalized_script"`
	CharacterImageURL string      `json:"character_image_url,omitempty"`
	CharacterName     string      `json:"character_name"`
	VoiceID           string      `json:"voice_id,omitempty"`
	AspectRatio       AspectRatio `json:"aspect_ratio"`
	Resolution        Resolution  `json:"resolution"`

	EnableVerification    bool    `json:"enable_verification"`
	VerificationThreshold float64 `json:"verification_threshold"`
	EnableSubtitles       bool    `json:"enable_subtitles"`

	// BackgroundMusicPrompt, when set, layers a generated music bed under
	// the narration track. SoundEffectPrompt does the same for one sound
	// effect when AddSoundEffects is set. Both are skipped if no
	// AmbientAudioModel is configured.
	BackgroundMusicPrompt string `json:"background_music_prompt,omitempty"`
	AddSoundEffects       bool   `json:"add_sound_effects,omitempty"`
	SoundEffectPrompt     string `json:"sound_effect_prompt,omitempty"`

	Segments []Segment `json:"segments"`
	Clips    []Clip    `json:"clips"`

	MergedVideoURL string `json:"merged_video_url,omitempty"`
	FinalVideoURL  string `json:"final_video_url,omitempty"`
	AudioEnhanced  bool   `json:"audio_enhanced"`

	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	CurrentStep  int       `json:"current_step"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalClips returns len(Segments), the planned clip count for the job.
func (j *Job) TotalClips() int {
	return len(j.Segments)
}

// CompletedClipCount returns the number of clips in a terminal-success state.
func (j *Job) CompletedClipCount() int {
	n := 0
	for _, c := range j.Clips {
		if c.Status == ClipStatusCompleted || c.Status == ClipStatusRecovered {
			n++
		}
	}
	return n
}

// AllClipsSucceeded reports whether every clip reached completed or recovered.
func (j *Job) AllClipsSucceeded() bool {
	if len(j.Clips) == 0 || len(j.Clips) != len(j.Segments) {
		return false
	}
	return j.CompletedClipCount() == len(j.Clips)
}
