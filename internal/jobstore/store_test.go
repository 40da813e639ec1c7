package jobstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/reelforge/reelforge/internal/models"
)

func TestJobPayloadRoundTrip(t *testing.T) {
	job := &models.Job{
		ID:               uuid.New(),
		UserID:           "user-1",
		OriginalScript:   "Hello world.",
		NormalizedScript: "Hello world.",
		Status:           models.JobStatusPlanning,
		Segments: []models.Segment{
			{Index: 0, SpokenText: "Hello world.", VisualPrompt: "a friendly wave"},
		},
	}

	payload, err := jobPayload(job)
	if err != nil {
		t.Fatalf("jobPayload failed: %v", err)
	}

	decoded, err := decodeJob(payload)
	if err != nil {
		t.Fatalf("decodeJob failed: %v", err)
	}

	if decoded.ID != job.ID {
		t.Errorf("expected ID %v, got %v", job.ID, decoded.ID)
	}
	if decoded.Status != job.Status {
		t.Errorf("expected status %v, got %v", job.Status, decoded.Status)
	}
	if len(decoded.Segments) != 1 || decoded.Segments[0].SpokenText != "Hello world." {
		t.Errorf("segment round trip failed: %+v", decoded.Segments)
	}
}

func TestErrNotFoundIsDistinct(t *testing.T) {
	if ErrNotFound == nil {
		t.Fatal("expected non-nil ErrNotFound sentinel")
	}
	if ErrNotFound.Error() == "" {
		t.Error("expected non-empty error message")
	}
}
