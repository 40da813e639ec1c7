package api

import (
	"testing"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/models"
)

func TestDecodeCharacterImageStripsDataURIPrefix(t *testing.T) {
	// "hi" base64-encoded is "aGk="
	got, err := decodeCharacterImage("data:image/png;base64,aGk=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
}

func TestDecodeCharacterImagePlainBase64(t *testing.T) {
	got, err := decodeCharacterImage("aGk=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
}

func TestDecodeCharacterImageRejectsInvalidBase64(t *testing.T) {
	if _, err := decodeCharacterImage("not-base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestNullableStringEmptyIsNil(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := nullableString("x"); got != "x" {
		t.Errorf("got %v, want %q", got, "x")
	}
}

func TestJobStatusResponseIncludesCoreFields(t *testing.T) {
	job := &models.Job{
		ID:       uuid.New(),
		Status:   models.JobStatusCompleted,
		Progress: 100,
	}
	resp := jobStatusResponse(job)
	if resp["job_id"] != job.ID.String() {
		t.Errorf("job_id mismatch: got %v", resp["job_id"])
	}
	if resp["progress"] != 100 {
		t.Errorf("progress mismatch: got %v", resp["progress"])
	}
	if resp["final_video_url"] != nil {
		t.Errorf("expected nil final_video_url, got %v", resp["final_video_url"])
	}
}
