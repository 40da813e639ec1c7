package models

import (
	"encoding/json"
	"testing"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"reason": "resume_skew",
		"count":  3,
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	if data == nil {
		t.Fatal("expected non-nil data")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["reason"] != "resume_skew" {
		t.Errorf("expected reason=resume_skew, got %v", result["reason"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"status": "failed", "attempts": 3}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["status"] != "failed" {
		t.Errorf("expected status=failed, got %v", j["status"])
	}

	if j["attempts"].(float64) != 3 {
		t.Errorf("expected attempts=3, got %v", j["attempts"])
	}
}

func TestJobStatusValues(t *testing.T) {
	statuses := []JobStatus{
		JobStatusPending,
		JobStatusPlanning,
		JobStatusGeneratingClips,
		JobStatusVerifying,
		JobStatusMerging,
		JobStatusEnhancingVoice,
		JobStatusFinalizing,
		JobStatusCompleted,
		JobStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestClipStatusValues(t *testing.T) {
	statuses := []ClipStatus{
		ClipStatusAbsent,
		ClipStatusGenerating,
		ClipStatusCompleted,
		ClipStatusFailed,
		ClipStatusRecovered,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestCompletedClipCount(t *testing.T) {
	j := &Job{
		Segments: []Segment{{Index: 0}, {Index: 1}, {Index: 2}},
		Clips: []Clip{
			{Index: 0, Status: ClipStatusCompleted},
			{Index: 1, Status: ClipStatusRecovered},
			{Index: 2, Status: ClipStatusGenerating},
		},
	}

	if got := j.CompletedClipCount(); got != 2 {
		t.Errorf("expected 2 completed clips, got %d", got)
	}

	if j.AllClipsSucceeded() {
		t.Error("expected AllClipsSucceeded to be false with one clip still generating")
	}

	j.Clips[2].Status = ClipStatusCompleted
	if !j.AllClipsSucceeded() {
		t.Error("expected AllClipsSucceeded to be true once all clips complete")
	}
}
