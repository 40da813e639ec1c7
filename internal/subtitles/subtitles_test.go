package subtitles

import (
	"os"
	"strings"
	"testing"

	"github.com/reelforge/reelforge/internal/models"
)

func TestGenerateWritesASSFile(t *testing.T) {
	segments := []models.Segment{
		{Index: 0, SpokenText: "Hello there friend."},
		{Index: 1, SpokenText: "Welcome to the show."},
	}
	clips := []models.Clip{
		{Index: 0, SegmentRef: 0, DurationSeconds: 3.0},
		{Index: 1, SegmentRef: 1, DurationSeconds: 3.0},
	}

	path := t.TempDir() + "/subs.ass"
	if err := Generate(segments, clips, path); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read generated file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "[Script Info]") || !strings.Contains(content, "[Events]") {
		t.Errorf("expected ASS structure sections, got: %s", content)
	}
	if !strings.Contains(content, "HELLO") {
		t.Errorf("expected uppercased word HELLO in output")
	}
}

func TestGenerateFailsOnEmptySegments(t *testing.T) {
	if err := Generate(nil, nil, "/tmp/unused.ass"); err == nil {
		t.Error("expected error for empty segments")
	}
}

func TestFormatASSTime(t *testing.T) {
	if got := formatASSTime(3661.25); got != "1:01:01.25" {
		t.Errorf("formatASSTime(3661.25) = %q, want 1:01:01.25", got)
	}
	if got := formatASSTime(-1); got != "0:00:00.00" {
		t.Errorf("formatASSTime(-1) = %q, want 0:00:00.00", got)
	}
}
