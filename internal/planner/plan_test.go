package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/pipelineerr"
)

type fakeTextPlanner struct {
	calls     int
	responses [][]adapters.SegmentPrompt
}

func (f *fakeTextPlanner) Plan(ctx context.Context, normalizedScript, characterName string, targetSecondsPerClip int, corrective bool) ([]adapters.SegmentPrompt, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func TestPlanSucceedsOnFirstAttempt(t *testing.T) {
	fp := &fakeTextPlanner{
		responses: [][]adapters.SegmentPrompt{
			{
				{SpokenText: "Hello there.", VisualPrompt: "a wave"},
				{SpokenText: "Welcome to the show.", VisualPrompt: "a smile"},
			},
		},
	}

	normalized, segments, err := Plan(context.Background(), fp, "Hello there. Welcome to the show.", "Host", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("expected 1 call, got %d", fp.calls)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if normalized != "Hello there. Welcome to the show." {
		t.Errorf("unexpected normalized script: %q", normalized)
	}
}

func TestPlanRetriesOnceOnInvariantViolation(t *testing.T) {
	fp := &fakeTextPlanner{
		responses: [][]adapters.SegmentPrompt{
			{
				{SpokenText: "Hello there.", VisualPrompt: "a wave"},
			},
			{
				{SpokenText: "Hello there.", VisualPrompt: "a wave"},
				{SpokenText: "Welcome to the show.", VisualPrompt: "a smile"},
			},
		},
	}

	_, segments, err := Plan(context.Background(), fp, "Hello there. Welcome to the show.", "Host", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.calls != 2 {
		t.Errorf("expected 2 calls (one corrective retry), got %d", fp.calls)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments after retry, got %d", len(segments))
	}
}

func TestPlanFailsAfterSecondViolation(t *testing.T) {
	fp := &fakeTextPlanner{
		responses: [][]adapters.SegmentPrompt{
			{{SpokenText: "Hello there.", VisualPrompt: "a wave"}},
			{{SpokenText: "Hello there.", VisualPrompt: "a wave"}},
		},
	}

	_, _, err := Plan(context.Background(), fp, "Hello there. Welcome to the show.", "Host", 7)
	if err == nil {
		t.Fatal("expected an error after two invariant violations")
	}
	var planningErr *pipelineerr.PlanningError
	if !errors.As(err, &planningErr) {
		t.Errorf("expected *pipelineerr.PlanningError, got %T: %v", err, err)
	}
}
