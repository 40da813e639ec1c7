package assembly

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/models"
)

type fakeSpeechModel struct {
	err error
}

func (f *fakeSpeechModel) Synthesize(ctx context.Context, text, voiceID string) (*adapters.SpeechResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adapters.SpeechResult{AudioData: []byte("audio"), DurationMs: 1000, Format: "mp3"}, nil
}

func TestRunFailsWithoutArtifactURLs(t *testing.T) {
	job := &models.Job{
		ID:    uuid.New(),
		Clips: []models.Clip{{Index: 0, Status: models.ClipStatusCompleted}},
	}
	a := &Assembler{}

	if err := a.Run(context.Background(), job, nil); err == nil {
		t.Error("expected error when a clip has no artifact url")
	}
}

func TestEmitIsNilSafe(t *testing.T) {
	emit(nil, StageFinalizing) // must not panic

	var got Stage = -1
	emit(func(s Stage) { got = s }, StageVoiceDone)
	if got != StageVoiceDone {
		t.Errorf("got %v, want StageVoiceDone", got)
	}
}
