package adapters

import "context"

// AmbientAudioModel is the C3 adapter for the non-dialogue audio layers
// that sit on top of narration: background music and sound effects, each
// generated from a short text prompt. Unlike SpeechModel, a nil
// AmbientAudioModel is a normal configuration — these layers are optional
// even when voice synthesis is wired.
type AmbientAudioModel interface {
	GenerateMusic(ctx context.Context, prompt string, durationSec int) (*SpeechResult, error)
	GenerateSoundEffect(ctx context.Context, prompt string, durationSec float64) (*SpeechResult, error)
}
