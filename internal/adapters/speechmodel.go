package adapters

import (
	"bytes"
	"context"
)

// SpeechResult is the common response type from any speech-model provider.
type SpeechResult struct {
	AudioData  []byte
	DurationMs int
	Format     string
}

// SpeechModel is the C3 speech-model adapter. ElevenLabs is preferred,
// Cartesia is kept as a legacy fallback; the Assembly step never knows
// which one is wired.
type SpeechModel interface {
	Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error)
}

// estimateAudioDuration estimates spoken duration from word count, used when
// a provider's response doesn't carry timing information. Baseline is a
// narration pace (~140 WPM), slower than conversational speech.
func estimateAudioDuration(text string, speed float64) int {
	words := len(bytes.Fields([]byte(text)))
	const baseWPM = 140.0
	actualWPM := baseWPM * speed
	if actualWPM <= 0 {
		actualWPM = baseWPM
	}
	minutes := float64(words) / actualWPM
	return int(minutes * 60 * 1000)
}
