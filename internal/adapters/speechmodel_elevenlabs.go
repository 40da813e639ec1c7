package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsOutputFormat = "mp3_44100_128"
)

// ElevenLabsSpeechModel synthesizes narration via the ElevenLabs REST API.
type ElevenLabsSpeechModel struct {
	apiKey        string
	defaultVoice  string
	modelID       string
	client        *http.Client
}

func NewElevenLabsSpeechModel(apiKey, voiceID string) *ElevenLabsSpeechModel {
	return &ElevenLabsSpeechModel{
		apiKey:       apiKey,
		defaultVoice: voiceID,
		modelID:      elevenLabsDefaultModel,
		client:       &http.Client{Timeout: 90 * time.Second},
	}
}

var _ SpeechModel = (*ElevenLabsSpeechModel)(nil)

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	Speed         *float64                 `json:"speed,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

func (m *ElevenLabsSpeechModel) Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error) {
	effectiveVoice := m.defaultVoice
	if voiceID != "" {
		effectiveVoice = voiceID
	}
	if effectiveVoice == "" {
		return nil, fmt.Errorf("elevenlabs: no voice ID configured")
	}

	speed := 0.85
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: m.modelID,
		Speed:   &speed,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60,
			SimilarityBoost: 0.80,
			Style:           0.35,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", elevenLabsBaseURL, effectiveVoice, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, body)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read elevenlabs audio response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}

	log.Printf("[speech-model:elevenlabs] synthesized %d bytes for voice=%s", len(audioData), effectiveVoice)

	return &SpeechResult{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "mp3",
	}, nil
}

var _ AmbientAudioModel = (*ElevenLabsSpeechModel)(nil)

type elevenLabsSoundRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	PromptInfluence float64 `json:"prompt_influence,omitempty"`
}

// generateSound calls ElevenLabs' sound-generation endpoint, the same
// prompt-to-audio surface used for both background music and one-off sound
// effects — they differ only in prompt and requested duration.
func (m *ElevenLabsSpeechModel) generateSound(ctx context.Context, prompt string, durationSeconds float64) (*SpeechResult, error) {
	reqBody := elevenLabsSoundRequest{
		Text:            prompt,
		DurationSeconds: durationSeconds,
		PromptInfluence: 0.3,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal elevenlabs sound request: %w", err)
	}

	url := elevenLabsBaseURL + "/v1/sound-generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs sound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, body)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read elevenlabs sound response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}

	return &SpeechResult{
		AudioData:  audioData,
		DurationMs: int(durationSeconds * 1000),
		Format:     "mp3",
	}, nil
}

// GenerateMusic generates a background music bed from a short description.
func (m *ElevenLabsSpeechModel) GenerateMusic(ctx context.Context, prompt string, durationSec int) (*SpeechResult, error) {
	if durationSec <= 0 {
		durationSec = 30
	}
	log.Printf("[speech-model:elevenlabs] generating background music (%ds): %q", durationSec, prompt)
	return m.generateSound(ctx, prompt, float64(durationSec))
}

// GenerateSoundEffect generates a single sound effect from a short description.
func (m *ElevenLabsSpeechModel) GenerateSoundEffect(ctx context.Context, prompt string, durationSec float64) (*SpeechResult, error) {
	if durationSec <= 0 {
		durationSec = 3.0
	}
	log.Printf("[speech-model:elevenlabs] generating sound effect (%.1fs): %q", durationSec, prompt)
	return m.generateSound(ctx, prompt, durationSec)
}
