package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const cartesiaAPIVersion = "2024-06-10"

// CartesiaSpeechModel is the legacy fallback speech-model adapter.
type CartesiaSpeechModel struct {
	apiKey       string
	apiURL       string
	defaultVoice string
	client       *http.Client
}

func NewCartesiaSpeechModel(apiKey, apiURL, voiceID string) *CartesiaSpeechModel {
	return &CartesiaSpeechModel{
		apiKey:       apiKey,
		apiURL:       apiURL,
		defaultVoice: voiceID,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

var _ SpeechModel = (*CartesiaSpeechModel)(nil)

type cartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        cartesiaVoiceSpecifier    `json:"voice"`
	Language     *string                   `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat      `json:"output_format"`
	Config       *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Volume *float64 `json:"volume,omitempty"`
	Speed  *float64 `json:"speed,omitempty"`
}

func (m *CartesiaSpeechModel) Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error) {
	effectiveVoice := m.defaultVoice
	if voiceID != "" {
		effectiveVoice = voiceID
	}

	speed := 0.85
	volume := 1.4
	lang := "en"

	reqBody := cartesiaRequest{
		ModelID:    "sonic-english",
		Transcript: text,
		Voice:      cartesiaVoiceSpecifier{Mode: "id", ID: effectiveVoice},
		Language:   &lang,
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
		Config: &cartesiaGenerationConfig{
			Speed:  &speed,
			Volume: &volume,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cartesia request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", m.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create cartesia request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", cartesiaAPIVersion)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("cartesia status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, body)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cartesia audio: %w", err)
	}

	return &SpeechResult{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "mp3",
	}, nil
}
