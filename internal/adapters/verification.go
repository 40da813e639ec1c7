package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const visionModel = "gemini-2.5-flash"

// VerificationResult is the vision model's observation of a still frame from
// a produced clip (the Clip Producer sends the clip's last frame) against its
// intended visual prompt. It never drives retry —
// the Clip Producer only records it.
type VerificationResult struct {
	Confidence        float64
	VisualDescription string
	Feedback          string
	Passed            bool
}

// VerificationModel is the optional C3 vision-verification adapter.
type VerificationModel interface {
	Verify(ctx context.Context, frameData []byte, frameMimeType, visualPrompt string, threshold float64) (*VerificationResult, error)
}

// GeminiVerificationModel asks a vision-capable Gemini model to judge
// whether a clip's frame matches its intended visual prompt, following the
// same inline-base64-image REST request shape as the image-generation call.
type GeminiVerificationModel struct {
	apiKey string
	client *http.Client
}

func NewGeminiVerificationModel(apiKey string) *GeminiVerificationModel {
	return &GeminiVerificationModel{
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ VerificationModel = (*GeminiVerificationModel)(nil)

type verificationRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type verificationResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type verificationVerdict struct {
	Confidence        float64 `json:"confidence"`
	VisualDescription string  `json:"visual_description"`
	Feedback          string  `json:"feedback"`
}

func (m *GeminiVerificationModel) Verify(ctx context.Context, frameData []byte, frameMimeType, visualPrompt string, threshold float64) (*VerificationResult, error) {
	prompt := fmt.Sprintf(`Compare this video frame against the intended shot description below and respond with a JSON object: {"confidence": 0.0-1.0, "visual_description": "what you actually see", "feedback": "one sentence"}.

Intended shot: %s`, visualPrompt)

	reqBody := verificationRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: prompt},
					{InlineData: &geminiInlineData{MimeType: frameMimeType, Data: base64.StdEncoding.EncodeToString(frameData)}},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", visionModel, m.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("vision model status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision model returned status %d: %s", resp.StatusCode, body)
	}

	var parsed verificationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse verification response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("vision model returned no candidates")
	}

	var verdict verificationVerdict
	if err := json.Unmarshal([]byte(parsed.Candidates[0].Content.Parts[0].Text), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verification verdict: %w", err)
	}

	return &VerificationResult{
		Confidence:        verdict.Confidence,
		VisualDescription: verdict.VisualDescription,
		Feedback:          verdict.Feedback,
		Passed:            verdict.Confidence >= threshold,
	}, nil
}
