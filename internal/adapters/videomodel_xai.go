package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const (
	xaiBaseURL           = "https://api.x.ai/v1"
	xaiVideoModel        = "grok-imagine-video"
	xaiDefaultAspect     = "9:16"
	xaiDefaultResolution = "720p"
)

// XAIVideoModel generates video via xAI's Grok Imagine Video API using a
// submit-then-poll deferred request pattern.
type XAIVideoModel struct {
	apiKey     string
	httpClient *http.Client
	schedule   pollSchedule
}

func NewXAIVideoModel(apiKey string) *XAIVideoModel {
	return &XAIVideoModel{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		schedule:   defaultPollSchedule,
	}
}

var _ VideoModel = (*XAIVideoModel)(nil)

type xaiGenerationRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model"`
	Image       *xaiImageInput `json:"image,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
}

type xaiImageInput struct {
	URL string `json:"url"`
}

type xaiGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// xaiVideoResult unifies the three response shapes xAI returns while
// polling: pending has only Status set, completed has Video set and no
// Status, failed has Status "failed" and Error set.
type xaiVideoResult struct {
	Status string          `json:"status"`
	Video  *xaiVideoOutput `json:"video,omitempty"`
	Model  string          `json:"model,omitempty"`
	Error  string          `json:"error"`
}

type xaiVideoOutput struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

// contentPolicyPhrases mirrors the phrase check the source pipeline used to
// tell a content-policy denial apart from a generic backend failure, since
// xAI doesn't return a distinct status code for the two.
var contentPolicyPhrases = []string{
	"safety filter", "blocked by", "violates", "content policy",
	"usage guidelines", "inappropriate content",
}

// classifyXAIFailure inspects a failure message for content-policy language.
// Anything else is treated as a transient backend failure so it gets the
// bounded retry budget instead of the one-shot fallback.
func classifyXAIFailure(message string) error {
	lower := strings.ToLower(message)
	for _, phrase := range contentPolicyPhrases {
		if strings.Contains(lower, phrase) {
			return &pipelineerr.ContentPolicyRejection{Reason: message}
		}
	}
	return &pipelineerr.TransientError{Cause: fmt.Errorf("%s", message)}
}

func (m *XAIVideoModel) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	duration := clampDuration(req.DurationSec)
	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = xaiDefaultAspect
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = xaiDefaultResolution
	}

	body := xaiGenerationRequest{
		Prompt:      req.Prompt,
		Model:       xaiVideoModel,
		Duration:    duration,
		AspectRatio: aspectRatio,
		Resolution:  resolution,
	}
	if req.ImageURL != "" {
		body.Image = &xaiImageInput{URL: req.ImageURL}
	}

	requestID, err := m.submitGeneration(ctx, body)
	if err != nil {
		return nil, err
	}

	log.Printf("[xai-video] submitted request_id=%s", requestID)

	result, err := m.pollForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}

	videoBytes, err := m.downloadVideo(ctx, result.Video.URL)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("download failed: %w", err)}
	}
	if len(videoBytes) == 0 {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("downloaded video is empty")}
	}

	return &VideoResult{
		VideoBytes:      videoBytes,
		DurationSeconds: float64(result.Video.Duration),
	}, nil
}

func (m *XAIVideoModel) submitGeneration(ctx context.Context, body xaiGenerationRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, xaiBaseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &pipelineerr.TransientError{Cause: fmt.Errorf("xAI status %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode == http.StatusBadRequest {
		return "", classifyXAIFailure(string(respBody))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("xAI returned status %d: %s", resp.StatusCode, respBody)
	}

	var genResp xaiGenerationResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w", err)
	}
	if genResp.RequestID == "" {
		return "", fmt.Errorf("no request_id in generation response: %s", respBody)
	}
	return genResp.RequestID, nil
}

func (m *XAIVideoModel) pollForResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	deadline := time.Now().Add(m.schedule.maxDuration)
	interval := m.schedule.minInterval

	select {
	case <-ctx.Done():
		return nil, &pipelineerr.TransientError{Cause: ctx.Err()}
	case <-time.After(m.schedule.initialDelay):
	}

	for {
		if time.Now().After(deadline) {
			return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("polling timed out after %v (request_id=%s)", m.schedule.maxDuration, requestID)}
		}

		result, err := m.getVideoResult(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if result.Video != nil && result.Video.URL != "" {
			return result, nil
		}

		if result.Status == "failed" {
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			return nil, classifyXAIFailure(errMsg)
		}

		select {
		case <-ctx.Done():
			return nil, &pipelineerr.TransientError{Cause: ctx.Err()}
		case <-time.After(interval):
		}
		interval = m.schedule.next(interval)
	}
}

func (m *XAIVideoModel) getVideoResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/videos/%s", xaiBaseURL, requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("xAI poll status %d: %s", resp.StatusCode, body)}
	}

	var result xaiVideoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse video result: %w", err)
	}
	return &result, nil
}

func (m *XAIVideoModel) downloadVideo(ctx context.Context, videoURL string) ([]byte, error) {
	client := &http.Client{Timeout: 120 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
