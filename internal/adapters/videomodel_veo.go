package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute
)

// VeoVideoModel generates video via Google's Veo model through the
// google.golang.org/genai SDK. Kept as an alternate implementation of
// VideoModel, interchangeable with XAIVideoModel behind config.
type VeoVideoModel struct {
	apiKey        string
	model         string
	httpClient    *http.Client
	imageMIMEType string
}

func NewVeoVideoModel(apiKey, model string) *VeoVideoModel {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoVideoModel{
		apiKey:        apiKey,
		model:         model,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		imageMIMEType: "image/png",
	}
}

var _ VideoModel = (*VeoVideoModel)(nil)

func (m *VeoVideoModel) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  m.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	imageBytes, err := m.fetchImage(ctx, req.ImageURL)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("failed to fetch continuity frame: %w", err)}
	}

	firstFrame := &genai.Image{
		ImageBytes: imageBytes,
		MIMEType:   m.imageMIMEType,
	}

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "9:16"
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      aspectRatio,
		Resolution:       resolveVeoResolution(req.Resolution),
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	operation, err := client.Models.GenerateVideos(ctx, m.model, req.Prompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	deadline := time.Now().Add(veoMaxPollDuration)
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("veo polling timed out after %v", veoMaxPollDuration)}
		}

		select {
		case <-ctx.Done():
			return nil, &pipelineerr.TransientError{Cause: ctx.Err()}
		case <-time.After(veoPollInterval):
		}

		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, &pipelineerr.TransientError{Cause: err}
		}
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, &pipelineerr.ContentPolicyRejection{Reason: string(errJSON)}
	}

	if operation.Response == nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("no response in completed operation %s", operation.Name)}
	}

	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, &pipelineerr.ContentPolicyRejection{Reason: reasons}
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("no videos in response")}
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("generated video object is nil")}
	}

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("failed to download generated video: %w", err)}
	}
	if len(videoBytes) == 0 {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("downloaded video is empty")}
	}

	return &VideoResult{
		VideoBytes:      videoBytes,
		DurationSeconds: float64(req.DurationSec),
	}, nil
}

func (m *VeoVideoModel) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch continuity frame: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func resolveVeoResolution(res string) string {
	switch res {
	case "1080p":
		return "1080p"
	case "720p":
		return "720p"
	default:
		return "1080p"
	}
}
