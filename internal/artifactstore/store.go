// Package artifactstore implements C1: the source of truth for which video
// clips, prompts, and merged/final renders exist for a job. It wraps an
// HTTP object store (any Supabase-Storage-compatible REST surface) with the
// retry-with-jitter discipline the rest of the pipeline expects from an
// external I/O boundary.
package artifactstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const (
	uploadTimeout   = 180 * time.Second
	downloadTimeout = 120 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	// PublishTTL is the signed URL lifetime handed to callers of the final
	// render, matching the source pipeline's GCS signed-URL expiration.
	PublishTTL = 7 * 24 * time.Hour
)

// Store is the artifact store client. One Store per bucket.
type Store struct {
	url        string
	serviceKey string
	bucket     string
	client     *http.Client
}

func New(url, serviceKey, bucket string) *Store {
	return &Store{
		url:        url,
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Canonical key-space helpers, one per artifact class the spec names. The
// key space is hierarchical: {user_id}/{job_id}/..., so one user's objects
// never collide with another's under a shared bucket. userID is "anonymous"
// when the request carried none (see api.CreateJob).
const anonymousUser = "anonymous"

func jobPrefix(userID, jobID string) string {
	if userID == "" {
		userID = anonymousUser
	}
	return path.Join(userID, jobID)
}

func CharacterImageKey(userID, jobID string) string {
	return path.Join(jobPrefix(userID, jobID), "character_image.png")
}

func ClipKey(userID, jobID string, index int) string {
	return path.Join(jobPrefix(userID, jobID), "clips", fmt.Sprintf("clip_%03d.mp4", index))
}

func PromptKey(userID, jobID string, index int) string {
	return path.Join(jobPrefix(userID, jobID), "prompts", fmt.Sprintf("prompt_%03d.txt", index))
}

func MergedKey(userID, jobID string) string {
	return path.Join(jobPrefix(userID, jobID), "merged.mp4")
}

func FinalKey(userID, jobID string) string {
	return path.Join(jobPrefix(userID, jobID), "final.mp4")
}

func ClipsPrefix(userID, jobID string) string {
	return path.Join(jobPrefix(userID, jobID), "clips") + "/"
}

// ContinuityFrameKey is the transient last-frame image uploaded between clip
// generations so the video model has an HTTPS-reachable reference image.
func ContinuityFrameKey(userID, jobID string, afterIndex int) string {
	return path.Join(jobPrefix(userID, jobID), "frames", fmt.Sprintf("frame_%03d.png", afterIndex))
}

// ParseClipIndex extracts the clip index from a key produced by ClipKey,
// used by the Clip Producer's recovery scan.
func ParseClipIndex(key string) (int, bool) {
	base := path.Base(key)
	var idx int
	n, err := fmt.Sscanf(base, "clip_%03d.mp4", &idx)
	if err != nil || n != 1 {
		return 0, false
	}
	return idx, true
}

// Put uploads an artifact, retrying transient failures with exponential
// backoff and jitter. Only 408, 429, 502, 503 and 504 are retried; any other
// error status (including 500) returns immediately.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[artifactstore] put retry %d/%d for %s (waiting %v)", attempt, maxRetries, key, delay)
			select {
			case <-ctx.Done():
				return &pipelineerr.StorageError{Op: "put", Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}

		putCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
		req, err := http.NewRequestWithContext(putCtx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return &pipelineerr.StorageError{Op: "put", Cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return &pipelineerr.StorageError{Op: "put", Cause: err}
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}

		lastErr = fmt.Errorf("put failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return &pipelineerr.StorageError{Op: "put", Cause: lastErr}
	}

	return &pipelineerr.StorageError{Op: "put", Cause: fmt.Errorf("exhausted %d attempts: %w", maxRetries+1, lastErr)}
}

// Get downloads an artifact, retrying transient failures the same way Put does.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, &pipelineerr.StorageError{Op: "get", Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}

		getCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		req, err := http.NewRequestWithContext(getCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return nil, &pipelineerr.StorageError{Op: "get", Cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return nil, &pipelineerr.StorageError{Op: "get", Cause: err}
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				lastErr = err
				continue
			}
			return data, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		lastErr = fmt.Errorf("get failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return nil, &pipelineerr.StorageError{Op: "get", Cause: lastErr}
	}

	return nil, &pipelineerr.StorageError{Op: "get", Cause: fmt.Errorf("exhausted %d attempts: %w", maxRetries+1, lastErr)}
}

// Delete removes an artifact, retrying transient failures the same way Put
// does. A 404 is treated as success since the desired end state (object
// absent) is already achieved. Used by the Clip Producer to reclaim
// continuity frames once they've served their one-clip lifetime.
func (s *Store) Delete(ctx context.Context, key string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			select {
			case <-ctx.Done():
				return &pipelineerr.StorageError{Op: "delete", Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return &pipelineerr.StorageError{Op: "delete", Cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return &pipelineerr.StorageError{Op: "delete", Cause: err}
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
			return nil
		}

		lastErr = fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return &pipelineerr.StorageError{Op: "delete", Cause: lastErr}
	}

	return &pipelineerr.StorageError{Op: "delete", Cause: fmt.Errorf("exhausted %d attempts: %w", maxRetries+1, lastErr)}
}

// Exists reports whether a key is present, used by the Clip Producer's
// recovery scan to reconcile "what clips exist" against the Job document.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	url := fmt.Sprintf("%s/storage/v1/object/info/%s/%s", s.url, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, &pipelineerr.StorageError{Op: "exists", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, &pipelineerr.StorageError{Op: "exists", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, &pipelineerr.StorageError{Op: "exists", Cause: fmt.Errorf("status %d", resp.StatusCode)}
}

// ListPrefix lists artifact keys under a prefix, used for the clip recovery
// scan on job resume.
func (s *Store) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/list/%s", s.url, s.bucket)
	reqBody, _ := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"limit":  1000,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &pipelineerr.StorageError{Op: "list", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &pipelineerr.StorageError{Op: "list", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &pipelineerr.StorageError{Op: "list", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &pipelineerr.StorageError{Op: "list", Cause: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, path.Join(prefix, e.Name))
	}
	return names, nil
}

// SignedURL returns a temporary access URL; expiresIn is sent to the store
// as whole seconds.
func (s *Store) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.bucket, key)
	reqBody := fmt.Sprintf(`{"expiresIn": %d}`, int(expiresIn.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(reqBody))
	if err != nil {
		return "", &pipelineerr.StorageError{Op: "sign", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &pipelineerr.StorageError{Op: "sign", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &pipelineerr.StorageError{Op: "sign", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &pipelineerr.StorageError{Op: "sign", Cause: err}
	}
	return s.url + result.SignedURL, nil
}

func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "deadline exceeded") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "EOF") ||
		strings.Contains(s, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
