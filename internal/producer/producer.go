// Package producer implements C5: the per-clip state machine that turns
// planned segments into produced video clips with strict inter-clip visual
// continuity.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/pipelineerr"
)

// MaxTransientAttempts is the retry budget per clip for TransientError.
const MaxTransientAttempts = 3

const continuityURLTTL = time.Hour

const (
	defaultClipGenTimeout  = 10 * time.Minute
	defaultRetryBackoffCap = 30 * time.Second
	retryBackoffBase       = 2 * time.Second
)

// JobPersister is the subset of jobstore.Store the Clip Producer needs.
// Declared here, mirroring adapters.VideoModel, so tests can substitute an
// in-memory fake instead of a live database.
type JobPersister interface {
	Save(ctx context.Context, job *models.Job) error
}

// Producer drives the Clip Producer state machine for one job.
type Producer struct {
	Artifacts    *artifactstore.Store
	Jobs         JobPersister
	VideoModel   adapters.VideoModel
	Mux          *adapters.MuxTool
	Verification adapters.VerificationModel // nil when verification is disabled

	// ClipGenTimeout bounds a single GenerateVideo call. Zero uses
	// defaultClipGenTimeout.
	ClipGenTimeout time.Duration
	// RetryBackoffCap bounds the exponential backoff between transient
	// retries of the same clip. Zero uses defaultRetryBackoffCap.
	RetryBackoffCap time.Duration
}

func (p *Producer) clipGenTimeout() time.Duration {
	if p.ClipGenTimeout <= 0 {
		return defaultClipGenTimeout
	}
	return p.ClipGenTimeout
}

func (p *Producer) retryBackoffCap() time.Duration {
	if p.RetryBackoffCap <= 0 {
		return defaultRetryBackoffCap
	}
	return p.RetryBackoffCap
}

// transientBackoff returns the delay before retry attempt n (1-based),
// exponential in n and capped at the configured ceiling.
func transientBackoff(attempt int, cap time.Duration) time.Duration {
	delay := retryBackoffBase * time.Duration(1<<uint(attempt-1))
	if delay > cap {
		delay = cap
	}
	return delay
}

// ProgressFunc is called after every clip reaches a terminal state.
type ProgressFunc func(completed, total int)

// Run produces every absent clip in job.Segments order, mutating job.Clips
// in place and persisting the job after each terminal transition.
func (p *Producer) Run(ctx context.Context, job *models.Job, onProgress ProgressFunc) error {
	if len(job.Clips) != len(job.Segments) {
		job.Clips = make([]models.Clip, len(job.Segments))
		for i := range job.Clips {
			job.Clips[i] = models.Clip{Index: i, SegmentRef: i, Status: models.ClipStatusAbsent}
		}
	}

	if err := p.recoverExisting(ctx, job); err != nil {
		return err
	}

	total := len(job.Segments)
	for i := range job.Clips {
		clip := &job.Clips[i]
		if clip.Status == models.ClipStatusCompleted || clip.Status == models.ClipStatusRecovered {
			onProgress(job.CompletedClipCount(), total)
			continue
		}

		if err := p.produceClip(ctx, job, i); err != nil {
			return err
		}
		onProgress(job.CompletedClipCount(), total)

		if clip.Status == models.ClipStatusFailed {
			return fmt.Errorf("clip %d failed: %s", i, clip.ErrorMessage)
		}
	}

	return nil
}

// recoverExisting scans C1 for clips already present under the job's prefix
// and adopts them as recovered, per the resume invariant.
func (p *Producer) recoverExisting(ctx context.Context, job *models.Job) error {
	keys, err := p.Artifacts.ListPrefix(ctx, artifactstore.ClipsPrefix(job.UserID, job.ID.String()))
	if err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	recovered := 0
	for _, key := range keys {
		idx, ok := artifactstore.ParseClipIndex(key)
		if !ok || idx >= len(job.Clips) {
			continue
		}
		if job.Clips[idx].Status == models.ClipStatusCompleted || job.Clips[idx].Status == models.ClipStatusRecovered {
			continue
		}

		url, err := p.Artifacts.SignedURL(ctx, key, artifactstore.PublishTTL)
		if err != nil {
			return fmt.Errorf("failed to sign recovered clip %d: %w", idx, err)
		}

		job.Clips[idx].Status = models.ClipStatusRecovered
		job.Clips[idx].ArtifactURL = url
		recovered++
	}

	if recovered > 0 {
		if recovered != len(job.Clips) {
			// Recovered clips exist but the Job document lost track of some
			// planned segments — the two sources of truth have diverged.
			if len(job.Segments) == 0 {
				return &pipelineerr.ResumeSkew{JobID: job.ID.String()}
			}
		}
		log.Printf("[producer] RECOVERY MODE: %d/%d clips present for job %s", recovered, len(job.Clips), job.ID)
	}

	return nil
}

// nextAction is the outcome of classifying one GenerateVideo error against
// the current attempt state. Kept as a pure function so the retry and
// fallback rules can be tested without a real video model or store.
type nextAction int

const (
	actionRetrySameReference nextAction = iota
	actionFallbackToCharacterImage
	actionFail
)

func classifyGenErr(genErr error, usedFallback, onCharacterImage bool, attempts int) nextAction {
	var rejection *pipelineerr.ContentPolicyRejection
	var transient *pipelineerr.TransientError

	switch {
	case errors.As(genErr, &rejection):
		if !usedFallback && !onCharacterImage {
			return actionFallbackToCharacterImage
		}
		return actionFail
	case errors.As(genErr, &transient):
		if attempts >= MaxTransientAttempts {
			return actionFail
		}
		return actionRetrySameReference
	default:
		return actionFail
	}
}

func (p *Producer) produceClip(ctx context.Context, job *models.Job, index int) error {
	segment := job.Segments[index]

	referenceURL, continuityKey, err := p.referenceImage(ctx, job, index)
	if err != nil {
		return fmt.Errorf("failed to resolve reference image for clip %d: %w", index, err)
	}
	if continuityKey != "" {
		// The continuity frame's lifetime is bounded by this clip's
		// production: nothing else ever reads it again, so it's reclaimed
		// unconditionally once this attempt (success, failure, or fallback)
		// is done with it.
		defer func() {
			delCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := p.Artifacts.Delete(delCtx, continuityKey); err != nil {
				log.Printf("[producer] failed to delete continuity frame %s: %v", continuityKey, err)
			}
		}()
	}

	promptKey := artifactstore.PromptKey(job.UserID, job.ID.String(), index)
	if err := p.Artifacts.Put(ctx, promptKey, []byte(segment.VisualPrompt), "text/plain"); err != nil {
		return fmt.Errorf("failed to persist prompt for clip %d: %w", index, err)
	}

	return p.generateWithRetry(ctx, job, index, referenceURL)
}

// generateWithRetry drives clip index's GenerateVideo attempts to a terminal
// state: a transient error retries in place up to MaxTransientAttempts, a
// content-policy rejection swaps the reference to the character image once,
// and anything else fails the clip. Split out from produceClip so the
// retry/fallback state machine can be exercised directly in tests without a
// real reference-image resolution pass.
func (p *Producer) generateWithRetry(ctx context.Context, job *models.Job, index int, referenceURL string) error {
	clip := &job.Clips[index]
	segment := job.Segments[index]

	clip.Status = models.ClipStatusGenerating
	usedFallback := false
	attempts := 0

	for {
		genCtx, cancel := context.WithTimeout(ctx, p.clipGenTimeout())
		result, genErr := p.VideoModel.GenerateVideo(genCtx, adapters.VideoRequest{
			Prompt:      segment.VisualPrompt,
			ImageURL:    referenceURL,
			AspectRatio: string(job.AspectRatio),
			Resolution:  string(job.Resolution),
		})
		cancel()

		if genErr == nil {
			return p.finishClip(ctx, job, index, result)
		}

		onCharacterImage := referenceURL == job.CharacterImageURL
		switch classifyGenErr(genErr, usedFallback, onCharacterImage, attempts) {
		case actionFallbackToCharacterImage:
			log.Printf("[producer] clip %d rejected on continuity frame, falling back to character image", index)
			referenceURL = job.CharacterImageURL
			usedFallback = true
			attempts = 0
			clip.RetryCount = 1
			continue

		case actionRetrySameReference:
			attempts++
			clip.RetryCount = attempts
			backoff := transientBackoff(attempts, p.retryBackoffCap())
			log.Printf("[producer] clip %d transient error (attempt %d/%d), retrying in %v: %v", index, attempts, MaxTransientAttempts, backoff, genErr)
			select {
			case <-ctx.Done():
				clip.Status = models.ClipStatusFailed
				clip.ErrorMessage = ctx.Err().Error()
				return p.persist(ctx, job)
			case <-time.After(backoff):
			}
			continue

		default: // actionFail
			clip.Status = models.ClipStatusFailed
			clip.ErrorMessage = genErr.Error()
			clip.UsedFallback = usedFallback
			if err := p.persist(ctx, job); err != nil {
				return err
			}
			return fmt.Errorf("clip %d failed: %w", index, genErr)
		}
	}
}

func (p *Producer) finishClip(ctx context.Context, job *models.Job, index int, result *adapters.VideoResult) error {
	clip := &job.Clips[index]

	tmpVideo := p.Mux.TempFile(fmt.Sprintf("clip_%03d_%s.mp4", index, job.ID.String()))
	if err := os.WriteFile(tmpVideo, result.VideoBytes, 0644); err != nil {
		return fmt.Errorf("failed to write clip %d to temp file: %w", index, err)
	}
	defer p.Mux.Cleanup(tmpVideo)

	key := artifactstore.ClipKey(job.UserID, job.ID.String(), index)
	if err := p.Artifacts.Put(ctx, key, result.VideoBytes, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload clip %d: %w", index, err)
	}

	url, err := p.Artifacts.SignedURL(ctx, key, artifactstore.PublishTTL)
	if err != nil {
		return fmt.Errorf("failed to sign clip %d: %w", index, err)
	}

	clip.Status = models.ClipStatusCompleted
	clip.ArtifactURL = url
	clip.DurationSeconds = result.DurationSeconds

	if p.Verification != nil && job.EnableVerification {
		p.verifyClip(ctx, job, index, tmpVideo)
	}

	return p.persist(ctx, job)
}

func (p *Producer) verifyClip(ctx context.Context, job *models.Job, index int, videoPath string) {
	framePath := p.Mux.TempFile(fmt.Sprintf("verify_%03d_%s.png", index, job.ID.String()))
	defer p.Mux.Cleanup(framePath)

	if err := p.Mux.ExtractLastFrame(ctx, videoPath, framePath); err != nil {
		log.Printf("[producer] verification skipped for clip %d: frame extraction failed: %v", index, err)
		return
	}
	frameData, err := os.ReadFile(framePath)
	if err != nil {
		log.Printf("[producer] verification skipped for clip %d: %v", index, err)
		return
	}

	threshold := job.VerificationThreshold
	if threshold <= 0 {
		threshold = 0.6
	}

	result, err := p.Verification.Verify(ctx, frameData, "image/png", job.Segments[index].VisualPrompt, threshold)
	if err != nil {
		log.Printf("[producer] verification call failed for clip %d: %v", index, err)
		return
	}

	job.Clips[index].Verification = &models.VerificationRecord{
		Confidence:        result.Confidence,
		VisualDescription: result.VisualDescription,
		Feedback:          result.Feedback,
		Passed:            result.Passed,
	}
}

// referenceImage resolves the continuity image URL for clip index: the
// character image for index 0, otherwise the previous clip's last frame.
// When it uploads a continuity frame, it also returns the key so the caller
// can reclaim it once this clip's generation attempt is over — the frame's
// lifetime is bounded by the producer step, never durably stored.
func (p *Producer) referenceImage(ctx context.Context, job *models.Job, index int) (url string, continuityKey string, err error) {
	if index == 0 {
		return job.CharacterImageURL, "", nil
	}

	prevClip := job.Clips[index-1]
	if prevClip.ArtifactURL == "" {
		return job.CharacterImageURL, "", nil
	}

	tmpVideo := p.Mux.TempFile(fmt.Sprintf("prev_%03d_%s.mp4", index-1, job.ID.String()))
	defer p.Mux.Cleanup(tmpVideo)

	videoData, getErr := p.Artifacts.Get(ctx, artifactstore.ClipKey(job.UserID, job.ID.String(), index-1))
	if getErr != nil {
		log.Printf("[producer] failed to fetch clip %d for continuity extraction, falling back to character image: %v", index-1, getErr)
		return job.CharacterImageURL, "", nil
	}
	if writeErr := os.WriteFile(tmpVideo, videoData, 0644); writeErr != nil {
		return job.CharacterImageURL, "", nil
	}

	framePath := p.Mux.TempFile(fmt.Sprintf("frame_%03d_%s.png", index-1, job.ID.String()))
	defer p.Mux.Cleanup(framePath)

	if extractErr := p.Mux.ExtractLastFrame(ctx, tmpVideo, framePath); extractErr != nil {
		log.Printf("[producer] continuity frame extraction failed for clip %d, falling back to character image: %v", index-1, extractErr)
		return job.CharacterImageURL, "", nil
	}

	frameData, readErr := os.ReadFile(framePath)
	if readErr != nil {
		return job.CharacterImageURL, "", nil
	}

	key := artifactstore.ContinuityFrameKey(job.UserID, job.ID.String(), index-1)
	if putErr := p.Artifacts.Put(ctx, key, frameData, "image/png"); putErr != nil {
		log.Printf("[producer] failed to upload continuity frame for clip %d, falling back to character image: %v", index-1, putErr)
		return job.CharacterImageURL, "", nil
	}

	signedURL, signErr := p.Artifacts.SignedURL(ctx, key, continuityURLTTL)
	if signErr != nil {
		if delErr := p.Artifacts.Delete(ctx, key); delErr != nil {
			log.Printf("[producer] failed to delete unusable continuity frame %s: %v", key, delErr)
		}
		return job.CharacterImageURL, "", nil
	}

	return signedURL, key, nil
}

func (p *Producer) persist(ctx context.Context, job *models.Job) error {
	return p.Jobs.Save(ctx, job)
}
