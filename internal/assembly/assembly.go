// Package assembly implements C6: concatenating produced clips into one
// render, optionally replacing the audio with a single enhanced narration
// track, optionally burning captions, and publishing the final artifact.
package assembly

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/jobstore"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/subtitles"
)

const voiceEnhancementAttempts = 2

// Stage identifies an internal Run transition a caller might want to report
// progress for, since Run's own steps don't map 1:1 onto the orchestrator's
// step3/step4/step5 SSE events.
type Stage int

const (
	// StageVoiceDone fires once voice enhancement has actually replaced the
	// merged render's audio track, not merely once it was attempted.
	StageVoiceDone Stage = iota
	// StageFinalizing fires at the finalizing status transition, before the
	// final render is uploaded and signed.
	StageFinalizing
)

// ProgressFunc is called at the internal transitions Stage names. May be nil.
type ProgressFunc func(stage Stage)

func emit(onProgress ProgressFunc, stage Stage) {
	if onProgress != nil {
		onProgress(stage)
	}
}

// Assembler drives the Assembly step for one job. Speech may be nil, in
// which case voice enhancement is skipped regardless of the job's request.
type Assembler struct {
	Artifacts *artifactstore.Store
	Jobs      *jobstore.Store
	Mux       *adapters.MuxTool
	Speech    adapters.SpeechModel
	// Ambient generates background music and sound effects on top of the
	// narration track. Nil skips both layers regardless of the job's
	// BackgroundMusicPrompt/AddSoundEffects fields.
	Ambient adapters.AmbientAudioModel
}

// Run concatenates job.Clips in order, optionally replaces the audio track,
// optionally burns subtitles, and publishes final.mp4 with a long-lived
// signed URL. It leaves job.Status at "finalizing" on success; the
// Orchestrator is responsible for the terminal "completed" transition.
// onProgress, if non-nil, is called at the Stage boundaries so the caller
// can report progress at the moment Run actually reaches them rather than
// only after Run returns.
func (a *Assembler) Run(ctx context.Context, job *models.Job, onProgress ProgressFunc) error {
	clipURLs := make([]string, len(job.Clips))
	for i, clip := range job.Clips {
		if clip.ArtifactURL == "" {
			return fmt.Errorf("clip %d has no artifact url, cannot assemble", i)
		}
		clipURLs[i] = clip.ArtifactURL
	}

	job.Status = models.JobStatusMerging
	job.CurrentStep = 3
	if err := a.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to persist merging status: %w", err)
	}

	mergedPath := a.Mux.TempFile(fmt.Sprintf("merged_%s.mp4", job.ID.String()))
	defer a.Mux.Cleanup(mergedPath)

	narrationPath := ""
	// voice_id is optional — the speech adapter resolves its own configured
	// default voice when the job didn't request a specific one.
	wantsVoice := a.Speech != nil

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.Mux.ConcatenateHTTPS(gctx, clipURLs, mergedPath)
	})
	if wantsVoice {
		narrationPath = a.Mux.TempFile(fmt.Sprintf("narration_%s.mp3", job.ID.String()))
		group.Go(func() error {
			return a.synthesizeNarration(gctx, job, narrationPath)
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("assembly concatenation failed: %w", err)
	}
	if wantsVoice {
		defer a.Mux.Cleanup(narrationPath)
		if _, statErr := os.Stat(narrationPath); statErr == nil && a.Ambient != nil {
			if err := a.layerAmbientAudio(ctx, job, narrationPath); err != nil {
				log.Printf("[assembly] ambient audio layering failed for job %s, continuing with voice-only narration: %v", job.ID, err)
			}
		}
	}

	mergedKey := artifactstore.MergedKey(job.UserID, job.ID.String())
	mergedData, err := os.ReadFile(mergedPath)
	if err != nil {
		return fmt.Errorf("failed to read merged render: %w", err)
	}
	if err := a.Artifacts.Put(ctx, mergedKey, mergedData, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload merged render: %w", err)
	}
	mergedURL, err := a.Artifacts.SignedURL(ctx, mergedKey, artifactstore.PublishTTL)
	if err != nil {
		return fmt.Errorf("failed to sign merged render: %w", err)
	}
	job.MergedVideoURL = mergedURL

	finalPath := mergedPath
	if wantsVoice {
		if _, statErr := os.Stat(narrationPath); statErr == nil {
			job.Status = models.JobStatusEnhancingVoice
			job.CurrentStep = 4
			if err := a.Jobs.Save(ctx, job); err != nil {
				return fmt.Errorf("failed to persist enhancing_voice status: %w", err)
			}

			enhancedPath := a.Mux.TempFile(fmt.Sprintf("final_%s.mp4", job.ID.String()))
			if err := a.Mux.ReplaceAudio(ctx, mergedPath, narrationPath, enhancedPath); err != nil {
				log.Printf("[assembly] voice enhancement mux failed for job %s, promoting merged render as final: %v", job.ID, err)
			} else {
				finalPath = enhancedPath
				job.AudioEnhanced = true
				defer a.Mux.Cleanup(enhancedPath)
				emit(onProgress, StageVoiceDone)
			}
		} else {
			log.Printf("[assembly] narration synthesis unavailable for job %s, promoting merged render as final", job.ID)
		}
	}

	if job.EnableSubtitles {
		if subtitledPath, err := a.burnSubtitles(ctx, job, finalPath); err != nil {
			log.Printf("[assembly] subtitle overlay failed for job %s, keeping uncaptioned final: %v", job.ID, err)
		} else {
			finalPath = subtitledPath
			defer a.Mux.Cleanup(subtitledPath)
		}
	}

	job.Status = models.JobStatusFinalizing
	job.CurrentStep = 5
	if err := a.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to persist finalizing status: %w", err)
	}
	emit(onProgress, StageFinalizing)

	finalData, err := os.ReadFile(finalPath)
	if err != nil {
		return fmt.Errorf("failed to read final render: %w", err)
	}
	finalKey := artifactstore.FinalKey(job.UserID, job.ID.String())
	if err := a.Artifacts.Put(ctx, finalKey, finalData, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload final render: %w", err)
	}
	finalURL, err := a.Artifacts.SignedURL(ctx, finalKey, artifactstore.PublishTTL)
	if err != nil {
		return fmt.Errorf("failed to sign final render: %w", err)
	}
	job.FinalVideoURL = finalURL

	return a.Jobs.Save(ctx, job)
}

// synthesizeNarration renders the job's full normalized script as a single
// audio track. Failure here is recorded by the caller finding no file at
// narrationPath, not by returning an error into the errgroup, since a voice
// failure must not abort the concatenation running alongside it.
func (a *Assembler) synthesizeNarration(ctx context.Context, job *models.Job, narrationPath string) error {
	var lastErr error
	for attempt := 1; attempt <= voiceEnhancementAttempts; attempt++ {
		result, err := a.Speech.Synthesize(ctx, job.NormalizedScript, job.VoiceID)
		if err == nil {
			return os.WriteFile(narrationPath, result.AudioData, 0644)
		}
		lastErr = err
		log.Printf("[assembly] narration synthesis attempt %d/%d failed for job %s: %v", attempt, voiceEnhancementAttempts, job.ID, err)
	}
	log.Printf("[assembly] narration synthesis exhausted retries for job %s: %v", job.ID, lastErr)
	return nil
}

// layerAmbientAudio generates the job's requested background music and/or
// sound effect and mixes them under the narration track in place. Either
// layer failing to generate only drops that layer; it never fails the job,
// since the voice-only narration is still usable on its own.
func (a *Assembler) layerAmbientAudio(ctx context.Context, job *models.Job, narrationPath string) error {
	var musicPath, sfxPath string

	if job.BackgroundMusicPrompt != "" {
		result, err := a.Ambient.GenerateMusic(ctx, job.BackgroundMusicPrompt, 0)
		if err != nil {
			log.Printf("[assembly] background music generation failed for job %s: %v", job.ID, err)
		} else {
			musicPath = a.Mux.TempFile(fmt.Sprintf("music_%s.mp3", job.ID.String()))
			if err := os.WriteFile(musicPath, result.AudioData, 0644); err != nil {
				return fmt.Errorf("failed to write background music: %w", err)
			}
			defer a.Mux.Cleanup(musicPath)
		}
	}

	if job.AddSoundEffects && job.SoundEffectPrompt != "" {
		result, err := a.Ambient.GenerateSoundEffect(ctx, job.SoundEffectPrompt, 0)
		if err != nil {
			log.Printf("[assembly] sound effect generation failed for job %s: %v", job.ID, err)
		} else {
			sfxPath = a.Mux.TempFile(fmt.Sprintf("sfx_%s.mp3", job.ID.String()))
			if err := os.WriteFile(sfxPath, result.AudioData, 0644); err != nil {
				return fmt.Errorf("failed to write sound effect: %w", err)
			}
			defer a.Mux.Cleanup(sfxPath)
		}
	}

	if musicPath == "" && sfxPath == "" {
		return nil
	}

	mixedPath := a.Mux.TempFile(fmt.Sprintf("mixed_narration_%s.mp3", job.ID.String()))
	defer a.Mux.Cleanup(mixedPath)
	if err := a.Mux.MixAudioLayers(ctx, narrationPath, musicPath, sfxPath, mixedPath); err != nil {
		return fmt.Errorf("failed to mix ambient audio layers: %w", err)
	}

	mixedData, err := os.ReadFile(mixedPath)
	if err != nil {
		return fmt.Errorf("failed to read mixed narration: %w", err)
	}
	return os.WriteFile(narrationPath, mixedData, 0644)
}

func (a *Assembler) burnSubtitles(ctx context.Context, job *models.Job, videoPath string) (string, error) {
	assPath := a.Mux.TempFile(fmt.Sprintf("captions_%s.ass", job.ID.String()))
	defer a.Mux.Cleanup(assPath)

	if err := subtitles.Generate(job.Segments, job.Clips, assPath); err != nil {
		return "", fmt.Errorf("failed to generate captions: %w", err)
	}

	outputPath := a.Mux.TempFile(fmt.Sprintf("captioned_%s.mp4", job.ID.String()))
	if err := a.Mux.BurnSubtitles(ctx, videoPath, assPath, outputPath); err != nil {
		return "", fmt.Errorf("failed to burn captions: %w", err)
	}
	return outputPath, nil
}
