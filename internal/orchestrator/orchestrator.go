// Package orchestrator implements C7: the single task per job that drives
// planning, clip production, and assembly to completion, emits progress
// events, and resumes from checkpoints on restart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/assembly"
	"github.com/reelforge/reelforge/internal/jobstore"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/pipelineerr"
	"github.com/reelforge/reelforge/internal/planner"
	"github.com/reelforge/reelforge/internal/producer"
)

// Orchestrator drives every job to a terminal state and reports progress
// through the Hub. One Orchestrator instance is shared across the worker
// pool; Run is safe to call concurrently for distinct jobs.
type Orchestrator struct {
	Jobs      *jobstore.Store
	Artifacts *artifactstore.Store
	Hub       *Hub

	TextPlanner      adapters.TextPlanner
	Producer         *producer.Producer
	Assembler        *assembly.Assembler
	TargetSecPerClip int

	PlanningTimeout time.Duration
	JobWallClock    time.Duration
}

// Run drives job through planning, clip production, and assembly. It aborts
// the job (status "failed") on any step failure and never leaves the job
// short of a terminal state.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) error {
	ctx, cancel := context.WithTimeout(ctx, o.JobWallClock)
	defer cancel()

	prog := sink{hub: o.Hub, jobID: job.ID}

	if job.Status == models.JobStatusPending || (job.Status == models.JobStatusPlanning && len(job.Segments) == 0) {
		if err := o.runPlanning(ctx, job, prog); err != nil {
			return o.fail(ctx, job, prog, err)
		}
	}

	if err := o.runClipProduction(ctx, job, prog); err != nil {
		return o.fail(ctx, job, prog, err)
	}

	if err := o.runAssembly(ctx, job, prog); err != nil {
		return o.fail(ctx, job, prog, err)
	}

	job.Status = models.JobStatusCompleted
	job.Progress = ProgressComplete
	if err := o.Jobs.Save(ctx, job); err != nil {
		return o.fail(ctx, job, prog, fmt.Errorf("failed to persist completed job: %w", err))
	}

	prog.Emit(Event{Name: EventComplete, Data: map[string]interface{}{
		"status":          "completed",
		"final_video_url": job.FinalVideoURL,
		"job_id":          job.ID.String(),
	}})
	return nil
}

func (o *Orchestrator) runPlanning(ctx context.Context, job *models.Job, prog sink) error {
	job.Status = models.JobStatusPlanning
	job.CurrentStep = 1
	job.Progress = ProgressStart
	if err := o.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to persist planning status: %w", err)
	}
	prog.Emit(Event{Name: EventStep1, Data: map[string]interface{}{
		"step": 1, "message": "planning segments", "progress": ProgressStart,
	}})

	planCtx, cancel := context.WithTimeout(ctx, o.PlanningTimeout)
	defer cancel()

	normalized, segments, err := planner.Plan(planCtx, o.TextPlanner, job.OriginalScript, job.CharacterName, o.TargetSecPerClip)
	if err != nil {
		return err
	}

	job.NormalizedScript = normalized
	job.Segments = segments
	job.Clips = make([]models.Clip, len(segments))
	for i := range job.Clips {
		job.Clips[i] = models.Clip{Index: i, SegmentRef: i, Status: models.ClipStatusAbsent}
	}
	job.Progress = ProgressPlanningDone
	if err := o.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to persist planned segments: %w", err)
	}

	prog.Emit(Event{Name: EventStep1Complete, Data: map[string]interface{}{
		"step": 1, "message": "planning complete", "total_clips": len(segments), "progress": ProgressPlanningDone,
	}})
	return nil
}

func (o *Orchestrator) runClipProduction(ctx context.Context, job *models.Job, prog sink) error {
	if len(job.Segments) == 0 {
		return &pipelineerr.ResumeSkew{JobID: job.ID.String()}
	}

	job.Status = models.JobStatusGeneratingClips
	job.CurrentStep = 2
	if err := o.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to persist generating_clips status: %w", err)
	}

	total := len(job.Segments)
	onProgress := func(completed, total int) {
		progress := clipLoopProgress(completed, total)
		job.Progress = progress
		prog.Emit(Event{Name: EventStep2Clip, Data: map[string]interface{}{
			"step": 2, "message": fmt.Sprintf("clip %d/%d", completed, total),
			"current_clip": completed, "total_clips": total, "progress": progress,
		}})
	}

	if err := o.Producer.Run(ctx, job, onProgress); err != nil {
		return err
	}

	if !job.AllClipsSucceeded() {
		return fmt.Errorf("clip production ended with %d/%d clips completed", job.CompletedClipCount(), total)
	}
	return nil
}

func (o *Orchestrator) runAssembly(ctx context.Context, job *models.Job, prog sink) error {
	prog.Emit(Event{Name: EventStep3, Data: map[string]interface{}{
		"step": 3, "message": "merging clips", "progress": ProgressClipLoopEnd,
	}})

	onAssemblyProgress := func(stage assembly.Stage) {
		switch stage {
		case assembly.StageVoiceDone:
			prog.Emit(Event{Name: EventStep4, Data: map[string]interface{}{
				"step": 4, "message": "voice enhancement complete", "progress": ProgressVoiceDone,
			}})
		case assembly.StageFinalizing:
			prog.Emit(Event{Name: EventStep5, Data: map[string]interface{}{
				"step": 5, "message": "publishing", "progress": ProgressFinalizingDone,
			}})
		}
	}

	return o.Assembler.Run(ctx, job, onAssemblyProgress)
}

func (o *Orchestrator) fail(ctx context.Context, job *models.Job, prog sink, cause error) error {
	job.Status = models.JobStatusFailed
	job.ErrorMessage = cause.Error()
	job.ErrorCode = errorCode(cause)

	if err := o.Jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Printf("[orchestrator] failed to persist failed job %s: %v", job.ID, err)
	}

	prog.Emit(Event{Name: EventError, Data: map[string]interface{}{"message": cause.Error()}})
	return cause
}

func errorCode(err error) string {
	var validation *pipelineerr.ValidationError
	var planning *pipelineerr.PlanningError
	var rejection *pipelineerr.ContentPolicyRejection
	var transient *pipelineerr.TransientError
	var mux *pipelineerr.MuxError
	var storage *pipelineerr.StorageError
	var skew *pipelineerr.ResumeSkew

	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &planning):
		return "planning_error"
	case errors.As(err, &rejection):
		return "content_policy"
	case errors.As(err, &transient):
		return "transient_error"
	case errors.As(err, &mux):
		return "mux_error"
	case errors.As(err, &storage):
		return "storage_error"
	case errors.As(err, &skew):
		return "resume_skew"
	default:
		return "internal_error"
	}
}

// ResumeIncomplete reloads every job left in a non-terminal state (from a
// prior process crash) and re-admits it so a worker picks it up and resumes
// at its first absent clip.
func ResumeIncomplete(ctx context.Context, jobs *jobstore.Store, admit func(context.Context, uuid.UUID) error) error {
	incomplete, err := jobs.ListIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("failed to list incomplete jobs: %w", err)
	}
	for _, job := range incomplete {
		log.Printf("[orchestrator] resuming job %s from status %s", job.ID, job.Status)
		if err := admit(ctx, job.ID); err != nil {
			log.Printf("[orchestrator] failed to re-admit job %s: %v", job.ID, err)
		}
	}
	return nil
}
