package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// WorkerPool dequeues admitted jobs from the durable queue and runs one
// Orchestrator task per job on a goroutine. This is the process-level
// concurrency described in the resource model: many jobs run this way
// simultaneously, each single-threaded internally.
type WorkerPool struct {
	Orchestrator *Orchestrator
	Queue        *queue.Queue
	LoadJob      func(context.Context, uuid.UUID) (*models.Job, error)
	Size         int
}

// Run starts Size worker goroutines and blocks until ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) {
	size := p.Size
	if size <= 0 {
		size = 1
	}

	done := make(chan struct{})
	for i := 0; i < size; i++ {
		go func(workerID int) {
			p.loop(ctx, workerID)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < size; i++ {
		<-done
	}
}

func (p *WorkerPool) loop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		admission, err := p.Queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[worker %d] dequeue failed: %v", workerID, err)
			continue
		}
		if admission == nil {
			continue
		}

		job, err := p.LoadJob(ctx, admission.JobID)
		if err != nil {
			log.Printf("[worker %d] failed to load job %s: %v", workerID, admission.JobID, err)
			continue
		}

		log.Printf("[worker %d] running job %s", workerID, job.ID)
		if err := p.Orchestrator.Run(ctx, job); err != nil {
			log.Printf("[worker %d] job %s ended in error: %v", workerID, job.ID, err)
		}
	}
}
