// Package queue admits jobs onto a durable Redis list so a worker pool,
// independent of the HTTP request lifecycle, can pick them up.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AdmissionQueue is the single queue name: one orchestrator task per job,
// so admission carries nothing but the job id.
const AdmissionQueue = "queue:job_admission"

type Queue struct {
	client *redis.Client
}

// Admission is the payload pushed for one job entering the pipeline.
type Admission struct {
	JobID     uuid.UUID `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Admit enqueues jobID for pickup by the worker pool.
func (q *Queue) Admit(ctx context.Context, jobID uuid.UUID) error {
	admission := Admission{JobID: jobID, CreatedAt: time.Now()}

	data, err := json.Marshal(admission)
	if err != nil {
		return fmt.Errorf("failed to marshal admission: %w", err)
	}

	return q.client.RPush(ctx, AdmissionQueue, data).Err()
}

// Dequeue blocks up to timeout for the next admitted job. A nil result with
// no error means the timeout elapsed with nothing available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Admission, error) {
	result, err := q.client.BLPop(ctx, timeout, AdmissionQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue admission: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var admission Admission
	if err := json.Unmarshal([]byte(result[1]), &admission); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admission: %w", err)
	}
	return &admission, nil
}

// Length reports the number of jobs currently waiting on the admission queue.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, AdmissionQueue).Result()
}
