// Package jobstore implements C2: the durable, resumable Job document.
// Each job is a single row with a JSONB payload column; the row is the unit
// of atomicity for every state transition the orchestrator makes.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/reelforge/reelforge/internal/models"
)

// ErrNotFound is returned when a job ID has no matching row.
var ErrNotFound = errors.New("job not found")

// Store wraps a Postgres connection pool holding the jobs table.
type Store struct {
	db *sql.DB
}

// New opens the connection pool and verifies connectivity with a bounded ping.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the full job document. The orchestrator calls this after
// every state transition, so the row is always a checkpoint the next
// process can resume from.
func (s *Store) Save(ctx context.Context, job *models.Job) error {
	payload, err := jobPayload(job)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	job.UpdatedAt = time.Now()

	query := `
		INSERT INTO jobs (id, user_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, job.ID, job.UserID, job.Status, payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Create inserts a brand-new job, setting CreatedAt.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	payload, err := jobPayload(job)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	query := `
		INSERT INTO jobs (id, user_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query, job.ID, job.UserID, job.Status, payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Load fetches a job document by ID.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT payload FROM jobs WHERE id = $1`

	var payload models.JSONB
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	job, err := decodeJob(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

// ListByUser returns a user's jobs, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	query := `
		SELECT payload FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var payload models.JSONB
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// ListIncomplete returns jobs not in a terminal state, used on process
// startup to find jobs that need resuming.
func (s *Store) ListIncomplete(ctx context.Context) ([]models.Job, error) {
	query := `
		SELECT payload FROM jobs
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, models.JobStatusCompleted, models.JobStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var payload models.JSONB
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func jobPayload(job *models.Job) (models.JSONB, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	var m models.JSONB
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeJob(payload models.JSONB) (*models.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &models.Job{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, err
	}
	return job, nil
}
