package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for reading jobs. Claim, Complete and Fail
// are conditional updates: each only applies when the stored status matches
// the expected source state.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// Claim moves a PENDING job to PROCESSING and returns it, or ErrNotClaimable.
	Claim(ctx context.Context, jobID string, at time.Time) (*Job, error)
	// Complete moves a PROCESSING job to DONE, or returns ErrAlreadyTerminal.
	Complete(ctx context.Context, jobID string, c Completion) error
	// Fail moves a PENDING or PROCESSING job to FAILED, or returns ErrAlreadyTerminal.
	Fail(ctx context.Context, jobID string, message string, at time.Time) error
	ClearImage(ctx context.Context, jobID string) error
	// FailStale moves up to limit PROCESSING jobs last updated before
	// claimedBefore to FAILED and returns their ids.
	FailStale(ctx context.Context, claimedBefore time.Time, message string, at time.Time, limit int) ([]string, error)
	// DeleteExpired removes jobs expired at now or created before createdBefore.
	DeleteExpired(ctx context.Context, now, createdBefore time.Time, limit int) ([]ExpiredJob, error)
}

// BlobStore holds transient uploaded binaries.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Enqueuer hands a job id to whatever runs the pipeline asynchronously.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Executor runs the pipeline for one job id.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}
