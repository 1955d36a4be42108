package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"palmreader/internal/domain"
)

// JobRepositoryMemory is a process-local domain.JobRepository used by tests
// and by STORE_DRIVER=memory. Transitions are compare-and-set under one mutex.
type JobRepositoryMemory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*domain.Job)}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("repo: job id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return domain.ErrDuplicate
	}
	job.Status = domain.JobStatusPending
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRepositoryMemory) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *JobRepositoryMemory) Claim(ctx context.Context, jobID string, at time.Time) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return nil, domain.ErrNotClaimable
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = at
	return cloneJob(job), nil
}

func (r *JobRepositoryMemory) Complete(ctx context.Context, jobID string, c domain.Completion) error {
	if c.Result == nil {
		return errors.New("repo: completion without result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrAlreadyTerminal
	}
	result := *c.Result
	completed := c.CompletedAt
	job.Status = domain.JobStatusDone
	job.Result = &result
	job.RawModelOutput = c.RawModelOutput
	job.CompletedAt = &completed
	job.UpdatedAt = completed
	if c.ExpiresAt != nil {
		job.ExpiresAt = *c.ExpiresAt
	}
	return nil
}

func (r *JobRepositoryMemory) Fail(ctx context.Context, jobID string, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &at
	job.UpdatedAt = at
	return nil
}

func (r *JobRepositoryMemory) ClearImage(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[jobID]; ok {
		job.Input.ImageKey = ""
		job.Input.ImageMIME = ""
	}
	return nil
}

func (r *JobRepositoryMemory) FailStale(ctx context.Context, claimedBefore time.Time, message string, at time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []*domain.Job
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusProcessing && job.UpdatedAt.Before(claimedBefore) {
			stale = append(stale, job)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	ids := []string{}
	for _, job := range stale {
		if limit > 0 && len(ids) >= limit {
			break
		}
		completed := at
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		job.CompletedAt = &completed
		job.UpdatedAt = at
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (r *JobRepositoryMemory) DeleteExpired(ctx context.Context, now, createdBefore time.Time, limit int) ([]domain.ExpiredJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []*domain.Job
	for _, job := range r.jobs {
		if !job.ExpiresAt.After(now) || job.CreatedAt.Before(createdBefore) {
			candidates = append(candidates, job)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})
	expired := []domain.ExpiredJob{}
	for _, job := range candidates {
		if limit > 0 && len(expired) >= limit {
			break
		}
		expired = append(expired, domain.ExpiredJob{ID: job.ID, ImageKey: job.Input.ImageKey})
		delete(r.jobs, job.ID)
	}
	return expired, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	out.Input.Preferences = append([]string(nil), job.Input.Preferences...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	return &out
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
