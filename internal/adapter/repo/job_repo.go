package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
	"palmreader/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on the reading_jobs table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new PENDING job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("repo: encode input: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertReadingJob,
		job.ID,
		string(job.Kind),
		input,
		job.ConsentToStore,
		job.ClientKey,
		job.OriginCountry,
		job.CreatedAt,
		job.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("repo: insert job: %w", err)
	}
	job.Status = domain.JobStatusPending
	job.UpdatedAt = job.CreatedAt
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectReadingJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: get job: %w", err)
	}
	return job, nil
}

// Claim moves a PENDING job to PROCESSING in a single conditional update.
func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string, at time.Time) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimReadingJob, jobID, at))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotClaimable
		}
		return nil, fmt.Errorf("repo: claim job: %w", err)
	}
	return job, nil
}

// Complete records the canonical result on a PROCESSING job.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, c domain.Completion) error {
	if c.Result == nil {
		return errors.New("repo: completion without result")
	}
	result, err := json.Marshal(c.Result)
	if err != nil {
		return fmt.Errorf("repo: encode result: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteReadingJob, jobID, result, c.RawModelOutput, c.CompletedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("repo: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missedTransition(ctx, jobID)
	}
	return nil
}

// Fail records the error message on a PENDING or PROCESSING job.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, message string, at time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailReadingJob, jobID, message, at)
	if err != nil {
		return fmt.Errorf("repo: fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missedTransition(ctx, jobID)
	}
	return nil
}

// ClearImage drops the transient image reference from the job input.
func (r *JobRepositoryPG) ClearImage(ctx context.Context, jobID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QClearReadingJobImage, jobID); err != nil {
		return fmt.Errorf("repo: clear image: %w", err)
	}
	return nil
}

// FailStale fails PROCESSING jobs that have not been updated since
// claimedBefore.
func (r *JobRepositoryPG) FailStale(ctx context.Context, claimedBefore time.Time, message string, at time.Time, limit int) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QFailStaleReadingJobs, claimedBefore, message, at, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: fail stale: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteExpired removes up to limit jobs past expiry or retention and reports
// any image keys still referenced by them.
func (r *JobRepositoryPG) DeleteExpired(ctx context.Context, now, createdBefore time.Time, limit int) ([]domain.ExpiredJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QDeleteExpiredReadingJobs, now, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: delete expired: %w", err)
	}
	defer rows.Close()

	expired := []domain.ExpiredJob{}
	for rows.Next() {
		var e domain.ExpiredJob
		if err := rows.Scan(&e.ID, &e.ImageKey); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *JobRepositoryPG) missedTransition(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrAlreadyTerminal
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		kind      string
		status    string
		input     []byte
		raw       *string
		result    []byte
		errMsg    *string
		completed *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&kind,
		&status,
		&input,
		&job.ConsentToStore,
		&job.ClientKey,
		&job.OriginCountry,
		&raw,
		&result,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completed,
		&job.ExpiresAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.ReadingKind(kind)
	job.Status = domain.JobStatus(status)
	job.CompletedAt = completed
	if raw != nil {
		job.RawModelOutput = *raw
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = &domain.Result{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
