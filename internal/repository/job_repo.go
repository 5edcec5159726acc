package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxClaimAttempts bounds how often ClaimNext retries after losing a race for a row.
const maxClaimAttempts = 3

// JobRepository is the durable job queue backed by the scrape_jobs table.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx returns a repository that runs its queries inside tx.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

// Insert creates a Queued job row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job to persist; ID must be set, status is forced to queued.
// Returns:
//   - error: ErrPersistenceFailed-wrapped error if the insert fails.
func (r *JobRepository) Insert(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusQueued
	job.WorkerID = ""
	if job.Tags == nil {
		job.Tags = domain.StringArray{}
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("%w: insert job: %v", domain.ErrPersistenceFailed, err)
	}
	return nil
}

// ClaimNext moves the oldest available Queued job to Processing and tags it
// with workerID. Rows locked by another claimer are skipped rather than waited
// on. Returns domain.ErrNoJobs when nothing is queued.
//
// Drivers without row locks (SQLite) drop the locking clause; the status guard
// on the UPDATE still lets only one claimer win a row.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		job, err := r.tryClaim(ctx, workerID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, errClaimLost) {
			return nil, err
		}
	}
	return nil, domain.ErrNoJobs
}

var errClaimLost = errors.New("claim lost to another worker")

// beforeClaimUpdate runs between selecting a queued row and claiming it.
// Tests use it to move the row out from under the claimer.
var beforeClaimUpdate func(tx *gorm.DB, id string)

func (r *JobRepository) tryClaim(ctx context.Context, workerID string) (*domain.Job, error) {
	var claimed domain.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.JobStatusQueued).
			Order("created_at").
			Limit(1).
			Find(&claimed)
		if found.Error != nil {
			return fmt.Errorf("%w: select queued job: %v", domain.ErrPersistenceFailed, found.Error)
		}
		if found.RowsAffected == 0 {
			return domain.ErrNoJobs
		}

		if beforeClaimUpdate != nil {
			beforeClaimUpdate(tx, claimed.ID)
		}

		now := time.Now().UTC()
		res := tx.Model(&domain.Job{}).
			Where("id = ? AND status = ?", claimed.ID, domain.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":     domain.JobStatusProcessing,
				"worker_id":  workerID,
				"started_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("%w: claim job %s: %v", domain.ErrPersistenceFailed, claimed.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}

		claimed.Status = domain.JobStatusProcessing
		claimed.WorkerID = workerID
		claimed.StartedAt = &now
		claimed.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// Claim moves the Queued job id to Processing for workerID. It is used when a
// caller runs a job it just inserted instead of leaving it to the pool.
func (r *JobRepository) Claim(ctx context.Context, id, workerID string) (*domain.Job, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"worker_id":  workerID,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: claim job %s: %v", domain.ErrPersistenceFailed, id, res.Error)
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, id, job.Status)
	}
	return job, nil
}

// Complete moves a Processing job to Completed and stores its result.
// Returns domain.ErrInvalidTransition if the job is not Processing and
// domain.ErrJobNotFound if it does not exist.
func (r *JobRepository) Complete(ctx context.Context, id string, result domain.JobResult) error {
	now := time.Now().UTC()
	return r.finish(ctx, id, map[string]interface{}{
		"status":           domain.JobStatusCompleted,
		"video_id":         result.VideoID,
		"result_title":     result.Title,
		"s3_key":           result.S3Key,
		"thumbnail_key":    result.ThumbnailURL,
		"duration_seconds": result.Duration,
		"finished_at":      now,
		"updated_at":       now,
	})
}

// Fail moves a Processing job to Failed with message.
// An empty message is replaced so that a Failed job always explains itself.
func (r *JobRepository) Fail(ctx context.Context, id, message string) error {
	if message == "" {
		message = "unknown error"
	}
	now := time.Now().UTC()
	return r.finish(ctx, id, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"error_message": message,
		"finished_at":   now,
		"updated_at":    now,
	})
}

func (r *JobRepository) finish(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: update job %s: %v", domain.ErrPersistenceFailed, id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, id, job.Status)
}

// Get retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrJobNotFound for unknown IDs.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: get job %s: %v", domain.ErrPersistenceFailed, id, err)
	}
	return &job, nil
}

// Stats counts jobs per status.
func (r *JobRepository) Stats(ctx context.Context) (*domain.JobStats, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: job stats: %v", domain.ErrPersistenceFailed, err)
	}

	stats := &domain.JobStats{}
	for _, row := range rows {
		switch row.Status {
		case domain.JobStatusQueued:
			stats.Queued = row.Count
		case domain.JobStatusProcessing:
			stats.Processing = row.Count
		case domain.JobStatusCompleted:
			stats.Completed = row.Count
		case domain.JobStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}
