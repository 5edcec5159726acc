package repository

import (
	"context"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"gorm.io/gorm"
)

// Store bundles the job queue and the video catalog over one database so that
// writes spanning both can share a transaction.
type Store struct {
	db     *gorm.DB
	Jobs   *JobRepository
	Videos *VideoRepository
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		Jobs:   NewJobRepository(db),
		Videos: NewVideoRepository(db),
	}
}

// InTx runs fn with repositories bound to a single transaction. fn must only
// use the repositories it is given; the transaction commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(jobs *JobRepository, videos *VideoRepository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.Jobs.WithTx(tx), s.Videos.WithTx(tx))
	})
}

// Insert queues a job.
func (s *Store) Insert(ctx context.Context, job *domain.Job) error {
	return s.Jobs.Insert(ctx, job)
}

// ClaimNext claims the next queued job for workerID.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	return s.Jobs.ClaimNext(ctx, workerID)
}

// Claim claims the queued job id for workerID.
func (s *Store) Claim(ctx context.Context, id, workerID string) (*domain.Job, error) {
	return s.Jobs.Claim(ctx, id, workerID)
}

// InsertClaimed inserts job and claims it for workerID in one transaction, so
// no worker pool can pick it up in between.
func (s *Store) InsertClaimed(ctx context.Context, job *domain.Job, workerID string) (*domain.Job, error) {
	var claimed *domain.Job
	err := s.InTx(ctx, func(jobs *JobRepository, _ *VideoRepository) error {
		if err := jobs.Insert(ctx, job); err != nil {
			return err
		}
		var err error
		claimed, err = jobs.Claim(ctx, job.ID, workerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Fail records a terminal failure for a Processing job.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.Jobs.Fail(ctx, id, message)
}

// Get looks up a job.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.Jobs.Get(ctx, id)
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (*domain.JobStats, error) {
	return s.Jobs.Stats(ctx)
}

// CompleteWithVideo inserts video and completes job id with the new video's
// identifiers in one transaction. Either both rows change or neither does, so a
// job that ends up Failed never leaves a video behind.
func (s *Store) CompleteWithVideo(ctx context.Context, id string, video *domain.Video) (*domain.JobResult, error) {
	var result domain.JobResult
	err := s.InTx(ctx, func(jobs *JobRepository, videos *VideoRepository) error {
		if err := videos.Create(ctx, video); err != nil {
			return err
		}
		result = domain.JobResult{
			VideoID:      int64(video.ID),
			Title:        video.Title,
			S3Key:        video.S3Key,
			ThumbnailURL: video.ThumbnailURL,
			Duration:     video.Duration,
		}
		return jobs.Complete(ctx, id, result)
	})
	if err != nil {
		video.ID = 0
		return nil, err
	}
	return &result, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return Ping(ctx, s.db)
}
