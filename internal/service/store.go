package service

import (
	"context"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
)

// JobStore is the durable queue plus the one cross-table write the pipeline
// needs. *repository.Store implements it.
type JobStore interface {
	Insert(ctx context.Context, job *domain.Job) error
	ClaimNext(ctx context.Context, workerID string) (*domain.Job, error)
	Fail(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Stats(ctx context.Context) (*domain.JobStats, error)

	// CompleteWithVideo inserts video and marks job id Completed atomically.
	CompleteWithVideo(ctx context.Context, id string, video *domain.Video) (*domain.JobResult, error)
}
