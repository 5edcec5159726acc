package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/metrics"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
	"github.com/harrisong/VideoStreaming-sub000/internal/storage"
)

// finishTimeout bounds the bookkeeping writes (Fail, rollback deletes) that run
// after the job's own context may already be cancelled.
const finishTimeout = 30 * time.Second

// IngestService runs the per-job pipeline: extract, upload media and
// thumbnail, record the video, complete the job.
type IngestService struct {
	store     JobStore
	extractor source.Extractor
	storage   storage.ObjectStorage
	workDir   string
	creds     source.Credentials
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	// WorkDir is where per-job temporary directories are created. Empty means os.TempDir.
	WorkDir     string
	Credentials source.Credentials
}

// NewIngestService creates a new ingest service
func NewIngestService(store JobStore, extractor source.Extractor, objectStorage storage.ObjectStorage, cfg *IngestConfig) *IngestService {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	return &IngestService{
		store:     store,
		extractor: extractor,
		storage:   objectStorage,
		workDir:   cfg.WorkDir,
		creds:     cfg.Credentials,
	}
}

// Process runs the pipeline for a claimed job and always leaves it Completed or
// Failed. The returned error is the pipeline failure, already recorded on the job.
func (s *IngestService) Process(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	ctx = logger.SetJobID(ctx, job.ID)
	log := logger.FromContext(ctx).WithField(logger.FieldURL, job.SourceURL)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	start := time.Now()
	log.Info("Processing job")

	result, err := s.run(ctx, job)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()

		if ferr := s.store.Fail(failCtx, job.ID, failureMessage(err)); ferr != nil {
			log.WithError(ferr).Error("Failed to record job failure")
		}
		metrics.JobsFinished.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		log.WithError(err).WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).Warn("Job failed")
		return nil, err
	}

	metrics.JobsFinished.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	log.WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"video_id":             result.VideoID,
		"s3_key":               result.S3Key,
	}).Info("Job completed")
	return result, nil
}

func (s *IngestService) run(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	dir, err := os.MkdirTemp(s.workDir, "job-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", domain.ErrExtractionFailed, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.CtxWarn(ctx, "Failed to remove work dir %s: %v", dir, rmErr)
		}
	}()

	// Nothing is persisted before extraction succeeds, so no rollback is needed here.
	stepStart := time.Now()
	ext, err := s.extractor.Extract(ctx, job.SourceURL, source.ExtractOptions{DestDir: dir, Credentials: s.creds})
	metrics.ObserveStep("extract", stepStart, err)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if ext.ThumbnailPath == "" {
		return nil, fmt.Errorf("extract: %w: no thumbnail", domain.ErrExtractionFailed)
	}

	objectID := uuid.NewString()
	videoKey := storage.VideoKey(objectID, ext.Ext)
	thumbKey := storage.ThumbnailKey(objectID)

	var uploaded []string
	rollback := func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		for _, key := range uploaded {
			if delErr := s.storage.Delete(delCtx, key); delErr != nil {
				logger.FromContext(ctx).WithField("storage_key", key).WithError(delErr).Error("Failed to rollback storage upload")
			}
		}
	}

	stepStart = time.Now()
	_, err = storage.UploadFile(ctx, s.storage, videoKey, ext.MediaPath, storage.ContentTypeForExt(ext.Ext))
	metrics.ObserveStep("upload_media", stepStart, err)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", asStorageError(err))
	}
	uploaded = append(uploaded, videoKey)

	stepStart = time.Now()
	_, err = storage.UploadFile(ctx, s.storage, thumbKey, ext.ThumbnailPath, "image/jpeg")
	metrics.ObserveStep("upload_thumbnail", stepStart, err)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("upload thumbnail: %w", asStorageError(err))
	}
	uploaded = append(uploaded, thumbKey)

	video := buildVideo(job, ext, videoKey, thumbKey)

	stepStart = time.Now()
	result, err := s.store.CompleteWithVideo(ctx, job.ID, video)
	metrics.ObserveStep("persist", stepStart, err)
	if err != nil {
		rollback()
		if !errors.Is(err, domain.ErrPersistenceFailed) && !errors.Is(err, domain.ErrInvalidTransition) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
		return nil, fmt.Errorf("record video: %w", err)
	}
	return result, nil
}

// buildVideo prefers caller-supplied metadata over what the extractor found.
func buildVideo(job *domain.Job, ext *source.Extraction, videoKey, thumbKey string) *domain.Video {
	title := firstNonEmpty(job.Title, ext.Title, "Untitled video")
	description := firstNonEmpty(job.Description, ext.Description, "Imported from "+job.SourceURL)

	tags := domain.StringArray{}
	if len(job.Tags) > 0 {
		tags = append(tags, job.Tags...)
	}

	return &domain.Video{
		Title:        title,
		Description:  description,
		S3Key:        videoKey,
		ThumbnailURL: thumbKey,
		UploadedBy:   job.UserID,
		UploadDate:   time.Now().UTC(),
		Tags:         tags,
		Duration:     ext.DurationSeconds,
	}
}

func asStorageError(err error) error {
	if errors.Is(err, domain.ErrStorageFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
}

// failureMessage is the text stored on a Failed job. It is never empty.
func failureMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "job failed"
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
