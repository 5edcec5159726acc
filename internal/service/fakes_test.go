package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
	"github.com/harrisong/VideoStreaming-sub000/internal/storage"
)

// memoryJobStore is a JobStore that enforces the same transitions as the
// database-backed store.
type memoryJobStore struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	order       []string
	videos      []*domain.Video
	insertErr   error
	completeErr error
	nextVideoID int32
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]*domain.Job)}
}

func (m *memoryJobStore) Insert(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *job
	cp.Status = domain.JobStatusQueued
	cp.CreatedAt = time.Now()
	m.jobs[job.ID] = &cp
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memoryJobStore) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		j := m.jobs[id]
		if j.Status == domain.JobStatusQueued {
			j.Status = domain.JobStatusProcessing
			j.WorkerID = workerID
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *memoryJobStore) Fail(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.Status != domain.JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	j.Status = domain.JobStatusFailed
	j.ErrorMessage = message
	return nil
}

func (m *memoryJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memoryJobStore) Stats(ctx context.Context) (*domain.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.JobStats{}
	for _, j := range m.jobs {
		switch j.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *memoryJobStore) CompleteWithVideo(ctx context.Context, id string, video *domain.Video) (*domain.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status != domain.JobStatusProcessing {
		return nil, domain.ErrInvalidTransition
	}

	m.nextVideoID++
	video.ID = m.nextVideoID
	m.videos = append(m.videos, video)

	res := domain.JobResult{VideoID: int64(video.ID), Title: video.Title, S3Key: video.S3Key, ThumbnailURL: video.ThumbnailURL, Duration: video.Duration}
	j.Status = domain.JobStatusCompleted
	j.VideoID = &res.VideoID
	j.Duration = res.Duration
	j.ResultTitle = res.Title
	j.S3Key = res.S3Key
	j.ThumbnailKey = res.ThumbnailURL
	return &res, nil
}

func (m *memoryJobStore) videoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}

func (m *memoryJobStore) queue(id, url string) *domain.Job {
	job := &domain.Job{ID: id, SourceURL: url}
	m.Insert(context.Background(), job)
	claimed, _ := m.ClaimNext(context.Background(), "test-worker")
	return claimed
}

// fakeExtractor writes small files into the destination directory.
type fakeExtractor struct {
	mu          sync.Mutex
	title       string
	noThumbnail bool
	extractErr  error
	searchURLs  []string
	searchErr   error
	searchMax   int
	dirs        []string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, opts source.ExtractOptions) (*source.Extraction, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, opts.DestDir)
	f.mu.Unlock()

	if f.extractErr != nil {
		return nil, f.extractErr
	}

	media := filepath.Join(opts.DestDir, "media.mp4")
	if err := os.WriteFile(media, []byte("video-bytes"), 0644); err != nil {
		return nil, err
	}
	ext := &source.Extraction{
		Dir:             opts.DestDir,
		MediaPath:       media,
		Ext:             "mp4",
		Title:           f.title,
		Description:     "",
		DurationSeconds: 42,
		SourceID:        "abc123",
	}
	if !f.noThumbnail {
		thumb := filepath.Join(opts.DestDir, "thumbnail.jpg")
		if err := os.WriteFile(thumb, []byte("jpeg-bytes"), 0644); err != nil {
			return nil, err
		}
		ext.ThumbnailPath = thumb
	}
	return ext, nil
}

func (f *fakeExtractor) Search(ctx context.Context, query string, max int) ([]string, error) {
	f.mu.Lock()
	f.searchMax = max
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchURLs, nil
}

// flakyStorage fails uploads whose key has failPrefix.
type flakyStorage struct {
	*storage.MemoryStorage
	failPrefix string
}

func (f *flakyStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.failPrefix != "" && len(key) >= len(f.failPrefix) && key[:len(f.failPrefix)] == f.failPrefix {
		return fmt.Errorf("%w: simulated outage", domain.ErrStorageFailed)
	}
	return f.MemoryStorage.Upload(ctx, key, r, size, contentType)
}

var errBoom = errors.New("boom")
