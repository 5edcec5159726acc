package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/metrics"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
)

const (
	DefaultSearchResults = 10
	MaxSearchResults     = 50
)

// SubmitRequest asks for one URL to be imported. Empty optional fields fall back
// to what the extractor finds.
type SubmitRequest struct {
	URL         string
	Title       string
	Description string
	Tags        []string
	UserID      *int32
}

// SearchRequest asks for the results of a platform search to be imported.
type SearchRequest struct {
	Query      string
	MaxResults *int
	UserID     *int32
}

// JobService accepts import requests and answers status queries. It never
// waits on extraction.
type JobService struct {
	store      JobStore
	extractor  source.Extractor
	maxResults int
}

// NewJobService creates a JobService. maxResults caps search submissions; zero
// means MaxSearchResults.
func NewJobService(store JobStore, extractor source.Extractor, maxResults int) *JobService {
	if maxResults <= 0 {
		maxResults = MaxSearchResults
	}
	return &JobService{store: store, extractor: extractor, maxResults: maxResults}
}

// Submit validates req and queues one job. It returns the new job id.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	return s.submit(ctx, req, "url")
}

// NewJob validates req and builds the job it describes with a fresh id. The
// job is not stored.
func NewJob(req SubmitRequest) (*domain.Job, error) {
	sourceURL, err := ValidateSourceURL(req.URL)
	if err != nil {
		return nil, err
	}
	return &domain.Job{
		ID:          uuid.NewString(),
		SourceURL:   sourceURL,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Tags:        cleanTags(req.Tags),
		UserID:      req.UserID,
	}, nil
}

func (s *JobService) submit(ctx context.Context, req SubmitRequest, kind string) (string, error) {
	job, err := NewJob(req)
	if err != nil {
		return "", err
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return "", err
	}

	metrics.JobsSubmitted.WithLabelValues(kind).Inc()
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldURL:   job.SourceURL,
	}).Info("Job queued")

	return job.ID, nil
}

// SubmitSearch resolves req.Query through the extractor and queues one job per
// distinct result, tagged with the query. Zero results is not an error.
func (s *JobService) SubmitSearch(ctx context.Context, req SearchRequest) ([]string, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}

	max := DefaultSearchResults
	if req.MaxResults != nil {
		max = *req.MaxResults
		if max < 1 {
			return nil, fmt.Errorf("%w: max_results must be positive", domain.ErrInvalidRequest)
		}
	}
	if max > s.maxResults {
		max = s.maxResults
	}

	urls, err := s.extractor.Search(ctx, query, max)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("upstream_error").Inc()
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	ids := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] || len(ids) == max {
			continue
		}
		seen[u] = true

		id, err := s.submit(ctx, SubmitRequest{URL: u, Tags: []string{query}, UserID: req.UserID}, "search")
		if errors.Is(err, domain.ErrInvalidRequest) {
			logger.CtxWarn(ctx, "Skipping search result %q: %v", u, err)
			continue
		}
		if err != nil {
			metrics.SearchRequests.WithLabelValues("error").Inc()
			return ids, err
		}
		ids = append(ids, id)
	}

	metrics.SearchRequests.WithLabelValues("ok").Inc()
	logger.With(logger.Fields{logger.FieldCount: len(ids)}).Info(ctx, "Queued search results for %q", query)
	return ids, nil
}

// GetStatus returns the wire view of job id.
func (s *JobService) GetStatus(ctx context.Context, id string) (domain.JobView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.JobView{}, domain.ErrJobNotFound
	}
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.JobView{}, err
	}
	return job.View(), nil
}

// Stats counts jobs per status.
func (s *JobService) Stats(ctx context.Context) (*domain.JobStats, error) {
	return s.store.Stats(ctx)
}

// ValidateSourceURL accepts absolute http(s) URLs with a host and returns the
// trimmed form.
func ValidateSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", domain.ErrInvalidRequest)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed url %q", domain.ErrInvalidRequest, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", domain.ErrInvalidRequest, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: url %q has no host", domain.ErrInvalidRequest, raw)
	}
	return raw, nil
}

func cleanTags(tags []string) domain.StringArray {
	out := make(domain.StringArray, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
