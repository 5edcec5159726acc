package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/service"
)

// ScrapeRequest is the body of POST /scrape.
type ScrapeRequest struct {
	YoutubeURL  string   `json:"youtube_url" binding:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	UserID      *int32   `json:"user_id"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults *int   `json:"max_results"`
	UserID     *int32 `json:"user_id"`
}

// JobHandler serves job submission and status endpoints.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Scrape handles POST /scrape. The job is only queued; clients poll
// GET /jobs/:job_id for the outcome.
func (h *JobHandler) Scrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	id, err := h.jobs.Submit(c.Request.Context(), service.SubmitRequest{
		URL:         req.YoutubeURL,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		UserID:      req.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

// Search handles POST /search.
func (h *JobHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ids, err := h.jobs.SubmitSearch(c.Request.Context(), service.SearchRequest{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		UserID:     req.UserID,
	})
	if err != nil && len(ids) > 0 {
		// Jobs queued before the failure still run; tell the client about them.
		writeErrorBody(c, err, gin.H{"job_ids": ids})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_ids": ids})
}

// GetJob handles GET /jobs/:job_id.
func (h *JobHandler) GetJob(c *gin.Context) {
	view, err := h.jobs.GetStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Stats handles GET /stats.
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	writeErrorBody(c, err, nil)
}

// writeErrorBody is writeError with extra fields merged into the body.
func writeErrorBody(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError
	body := gin.H{"error": "Internal server error"}
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status, body["error"] = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrJobNotFound):
		status, body["error"] = http.StatusNotFound, "Job not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status, body["error"] = http.StatusBadGateway, err.Error()
	default:
		logger.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
