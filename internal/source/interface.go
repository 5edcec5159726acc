package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout marks an extraction that was killed for exceeding its deadline.
var ErrTimeout = errors.New("extraction timed out")

// Credentials is the optional session bundle handed to the extraction tool.
type Credentials struct {
	CookiesFile string
	Username    string
	Password    string
}

// IsZero reports whether no credential is set.
func (c Credentials) IsZero() bool {
	return c.CookiesFile == "" && c.Username == "" && c.Password == ""
}

// ExtractOptions controls a single extraction.
type ExtractOptions struct {
	// DestDir receives the downloaded files. When empty the extractor creates a
	// temporary directory and reports it in Extraction.Dir; the caller removes it.
	DestDir     string
	Credentials Credentials
}

// Extraction is a successful download: local files plus extractor metadata.
type Extraction struct {
	Dir             string
	MediaPath       string
	Ext             string
	ThumbnailPath   string // always a JPEG
	Title           string
	Description     string
	DurationSeconds int
	SourceID        string
}

// Extractor downloads media from a video platform.
type Extractor interface {
	// Extract downloads url into opts.DestDir.
	// Parameters:
	//   - ctx: context for cancellation; the extractor applies its own timeout on top.
	//   - url: source page URL.
	//   - opts: destination directory and credentials.
	// Returns:
	//   - *Extraction: local media and thumbnail paths with metadata.
	//   - error: *ExtractError on failure.
	Extract(ctx context.Context, url string, opts ExtractOptions) (*Extraction, error)

	// Search resolves a free-text query to at most max distinct source URLs
	// without downloading anything.
	Search(ctx context.Context, query string, max int) ([]string, error)
}

// ExtractError carries the tool's diagnostic output alongside the cause.
type ExtractError struct {
	Op     string // download, search
	URL    string
	Output string // tail of stderr
	Err    error
}

func (e *ExtractError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
