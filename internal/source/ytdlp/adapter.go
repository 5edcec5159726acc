package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
)

const (
	outputBase   = "media"
	stderrTail   = 4096
	waitDelay    = 5 * time.Second
	watchURLBase = "https://www.youtube.com/watch?v="
)

var videoExts = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mkv": true, ".mov": true, ".flv": true,
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// Adapter runs the yt-dlp binary as a subprocess.
type Adapter struct {
	binary        string
	workDir       string
	format        string
	timeout       time.Duration
	searchTimeout time.Duration
	creds         source.Credentials
	thumbs        *ThumbnailProcessor
}

// New creates an Adapter from extractor configuration. Credentials configured
// here apply to every download that does not carry its own.
func New(cfg *config.ExtractorConfig) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	searchTimeout := cfg.SearchTimeout
	if searchTimeout <= 0 {
		searchTimeout = time.Minute
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "yt-dlp"
	}

	return &Adapter{
		binary:        binary,
		workDir:       cfg.WorkDir,
		format:        cfg.Format,
		timeout:       timeout,
		searchTimeout: searchTimeout,
		creds: source.Credentials{
			CookiesFile: cfg.CookiesFile,
			Username:    cfg.Username,
			Password:    cfg.Password,
		},
		thumbs: NewThumbnailProcessor(cfg.MaxThumbnailWidth, cfg.ThumbnailBaseURL),
	}
}

// Extract downloads url with yt-dlp and normalises its thumbnail to JPEG.
func (a *Adapter) Extract(ctx context.Context, url string, opts source.ExtractOptions) (*source.Extraction, error) {
	dir := opts.DestDir
	ownDir := false
	if dir == "" {
		d, err := os.MkdirTemp(a.workDir, "ytdlp-*")
		if err != nil {
			return nil, &source.ExtractError{Op: "download", URL: url, Err: fmt.Errorf("%w: create work dir: %v", domain.ErrExtractionFailed, err)}
		}
		dir, ownDir = d, true
	}

	ext, err := a.extract(ctx, url, dir, opts.Credentials)
	if err != nil {
		if ownDir {
			os.RemoveAll(dir)
		}
		return nil, err
	}
	ext.Dir = dir
	return ext, nil
}

func (a *Adapter) extract(ctx context.Context, url, dir string, creds source.Credentials) (*source.Extraction, error) {
	if creds.IsZero() {
		creds = a.creds
	}

	start := time.Now()
	_, stderr, err := a.run(ctx, a.timeout, a.downloadArgs(url, dir, creds))
	if err != nil {
		return nil, &source.ExtractError{Op: "download", URL: url, Output: stderr, Err: err}
	}

	media, err := findMedia(dir)
	if err != nil {
		return nil, &source.ExtractError{Op: "download", URL: url, Output: stderr, Err: err}
	}

	info := readInfo(filepath.Join(dir, outputBase+".info.json"))

	ext := &source.Extraction{
		MediaPath:       media,
		Ext:             strings.TrimPrefix(filepath.Ext(media), "."),
		Title:           info.Title,
		Description:     info.Description,
		DurationSeconds: int(info.Duration),
		SourceID:        info.ID,
	}
	if ext.SourceID == "" {
		ext.SourceID, _ = source.YouTubeID(url)
	}

	thumb, err := a.thumbnail(ctx, url, dir, ext.SourceID)
	if err != nil {
		return nil, &source.ExtractError{Op: "thumbnail", URL: url, Err: err}
	}
	ext.ThumbnailPath = thumb

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "yt-dlp extracted %q (%s)", ext.Title, filepath.Base(media))

	return ext, nil
}

func (a *Adapter) downloadArgs(url, dir string, creds source.Credentials) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--write-info-json",
		"--write-thumbnail",
		"--merge-output-format", "mp4",
		"--remux-video", "mp4",
		"-o", filepath.Join(dir, outputBase+".%(ext)s"),
	}
	if a.format != "" {
		args = append(args, "-f", a.format)
	}
	if creds.CookiesFile != "" {
		args = append(args, "--cookies", creds.CookiesFile)
	}
	if creds.Username != "" {
		args = append(args, "--username", creds.Username, "--password", creds.Password)
	}
	return append(args, "--", url)
}

// thumbnail returns a JPEG thumbnail path inside dir. yt-dlp's own thumbnail is
// preferred; YouTube URLs fall back to the public thumbnail endpoint.
func (a *Adapter) thumbnail(ctx context.Context, url, dir, sourceID string) (string, error) {
	dst := filepath.Join(dir, "thumbnail.jpg")

	if raw := findThumbnail(dir); raw != "" {
		err := a.thumbs.Normalize(raw, dst)
		if err == nil {
			return dst, nil
		}
		logger.CtxWarn(ctx, "Failed to normalise yt-dlp thumbnail %s: %v", filepath.Base(raw), err)
	}

	if _, ok := source.YouTubeID(url); !ok || sourceID == "" {
		return "", fmt.Errorf("%w: no thumbnail produced", domain.ErrExtractionFailed)
	}

	raw := filepath.Join(dir, "fallback-thumbnail")
	if err := a.thumbs.Fetch(ctx, sourceID, raw); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	if err := a.thumbs.Normalize(raw, dst); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return dst, nil
}

// Search lists up to max distinct video URLs for query via ytsearchN.
func (a *Adapter) Search(ctx context.Context, query string, max int) ([]string, error) {
	if max <= 0 {
		return []string{}, nil
	}

	args := []string{
		"--flat-playlist",
		"--dump-json",
		"--no-warnings",
		"--", fmt.Sprintf("ytsearch%d:%s", max, query),
	}
	stdout, stderr, err := a.run(ctx, a.searchTimeout, args)
	if err != nil {
		return nil, &source.ExtractError{
			Op:     "search",
			URL:    query,
			Output: stderr,
			Err:    fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err),
		}
	}
	return parseSearchResults(stdout, max), nil
}

type searchEntry struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

func parseSearchResults(out []byte, max int) []string {
	urls := make([]string, 0, max)
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() && len(urls) < max {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e searchEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}

		var u string
		switch {
		case strings.HasPrefix(e.WebpageURL, "http"):
			u = e.WebpageURL
		case strings.HasPrefix(e.URL, "http"):
			u = e.URL
		case e.ID != "":
			u = watchURLBase + e.ID
		default:
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// run executes yt-dlp with a hard timeout. On timeout the whole process group is
// killed and the error wraps source.ErrTimeout.
func (a *Adapter) run(ctx context.Context, timeout time.Duration, args []string) ([]byte, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.binary, args...)
	killGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTail)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.String(), nil
	}

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		err = fmt.Errorf("%w: %s not found: %v", domain.ErrUpstreamUnavailable, a.binary, err)
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", domain.ErrExtractionFailed, ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w after %s", domain.ErrExtractionFailed, source.ErrTimeout, timeout)
	default:
		err = fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return stdout.Bytes(), stderr.String(), err
}

type infoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
}

func readInfo(path string) infoJSON {
	var info infoJSON
	data, err := os.ReadFile(path)
	if err != nil {
		return info
	}
	_ = json.Unmarshal(data, &info)
	return info
}

func findMedia(dir string) (string, error) {
	matches, _ := filepath.Glob(filepath.Join(dir, outputBase+".*"))
	var best string
	var bestSize int64
	for _, m := range matches {
		if !videoExts[strings.ToLower(filepath.Ext(m))] {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || fi.Size() == 0 {
			continue
		}
		if fi.Size() > bestSize {
			best, bestSize = m, fi.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: yt-dlp produced no media file", domain.ErrExtractionFailed)
	}
	return best, nil
}

func findThumbnail(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, outputBase+".*"))
	for _, m := range matches {
		if imageExts[strings.ToLower(filepath.Ext(m))] {
			return m
		}
	}
	return ""
}
