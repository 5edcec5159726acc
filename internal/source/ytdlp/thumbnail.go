package ytdlp

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultMaxThumbnailWidth = 1280
	defaultThumbnailBaseURL  = "https://img.youtube.com/vi"
	jpegQuality              = 85
)

// ThumbnailProcessor turns whatever image yt-dlp wrote (webp, png, jpg) into a
// bounded-width JPEG, and fetches YouTube's own thumbnail when yt-dlp wrote none.
type ThumbnailProcessor struct {
	client   *resty.Client
	maxWidth int
	baseURL  string
}

// NewThumbnailProcessor creates a ThumbnailProcessor. Zero values pick defaults.
func NewThumbnailProcessor(maxWidth int, baseURL string) *ThumbnailProcessor {
	if maxWidth <= 0 {
		maxWidth = defaultMaxThumbnailWidth
	}
	if baseURL == "" {
		baseURL = defaultThumbnailBaseURL
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &ThumbnailProcessor{
		client:   client,
		maxWidth: maxWidth,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// Normalize decodes src and writes it to dst as JPEG, downscaled to maxWidth.
func (p *ThumbnailProcessor) Normalize(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer in.Close()

	img, format, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode thumbnail: %w", err)
	}

	if b := img.Bounds(); b.Dx() > p.maxWidth {
		h := b.Dy() * p.maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, p.maxWidth, h))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Over, nil)
		img = scaled
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		out.Close()
		return fmt.Errorf("encode %s thumbnail as jpeg: %w", format, err)
	}
	return out.Close()
}

// Fetch downloads the YouTube thumbnail for videoID into dst. maxresdefault is
// missing for many videos, so hqdefault is tried next.
func (p *ThumbnailProcessor) Fetch(ctx context.Context, videoID, dst string) error {
	var lastErr error
	for _, name := range []string{"maxresdefault.jpg", "hqdefault.jpg"} {
		url := fmt.Sprintf("%s/%s/%s", p.baseURL, videoID, name)

		resp, err := p.client.R().SetContext(ctx).Get(url)
		if err != nil {
			lastErr = fmt.Errorf("fetch thumbnail: %w", err)
			continue
		}
		if resp.IsError() || len(resp.Body()) == 0 {
			lastErr = fmt.Errorf("fetch thumbnail: %s returned HTTP %d", url, resp.StatusCode())
			continue
		}
		return os.WriteFile(dst, resp.Body(), 0644)
	}
	return lastErr
}
