package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
)

// fakeHeader resolves the -o template to $base and records the arguments.
const fakeHeader = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
base=$(printf '%s' "$out" | sed 's/\.%(ext)s$//')
if [ -n "$base" ]; then printf '%s\n' "$@" > "$(dirname "$base")/args.txt"; fi
`

func writeFakeYtDlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(fakeHeader+body), 0755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(t.TempDir(), "thumb.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestAdapter(binary string, mutate func(*config.ExtractorConfig)) *Adapter {
	cfg := &config.ExtractorConfig{
		Binary:            binary,
		Timeout:           10 * time.Second,
		SearchTimeout:     10 * time.Second,
		MaxThumbnailWidth: 640,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func TestAdapter_Extract(t *testing.T) {
	thumb := writePNG(t, 1920, 1080)
	bin := writeFakeYtDlp(t, fmt.Sprintf(`
printf 'video-bytes' > "$base.mp4"
printf '{"id":"abc123","title":"Demo","description":"A demo","duration":12.6}' > "$base.info.json"
cp %q "$base.png"
`, thumb))

	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.CookiesFile = "/secrets/cookies.txt" })
	dir := t.TempDir()

	ext, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: dir})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if ext.MediaPath != filepath.Join(dir, "media.mp4") || ext.Ext != "mp4" {
		t.Errorf("media = %s (%s)", ext.MediaPath, ext.Ext)
	}
	if ext.Title != "Demo" || ext.Description != "A demo" || ext.DurationSeconds != 12 || ext.SourceID != "abc123" {
		t.Errorf("unexpected metadata: %+v", ext)
	}
	if ext.Dir != dir {
		t.Errorf("Dir = %s, want %s", ext.Dir, dir)
	}

	f, err := os.Open(ext.ThumbnailPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 360 {
		t.Errorf("thumbnail is %dx%d, want 640x360", cfg.Width, cfg.Height)
	}

	args, _ := os.ReadFile(filepath.Join(dir, "args.txt"))
	for _, want := range []string{"--no-playlist", "--write-thumbnail", "--cookies\n/secrets/cookies.txt", "https://www.youtube.com/watch?v=abc123"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
}

func TestAdapter_ExtractRemuxesToMP4(t *testing.T) {
	thumb := writePNG(t, 10, 10)
	// Behaves like a format fallback that only has a webm stream.
	bin := writeFakeYtDlp(t, fmt.Sprintf(`
ext=webm
prev=""
for arg in "$@"; do
  if [ "$prev" = "--remux-video" ]; then ext="$arg"; fi
  prev="$arg"
done
printf 'v' > "$base.$ext"
cp %q "$base.jpg"
`, thumb))

	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.Format = "bv*[ext=mp4]+ba/b" })
	ext, err := a.Extract(context.Background(), "https://example.com/v/1", source.ExtractOptions{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if ext.Ext != "mp4" || filepath.Ext(ext.MediaPath) != ".mp4" {
		t.Errorf("media = %s (%s), want mp4", ext.MediaPath, ext.Ext)
	}
}

func TestAdapter_ExtractRequestCredentialsOverrideConfig(t *testing.T) {
	thumb := writePNG(t, 10, 10)
	bin := writeFakeYtDlp(t, fmt.Sprintf(`
printf 'v' > "$base.mp4"
cp %q "$base.jpg"
`, thumb))

	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.CookiesFile = "/config/cookies.txt" })
	dir := t.TempDir()

	_, err := a.Extract(context.Background(), "https://example.com/v/1", source.ExtractOptions{
		DestDir:     dir,
		Credentials: source.Credentials{Username: "alice", Password: "pw"},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	args, _ := os.ReadFile(filepath.Join(dir, "args.txt"))
	if strings.Contains(string(args), "/config/cookies.txt") {
		t.Error("configured cookies used despite request credentials")
	}
	if !strings.Contains(string(args), "--username\nalice\n--password\npw") {
		t.Errorf("username/password not passed:\n%s", args)
	}
}

func TestAdapter_ExtractToolFailure(t *testing.T) {
	bin := writeFakeYtDlp(t, `
echo "[youtube] abc123: Downloading webpage" >&2
echo "ERROR: [youtube] abc123: Private video. Sign in if you've been granted access" >&2
exit 1
`)
	a := newTestAdapter(bin, nil)

	_, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: t.TempDir()})
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
	var ee *source.ExtractError
	if !errors.As(err, &ee) {
		t.Fatalf("err is %T, want *source.ExtractError", err)
	}
	if !strings.Contains(ee.Output, "Private video") || strings.Contains(ee.Output, "Downloading webpage") {
		t.Errorf("Output = %q, want only the ERROR line", ee.Output)
	}
}

func TestAdapter_ExtractNoMedia(t *testing.T) {
	bin := writeFakeYtDlp(t, `exit 0`)
	a := newTestAdapter(bin, nil)

	_, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: t.TempDir()})
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestAdapter_ExtractTimeoutKillsProcess(t *testing.T) {
	bin := writeFakeYtDlp(t, `
sleep 30
printf 'late' > "$base.mp4"
`)
	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.Timeout = 300 * time.Millisecond })
	dir := t.TempDir()

	start := time.Now()
	_, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: dir})
	elapsed := time.Since(start)

	if !errors.Is(err, source.ErrTimeout) || !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrTimeout wrapped in ErrExtractionFailed", err)
	}
	if elapsed > 10*time.Second {
		t.Errorf("Extract returned after %s, process was not killed", elapsed)
	}

	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(filepath.Join(dir, "media.mp4")); err == nil {
		t.Error("child kept running after timeout")
	}
}

func TestAdapter_ExtractMissingBinary(t *testing.T) {
	a := newTestAdapter(filepath.Join(t.TempDir(), "no-such-yt-dlp"), nil)

	_, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: t.TempDir()})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestAdapter_ExtractOwnDirRemovedOnFailure(t *testing.T) {
	bin := writeFakeYtDlp(t, `exit 2`)
	work := t.TempDir()
	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.WorkDir = work })

	if _, err := a.Extract(context.Background(), "https://youtu.be/abc123", source.ExtractOptions{}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %d entries left", len(entries))
	}
}

func TestAdapter_ExtractYouTubeThumbnailFallback(t *testing.T) {
	var mu sync.Mutex
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "maxresdefault.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		jpeg.Encode(w, image.NewRGBA(image.Rect(0, 0, 480, 360)), nil)
	}))
	defer srv.Close()

	bin := writeFakeYtDlp(t, `
printf 'video-bytes' > "$base.mp4"
printf '{"id":"abc123","title":"Demo"}' > "$base.info.json"
`)
	a := newTestAdapter(bin, func(c *config.ExtractorConfig) { c.ThumbnailBaseURL = srv.URL })

	ext, err := a.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123", source.ExtractOptions{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, err := os.Stat(ext.ThumbnailPath); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/abc123/maxresdefault.jpg", "/abc123/hqdefault.jpg"}
	if len(requested) < 2 || requested[0] != want[0] || requested[len(requested)-1] != want[1] {
		t.Errorf("requested %v, want %v", requested, want)
	}
}

func TestAdapter_ExtractNoThumbnailForOtherSites(t *testing.T) {
	bin := writeFakeYtDlp(t, `printf 'video-bytes' > "$base.mp4"`)
	a := newTestAdapter(bin, nil)

	_, err := a.Extract(context.Background(), "https://vimeo.com/12345", source.ExtractOptions{DestDir: t.TempDir()})
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestAdapter_Search(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "search-args.txt")
	bin := writeFakeYtDlp(t, fmt.Sprintf(`
printf '%%s\n' "$@" > %q
echo '{"id":"a1","url":"https://www.youtube.com/watch?v=a1"}'
echo '{"id":"a1","url":"https://www.youtube.com/watch?v=a1"}'
echo 'not json'
echo '{"id":"b2","url":"b2"}'
echo '{"id":"c3","webpage_url":"https://www.youtube.com/watch?v=c3"}'
echo '{"id":"d4"}'
echo '{"id":"e5"}'
echo '{"id":"f6"}'
`, argsFile))
	a := newTestAdapter(bin, nil)

	urls, err := a.Search(context.Background(), "cat videos", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []string{
		"https://www.youtube.com/watch?v=a1",
		"https://www.youtube.com/watch?v=b2",
		"https://www.youtube.com/watch?v=c3",
		"https://www.youtube.com/watch?v=d4",
		"https://www.youtube.com/watch?v=e5",
	}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("urls = %v, want %v", urls, want)
	}

	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "ytsearch5:cat videos") || !strings.Contains(string(args), "--flat-playlist") {
		t.Errorf("unexpected search args:\n%s", args)
	}
}

func TestAdapter_SearchZeroResults(t *testing.T) {
	bin := writeFakeYtDlp(t, `exit 0`)
	a := newTestAdapter(bin, nil)

	urls, err := a.Search(context.Background(), "zzzz nothing", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if urls == nil || len(urls) != 0 {
		t.Errorf("urls = %#v, want empty non-nil slice", urls)
	}
}

func TestAdapter_SearchBackendDown(t *testing.T) {
	bin := writeFakeYtDlp(t, `
echo "ERROR: Unable to download API page: <urlopen error [Errno -3] Temporary failure in name resolution>" >&2
exit 1
`)
	a := newTestAdapter(bin, nil)

	_, err := a.Search(context.Background(), "cats", 3)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	tb.Write([]byte("0123456789"))
	if got := string(tb.buf); got != "23456789" {
		t.Errorf("buf = %q", got)
	}
	tb.Write([]byte("ab"))
	if got := string(tb.buf); got != "456789ab" {
		t.Errorf("buf = %q", got)
	}

	tb = newTailBuffer(1024)
	tb.Write([]byte("[info] x\nERROR: first\nmore\nERROR: second\n"))
	if got := tb.String(); got != "ERROR: first; ERROR: second" {
		t.Errorf("String() = %q", got)
	}
}
