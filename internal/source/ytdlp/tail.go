package ytdlp

import "strings"

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

// String returns the buffered text, preferring the lines yt-dlp marks as errors.
func (t *tailBuffer) String() string {
	text := strings.TrimSpace(string(t.buf))
	var errs []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			errs = append(errs, strings.TrimSpace(line))
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "; ")
	}
	return text
}
