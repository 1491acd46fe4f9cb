package docker

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// LineWriter splits everything written to it into lines and hands each
// complete line to fn. It is safe for concurrent use.
type LineWriter struct {
	mu  sync.Mutex
	fn  func(line string)
	buf []byte
}

// NewLineWriter returns a LineWriter calling fn once per line.
func NewLineWriter(fn func(line string)) *LineWriter {
	return &LineWriter{fn: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		w.fn(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// Flush emits a trailing partial line, if any.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.fn(strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}

// Follow streams the container's output to fn line by line until the
// container stops or ctx is done.
func (c *Container) Follow(ctx context.Context, fn func(line string)) error {
	lw := NewLineWriter(fn)
	defer lw.Flush()

	return c.Logs(ctx, lw, true)
}

// Lines returns the container's output so far, one entry per line.
func (c *Container) Lines(ctx context.Context) ([]string, error) {
	var lines []string
	lw := NewLineWriter(func(line string) {
		lines = append(lines, line)
	})

	if err := c.Logs(ctx, lw, false); err != nil {
		return nil, err
	}
	lw.Flush()

	return lines, nil
}
