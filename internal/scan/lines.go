package scan

import (
	"bytes"
	"sync"
)

// LineWriter re-assembles arbitrarily chunked output into complete lines.
// A chunk boundary may fall anywhere, including inside a JSON record.
type LineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(line string)
}

// NewLineWriter returns a writer that calls emit once per complete line,
// without the trailing newline.
func NewLineWriter(emit func(line string)) *LineWriter {
	return &LineWriter{emit: emit}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[start : start+i]))
		start += i + 1
	}
	if start > 0 {
		n := copy(w.buf, w.buf[start:])
		w.buf = w.buf[:n]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
}
