package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Writer is an io.Writer that forwards captured tool output to slog, one record per line.
// Partial lines are buffered until a newline arrives or Flush is called.
type Writer struct {
	logger *slog.Logger
	source string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter constructs a Writer bound to the provided logger. The source is attached
// to every record so output from different tools can be told apart.
func NewWriter(logger *slog.Logger, source string) *Writer {
	return &Writer{logger: logger, source: source}
}

// Write logs every complete line in p at info level.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(line string) {
	if w.logger == nil {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.logger.Info("tool output", "source", w.source, "line", line)
}
