// Package buildlog manages the per-build log file that mirrors every child process.
package buildlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the log file inside the build temp directory.
const FileName = "log.txt"

// Log is a truncating, concurrency-safe log file. Each Write is applied atomically,
// so line-sized writes from concurrent readers never interleave.
type Log struct {
	path    string
	verbose bool

	mu   sync.Mutex
	file *os.File
}

// Open creates dir if needed and truncates dir/log.txt.
func Open(dir string, verbose bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open build log %s: %w", path, err)
	}
	return &Log{path: path, verbose: verbose, file: f}, nil
}

// Write appends p to the log file.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, os.ErrClosed
	}
	return l.file.Write(p)
}

// WriteString appends s to the log file.
func (l *Log) WriteString(s string) (int, error) {
	return l.Write([]byte(s))
}

// Path returns the absolute or relative path of the log file as opened.
func (l *Log) Path() string { return l.path }

// Verbose reports whether child output should also be mirrored to the console.
func (l *Log) Verbose() bool { return l.verbose }

// Close flushes and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
