package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

const (
	defaultMaxBytes = 4 * 1024 * 1024
	defaultBackups  = 2
)

// RotatingWriter mirrors daemon log output to a file, rotating it into
// numbered backups when it grows past the size limit. An oversized file
// left over from a previous process rotates on the first write rather
// than being truncated.
type RotatingWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	size     int64
	maxBytes int64
	backups  int
}

// Setup routes the stdlib logger to stdout and a rotating file with the
// default limits.
func Setup(logPath string) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, defaultMaxBytes, defaultBackups)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(path string, maxBytes int64, backups int) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &RotatingWriter{
		file:     f,
		path:     path,
		size:     size,
		maxBytes: maxBytes,
		backups:  backups,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxBytes {
		w.rotate()
	}

	return n, err
}

// rotate shifts path.1 .. path.N-1 up one slot, drops the oldest, and
// reopens a fresh current file.
func (w *RotatingWriter) rotate() {
	w.file.Close()

	os.Remove(w.backupPath(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		os.Rename(w.backupPath(i), w.backupPath(i+1))
	}
	os.Rename(w.path, w.backupPath(1))

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) backupPath(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
