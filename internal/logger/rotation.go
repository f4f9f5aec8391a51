package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	Compress   bool
}

// RotatingWriter appends to a log file and rotates it once the size cap is
// reached. Rotated segments carry a timestamp suffix, are optionally gzipped,
// and are pruned once they age past the retention window.
type RotatingWriter struct {
	cfg   RotationConfig
	limit int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens the log file for appending, creating its directory
// when needed, and prunes expired segments in the background.
func NewRotatingWriter(cfg RotationConfig) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	w := &RotatingWriter{
		cfg:   cfg,
		limit: int64(cfg.MaxSizeMB) * 1024 * 1024,
		file:  file,
		size:  info.Size(),
	}
	go w.prune()

	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate renames the active file to a timestamped segment and reopens a
// fresh one. The caller holds the lock.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	segment := fmt.Sprintf("%s.%s", w.cfg.Path, time.Now().Format("20060102-150405"))
	if err := os.Rename(w.cfg.Path, segment); err != nil {
		return err
	}
	if w.cfg.Compress {
		go compressSegment(segment)
	}

	file, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0
	return nil
}

// compressSegment gzips a rotated segment and removes the original.
func compressSegment(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// prune removes rotated segments older than the retention window.
func (w *RotatingWriter) prune() {
	if w.cfg.MaxAgeDays <= 0 {
		return
	}

	segments, err := filepath.Glob(w.cfg.Path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.cfg.MaxAgeDays)
	for _, segment := range segments {
		info, err := os.Stat(segment)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(segment)
		if !strings.HasSuffix(segment, ".gz") {
			os.Remove(segment + ".gz")
		}
	}
}
