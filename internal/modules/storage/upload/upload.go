// Package upload stores documents submitted for summarization and extracts
// their text. Stored files are temporary: the summarize flow removes them
// after extraction and a sweeper removes anything left behind.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedFormat is returned for anything but plain text,
	// markdown and docx.
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrTooLarge is returned when a file exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
)

var allowedExts = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
	".docx":     {},
}

// Store writes uploads into a single directory.
type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// NewStore builds a Store rooted at dir. maxMB <= 0 disables the size limit.
func NewStore(dir string, maxMB int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:      dir,
		maxBytes: int64(maxMB) * 1024 * 1024,
		logger:   logger.Named("Upload"),
	}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// File is a stored upload.
type File struct {
	Path         string
	OriginalName string
	Ext          string
	Size         int64
}

// Save validates the extension and size of fh and copies it to disk under a
// random name.
func (s *Store) Save(fh *multipart.FileHeader) (*File, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fh.Filename)))
	if _, ok := allowedExts[ext]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if fh.Size == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return nil, ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return s.write(src, fh.Filename, ext)
}

func (s *Store) write(src io.Reader, original, ext string) (*File, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.dir, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	limit := s.maxBytes
	if limit <= 0 {
		limit = 1<<63 - 1
	} else {
		limit++
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &File{Path: path, OriginalName: filepath.Base(original), Ext: ext, Size: n}, nil
}

// Text extracts the document text.
func (f *File) Text(_ context.Context) (string, error) {
	return ExtractText(f.Path, f.Ext)
}

// Cleanup removes the stored file. Removing a missing file is not an error.
func (f *File) Cleanup() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SweepOrphans removes files older than maxAge and returns how many were
// deleted.
func (s *Store) SweepOrphans(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, ent.Name())); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove orphan upload", zap.String("name", ent.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
