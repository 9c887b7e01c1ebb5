// Package media stores uploaded receipt files in a single managed directory.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxSize is the upload ceiling used when none is configured.
const DefaultMaxSize int64 = 5 << 20

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

// Media store errors.
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrMediaNotFound        = errors.New("media not found")
	ErrInvalidPath          = errors.New("invalid media path")
)

// allowedTypes maps accepted content types to the extension of stored files.
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// Store persists media files under one directory. Stored files are named
// "{unix millis}-{random}{ext}"; the name is the media reference kept on an
// expense.
type Store struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

// New creates a Store rooted at dir, creating the directory when missing.
func New(dir string, maxSize int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("media directory is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}

	return &Store{dir: abs, maxSize: maxSize, now: time.Now}, nil
}

// Dir returns the absolute managed directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the upload ceiling in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Accept validates and stores an upload, returning its media reference.
// The declared type and the sniffed content must both be an allowed type and
// agree with each other. size is the declared length; the actual byte count
// is enforced as well.
func (s *Store) Accept(r io.Reader, declaredType string, size int64) (string, error) {
	if size > s.maxSize {
		return "", ErrPayloadTooLarge
	}

	declared, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		return "", ErrUnsupportedMediaType
	}
	ext, ok := allowedTypes[declared]
	if !ok {
		return "", ErrUnsupportedMediaType
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	if sniffed != declared {
		return "", ErrUnsupportedMediaType
	}

	name := s.newName(ext)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.maxSize+1))
	closeErr := f.Close()

	switch {
	case err != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("write media file: %w", err)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("close media file: %w", closeErr)
	case written > s.maxSize:
		_ = os.Remove(path)
		return "", ErrPayloadTooLarge
	}

	return name, nil
}

// Remove deletes a stored file. A file that is already gone counts as removed.
func (s *Store) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

// Open opens a stored file for streaming. The caller closes it.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("open media file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat media file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrMediaNotFound
	}

	return f, nil
}

// Exists reports whether a stored file is present.
func (s *Store) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// resolve maps a media reference to a path inside the managed directory.
// Only bare file names are accepted.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidPath
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || filepath.Base(name) != name {
		return "", ErrInvalidPath
	}

	path := filepath.Join(s.dir, name)
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel != name {
		return "", ErrInvalidPath
	}
	return path, nil
}

func (s *Store) newName(ext string) string {
	return fmt.Sprintf("%d-%d%s", s.now().UnixMilli(), rand.Intn(1_000_000_000), ext)
}
