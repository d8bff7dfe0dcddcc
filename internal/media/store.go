// Package media stores the bytes of technique media files and renders image
// thumbnails.
package media

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/logging"
	"github.com/kimhsiao/techniquebook/internal/models"
)

// DefaultThumbnailSize is the bounding box edge of generated thumbnails, in pixels.
const DefaultThumbnailSize = 200

// FileStore keeps media files flat in one directory, keyed by file name.
type FileStore struct {
	// Base directory for storing media files
	baseDir string

	thumbnailSize int
	log           *logging.Logger
}

// NewFileStore creates the base directory if needed and returns a store over it.
// A thumbnailSize <= 0 selects DefaultThumbnailSize.
func NewFileStore(baseDir string, thumbnailSize int) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrMedia, "failed to create media directory", err)
	}
	if thumbnailSize <= 0 {
		thumbnailSize = DefaultThumbnailSize
	}
	return &FileStore{
		baseDir:       baseDir,
		thumbnailSize: thumbnailSize,
		log:           logging.Get(),
	}, nil
}

// WithLogger replaces the store logger.
func (s *FileStore) WithLogger(l *logging.Logger) *FileStore {
	s.log = l
	return s
}

// path resolves filename inside the base directory. Names containing a path
// separator or referring to a directory are refused.
func (s *FileStore) path(filename string) (string, bool) {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || filepath.Base(filename) != filename {
		return "", false
	}
	return filepath.Join(s.baseDir, filename), true
}

// Save writes data under filename, replacing any previous file atomically.
func (s *FileStore) Save(data []byte, filename string) bool {
	p, ok := s.path(filename)
	if !ok {
		s.log.Warn("refused media file name", map[string]interface{}{"file": filename})
		return false
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		s.log.Error("save media failed", err, map[string]interface{}{"file": filename})
		return false
	}
	return true
}

// Load returns the bytes stored under filename.
func (s *FileStore) Load(filename string) ([]byte, bool) {
	p, ok := s.path(filename)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("load media failed", map[string]interface{}{"file": filename, "error": err.Error()})
		}
		return nil, false
	}
	return data, true
}

// Delete removes filename. A missing file is not an error.
func (s *FileStore) Delete(filename string) {
	p, ok := s.path(filename)
	if !ok {
		return
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		s.log.Warn("delete media failed", map[string]interface{}{"file": filename, "error": err.Error()})
	}
}

// TypeOf classifies a media file by extension. Unknown extensions are images.
func TypeOf(filename string) models.MediaType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".m4v", ".avi", ".mkv", ".webm":
		return models.MediaTypeVideo
	}
	return models.MediaTypeImage
}
