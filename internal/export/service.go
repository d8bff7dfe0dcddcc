// Package export provides the flat JSON import/export codec and the seed loader.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/kimhsiao/techniquebook/internal/db"
	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/logging"
	"github.com/kimhsiao/techniquebook/internal/models"
)

// ExportService dumps and restores the whole technique store.
type ExportService struct {
	repo db.TreeStore
	log  *logging.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(repo db.TreeStore) *ExportService {
	return &ExportService{repo: repo, log: logging.Get()}
}

// WithLogger replaces the service logger.
func (s *ExportService) WithLogger(l *logging.Logger) *ExportService {
	s.log = l
	return s
}

// ExportConfig holds export configuration.
type ExportConfig struct {
	OutputPath string
	// Indent pretty-prints the JSON array.
	Indent bool
}

// ExportResult represents the result of an export operation.
type ExportResult struct {
	FilePath  string
	SizeBytes int64
	ItemCount int
	Checksum  string
	Duration  time.Duration
}

// ImportResult represents the result of an import or seed operation.
type ImportResult struct {
	ImportedCount int
	Duration      time.Duration
}

// Export writes every technique of every mode to w as one JSON array ordered by name.
func (s *ExportService) Export(w io.Writer, indent bool) (*ExportResult, error) {
	startTime := time.Now()

	data, count, err := s.encode(indent)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(errors.ErrExportFailed, "failed to write export", err)
	}

	return &ExportResult{
		SizeBytes: int64(len(data)),
		ItemCount: count,
		Checksum:  fmt.Sprintf("%x", sha256.Sum256(data)),
		Duration:  time.Since(startTime),
	}, nil
}

// ExportFile writes the export to config.OutputPath. The file is replaced atomically,
// so a failed export never leaves a truncated file behind.
func (s *ExportService) ExportFile(config *ExportConfig) (*ExportResult, error) {
	if config == nil || config.OutputPath == "" {
		return nil, errors.New(errors.ErrExportFailed, "export path is required")
	}
	startTime := time.Now()

	data, count, err := s.encode(config.Indent)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, errors.Wrap(errors.ErrExportFailed, "failed to create exports directory", err)
	}
	if err := atomic.WriteFile(config.OutputPath, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(errors.ErrExportFailed, "failed to write export file", err)
	}

	result := &ExportResult{
		FilePath:  config.OutputPath,
		SizeBytes: int64(len(data)),
		ItemCount: count,
		Checksum:  fmt.Sprintf("%x", sha256.Sum256(data)),
		Duration:  time.Since(startTime),
	}
	s.log.Info("export written", map[string]interface{}{
		"path":  result.FilePath,
		"items": result.ItemCount,
		"bytes": result.SizeBytes,
	})
	return result, nil
}

func (s *ExportService) encode(indent bool) ([]byte, int, error) {
	if s.repo == nil {
		return nil, 0, errors.New(errors.ErrExportFailed, "no store configured")
	}
	items, err := s.repo.ListTechniques()
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, len(items))
	for i, t := range items {
		records[i] = toRecord(t)
	}

	var data []byte
	if indent {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrExportFailed, "failed to encode export", err)
	}
	return data, len(records), nil
}

// Import decodes a JSON array of records from r and inserts every record with its id
// taken verbatim. The whole payload is validated first and written in one
// transaction: any problem fails the import as a single decode error and nothing is
// stored. Ids colliding with stored techniques fail the commit.
func (s *ExportService) Import(r io.Reader) (*ImportResult, error) {
	startTime := time.Now()
	if s.repo == nil {
		return nil, errors.New(errors.ErrDecode, "no store configured")
	}

	var records []Record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, errors.Decode("failed to decode import", err)
	}
	if dec.More() {
		return nil, errors.Decode("failed to decode import", fmt.Errorf("trailing data after array"))
	}

	items, err := s.validate(records)
	if err != nil {
		s.log.Warn("import rejected", map[string]interface{}{"reason": err.Error()})
		return nil, errors.Decode("invalid import", err)
	}

	if err := s.repo.CreateTechniques(items); err != nil {
		s.log.Error("import failed", err)
		return nil, err
	}

	s.log.Info("import finished", map[string]interface{}{"items": len(items)})
	return &ImportResult{
		ImportedCount: len(items),
		Duration:      time.Since(startTime),
	}, nil
}

// ImportFile imports the export file at path.
func (s *ExportService) ImportFile(path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Decode("failed to open import file", err)
	}
	defer f.Close()
	return s.Import(f)
}

// validate checks ids, modes and parent links of an import payload. A parent must be
// in the payload or already stored, and must share the record's mode.
func (s *ExportService) validate(records []Record) ([]*models.Technique, error) {
	byID := make(map[models.UUID]*models.Technique, len(records))
	items := make([]*models.Technique, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d: missing id", i)
		}
		if !r.Mode.Valid() {
			return nil, fmt.Errorf("record %d (%s): unknown mode %q", i, r.ID, r.Mode)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate id %s", i, r.ID)
		}
		t := r.technique()
		byID[t.ID] = t
		items = append(items, t)
	}

	for _, t := range items {
		if t.IsRoot() {
			continue
		}
		if *t.ParentID == t.ID {
			return nil, fmt.Errorf("record %s is its own parent", t.ID)
		}
		parent, ok := byID[*t.ParentID]
		if !ok {
			stored, err := s.repo.GetTechnique(*t.ParentID)
			if err != nil {
				return nil, fmt.Errorf("record %s: parent %s: %w", t.ID, *t.ParentID, err)
			}
			parent = stored
		}
		if parent.Mode != t.Mode {
			return nil, fmt.Errorf("record %s (%s) has parent %s in mode %s", t.ID, t.Mode, parent.ID, parent.Mode)
		}
	}

	if err := checkAcyclic(byID); err != nil {
		return nil, err
	}
	return items, nil
}

// checkAcyclic rejects parent chains within the payload that loop.
func checkAcyclic(byID map[models.UUID]*models.Technique) error {
	done := make(map[models.UUID]bool, len(byID))
	for id := range byID {
		path := make(map[models.UUID]bool)
		for cur := byID[id]; cur != nil && !done[cur.ID]; {
			if path[cur.ID] {
				return fmt.Errorf("parent chain of %s loops", id)
			}
			path[cur.ID] = true
			if cur.ParentID == nil {
				break
			}
			cur = byID[*cur.ParentID]
		}
		for p := range path {
			done[p] = true
		}
	}
	return nil
}
