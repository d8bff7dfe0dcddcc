package export

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/models"
	"github.com/kimhsiao/techniquebook/internal/notes"
	"github.com/kimhsiao/techniquebook/internal/uuid"
)

// LoadSeed reads seed records from r and inserts them with fresh ids in one
// transaction. Seed files may carry comments and trailing commas. Every string id is
// mapped to a new id before any parent is resolved, so records may appear in any
// order. An unknown or cross-mode parent is a validation error.
func (s *ExportService) LoadSeed(r io.Reader, now time.Time) (*ImportResult, error) {
	startTime := time.Now()
	if s.repo == nil {
		return nil, errors.New(errors.ErrDecode, "no store configured")
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Decode("failed to read seed", err)
	}
	standard, err := hujson.Standardize(raw)
	if err != nil {
		return nil, errors.Decode("failed to parse seed", err)
	}
	var records []SeedRecord
	if err := json.Unmarshal(standard, &records); err != nil {
		return nil, errors.Decode("failed to decode seed", err)
	}

	items, err := translateSeed(records, now.UTC().Truncate(time.Millisecond))
	if err != nil {
		s.log.Warn("seed rejected", map[string]interface{}{"reason": err.Error()})
		return nil, err
	}
	if err := s.repo.CreateTechniques(items); err != nil {
		s.log.Error("seed failed", err)
		return nil, err
	}

	s.log.Info("seed loaded", map[string]interface{}{"items": len(items)})
	return &ImportResult{ImportedCount: len(items), Duration: time.Since(startTime)}, nil
}

// SeedFileIfEmpty loads the seed file at path only when the store holds no
// techniques. It reports whether the seed was applied.
func (s *ExportService) SeedFileIfEmpty(path string, now time.Time) (bool, error) {
	n, err := s.repo.CountAll()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Debug("store not empty, seed skipped", map[string]interface{}{"count": n})
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, errors.Decode("failed to open seed file", err)
	}
	defer f.Close()

	if _, err := s.LoadSeed(f, now); err != nil {
		return false, err
	}
	return true, nil
}

func translateSeed(records []SeedRecord, now time.Time) ([]*models.Technique, error) {
	ids := uuid.NewRemapper()
	modes := make(map[string]models.Mode, len(records))
	for i, r := range records {
		if !r.Mode.Valid() {
			return nil, errors.Validation("seed record %d (%s): unknown mode %q", i, r.ID, r.Mode)
		}
		if _, err := ids.Assign(r.ID); err != nil {
			return nil, errors.Validation("seed record %d: %v", i, err)
		}
		modes[r.ID] = r.Mode
	}

	items := make([]*models.Technique, 0, len(records))
	for _, r := range records {
		id, _ := ids.Lookup(r.ID)
		t := &models.Technique{
			ID:           id,
			Name:         r.Name,
			Notes:        r.Notes,
			Mode:         r.Mode,
			SortOrder:    r.SortOrder,
			CreatedDate:  now,
			ModifiedDate: now,
			Links:        []string{},
		}

		if r.ParentID != nil {
			parentID, ok := ids.Lookup(*r.ParentID)
			if !ok {
				return nil, errors.Validation("seed record %s: unknown parent %s", r.ID, *r.ParentID)
			}
			if modes[*r.ParentID] != r.Mode {
				return nil, errors.Validation("seed record %s (%s) has parent %s in mode %s",
					r.ID, r.Mode, *r.ParentID, modes[*r.ParentID])
			}
			t.ParentID = parentID.Ptr()
		}

		if r.NotesMarkdown != "" {
			html, err := notes.RenderMarkdown(r.NotesMarkdown)
			if err != nil {
				return nil, errors.Validation("seed record %s: %v", r.ID, err)
			}
			t.NotesHTML = &html
			if t.Notes == "" {
				plain, err := notes.PlainText(html)
				if err != nil {
					return nil, errors.Validation("seed record %s: %v", r.ID, err)
				}
				t.Notes = plain
			}
		}
		items = append(items, t)
	}

	if err := checkAcyclic(byID(items)); err != nil {
		return nil, errors.Validation("seed: %v", err)
	}
	return items, nil
}

func byID(items []*models.Technique) map[models.UUID]*models.Technique {
	out := make(map[models.UUID]*models.Technique, len(items))
	for _, t := range items {
		out[t.ID] = t
	}
	return out
}
