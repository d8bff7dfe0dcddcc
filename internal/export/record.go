// Package export provides the flat JSON import/export codec and the seed loader.
package export

import (
	"time"

	"github.com/kimhsiao/techniquebook/internal/models"
)

// Record is one technique in an export file. Dates are RFC 3339.
type Record struct {
	ID              models.UUID        `json:"id"`
	Name            string             `json:"name"`
	Notes           string             `json:"notes"`
	NotesHTML       *string            `json:"notesHTML,omitempty"`
	ParentID        *models.UUID       `json:"parentID,omitempty"`
	Mode            models.Mode        `json:"mode"`
	SortOrder       int                `json:"sortOrder"`
	CreatedDate     time.Time          `json:"createdDate"`
	ModifiedDate    time.Time          `json:"modifiedDate"`
	Links           []string           `json:"links"`
	HiddenInModes   *models.ModeFlags  `json:"hiddenInModes,omitempty"`
	FavoriteInModes *models.ModeFlags  `json:"favoriteInModes,omitempty"`
	MediaItems      []models.MediaItem `json:"mediaItems,omitempty"`
}

// toRecord flattens t. Zero flag sets are omitted.
func toRecord(t *models.Technique) Record {
	r := Record{
		ID:           t.ID,
		Name:         t.Name,
		Notes:        t.Notes,
		NotesHTML:    t.NotesHTML,
		ParentID:     t.ParentID,
		Mode:         t.Mode,
		SortOrder:    t.SortOrder,
		CreatedDate:  t.CreatedDate,
		ModifiedDate: t.ModifiedDate,
		Links:        t.Links,
		MediaItems:   t.MediaItems,
	}
	if r.Links == nil {
		r.Links = []string{}
	}
	if !t.HiddenInModes.IsZero() {
		flags := t.HiddenInModes
		r.HiddenInModes = &flags
	}
	if !t.FavoriteInModes.IsZero() {
		flags := t.FavoriteInModes
		r.FavoriteInModes = &flags
	}
	return r
}

// technique rebuilds the stored form of r.
func (r Record) technique() *models.Technique {
	t := &models.Technique{
		ID:           r.ID,
		Name:         r.Name,
		Notes:        r.Notes,
		NotesHTML:    r.NotesHTML,
		ParentID:     r.ParentID,
		Mode:         r.Mode,
		SortOrder:    r.SortOrder,
		CreatedDate:  r.CreatedDate.UTC().Truncate(time.Millisecond),
		ModifiedDate: r.ModifiedDate.UTC().Truncate(time.Millisecond),
		Links:        r.Links,
		MediaItems:   r.MediaItems,
	}
	if t.Links == nil {
		t.Links = []string{}
	}
	if r.HiddenInModes != nil {
		t.HiddenInModes = *r.HiddenInModes
	}
	if r.FavoriteInModes != nil {
		t.FavoriteInModes = *r.FavoriteInModes
	}
	return t
}

// SeedRecord is one entry of a hand-written seed file. Ids are arbitrary strings and
// are replaced with fresh ids on load. NotesMarkdown, when set, is rendered into the
// HTML notes and its text replaces an empty Notes.
type SeedRecord struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Notes         string      `json:"notes"`
	NotesMarkdown string      `json:"notesMarkdown,omitempty"`
	ParentID      *string     `json:"parentID,omitempty"`
	Mode          models.Mode `json:"mode"`
	SortOrder     int         `json:"sortOrder"`
}
