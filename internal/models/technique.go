// Package models provides data model definitions for the techniquebook core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for technique and media ids.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Ptr returns a pointer to a copy of u, for ParentID fields.
func (u UUID) Ptr() *UUID {
	return &u
}

// MediaType tags an attached media item.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaItem describes a media file attached to a technique. The bytes live in the
// media store under FileName.
type MediaItem struct {
	ID            UUID      `json:"id"`
	FileName      string    `json:"fileName"`
	Type          MediaType `json:"type"`
	ThumbnailData []byte    `json:"thumbnailData,omitempty"`
	AddedDate     time.Time `json:"addedDate"`
}

// Technique is a node in one mode's forest.
type Technique struct {
	ID              UUID        `json:"id"`
	Name            string      `json:"name"`
	Notes           string      `json:"notes"`
	NotesHTML       *string     `json:"notesHTML,omitempty"`
	ParentID        *UUID       `json:"parentID,omitempty"`
	Mode            Mode        `json:"mode"`
	SortOrder       int         `json:"sortOrder"`
	CreatedDate     time.Time   `json:"createdDate"`
	ModifiedDate    time.Time   `json:"modifiedDate"`
	MediaItems      []MediaItem `json:"mediaItems,omitempty"`
	Links           []string    `json:"links"`
	HiddenInModes   ModeFlags   `json:"hiddenInModes"`
	FavoriteInModes ModeFlags   `json:"favoriteInModes"`
}

// IsRoot reports whether t has no parent.
func (t *Technique) IsRoot() bool {
	return t.ParentID == nil
}

// IsHidden reports whether t is hidden in v. The combined view never hides.
func (t *Technique) IsHidden(v View) bool {
	m, ok := v.Mode()
	if !ok {
		return false
	}
	return t.HiddenInModes.Get(m)
}

// IsFavorite reports whether t is a favorite in v. In the combined view a favorite in
// either mode counts.
func (t *Technique) IsFavorite(v View) bool {
	if v.IsCombined() {
		return t.FavoriteInModes.Any()
	}
	m, _ := v.Mode()
	return t.FavoriteInModes.Get(m)
}

// VisibleIn reports whether t should be listed by scans (search, favorites) of v.
// The combined view drops a technique only when it is hidden in every mode.
func (t *Technique) VisibleIn(v View) bool {
	if v.IsCombined() {
		return !t.HiddenInModes.All()
	}
	return !t.IsHidden(v)
}

// Touch updates the ModifiedDate timestamp.
func (t *Technique) Touch(now time.Time) {
	t.ModifiedDate = now
}

// Clone returns a deep copy of t.
func (t *Technique) Clone() *Technique {
	c := *t
	if t.NotesHTML != nil {
		html := *t.NotesHTML
		c.NotesHTML = &html
	}
	if t.ParentID != nil {
		c.ParentID = t.ParentID.Ptr()
	}
	if t.MediaItems != nil {
		c.MediaItems = make([]MediaItem, len(t.MediaItems))
		for i, m := range t.MediaItems {
			c.MediaItems[i] = m
			if m.ThumbnailData != nil {
				c.MediaItems[i].ThumbnailData = append([]byte(nil), m.ThumbnailData...)
			}
		}
	}
	if t.Links != nil {
		c.Links = append([]string(nil), t.Links...)
	}
	return &c
}
