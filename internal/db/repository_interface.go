// Package db provides repository interfaces for techniquebook data models.
package db

import (
	"github.com/kimhsiao/techniquebook/internal/models"
)

// Placement is a structural change: a technique's parent and sibling position.
type Placement struct {
	ID        models.UUID
	ParentID  *models.UUID
	SortOrder int
}

// FlagChange replaces a technique's per-mode hidden and favorite flags.
type FlagChange struct {
	ID       models.UUID
	Hidden   models.ModeFlags
	Favorite models.ModeFlags
}

// NodeStore is the durable collection of techniques. Every mutating call is one
// transaction: it either fully commits or leaves the prior state in place.
type NodeStore interface {
	// GetTechnique retrieves a technique by ID.
	GetTechnique(id models.UUID) (*models.Technique, error)

	// CreateTechnique inserts a technique with its media items.
	CreateTechnique(t *models.Technique) error

	// UpdateTechnique rewrites every column of an existing technique.
	UpdateTechnique(t *models.Technique) error

	// DeleteTechniques deletes techniques in the given order.
	DeleteTechniques(ids ...models.UUID) error

	// CountTechniques counts techniques stored in a mode.
	CountTechniques(mode models.Mode) (int, error)

	// ListTechniques returns every technique of every mode ordered by name.
	ListTechniques() ([]*models.Technique, error)
}

// TreeStore adds the indexed tree reads and batch writers the services rely on.
type TreeStore interface {
	NodeStore

	// ListByMode returns a mode's techniques ordered by name.
	ListByMode(mode models.Mode) ([]*models.Technique, error)

	// ListRoots returns a mode's root techniques in sibling order, hidden included.
	ListRoots(mode models.Mode) ([]*models.Technique, error)

	// ListChildren returns techniques whose parent_id is parentID, in sibling order.
	ListChildren(parentID models.UUID) ([]*models.Technique, error)

	// CountAll counts every stored technique.
	CountAll() (int, error)

	// CreateTechniques inserts many techniques atomically.
	CreateTechniques(ts []*models.Technique) error

	// UpdatePlacements applies parent/order changes atomically.
	UpdatePlacements(ps []Placement) error

	// UpdateFlags applies hidden/favorite changes atomically.
	UpdateFlags(fs []FlagChange) error
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ NodeStore = (*Repository)(nil)
	_ TreeStore = (*Repository)(nil)
)
