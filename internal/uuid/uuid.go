// Package uuid provides technique id generation and one-way id remapping.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kimhsiao/techniquebook/internal/models"
)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// NewID generates a new technique or media id.
func NewID() models.UUID {
	return models.UUID(New())
}

// Remapper translates foreign string ids into fresh native ids. The same foreign id
// always maps to the same native id; the mapping is never reversed.
type Remapper struct {
	ids map[string]models.UUID
	gen func() models.UUID
}

// NewRemapper creates an empty Remapper backed by NewID.
func NewRemapper() *Remapper {
	return &Remapper{ids: make(map[string]models.UUID), gen: NewID}
}

// Assign allocates a native id for old. Assigning the same old id twice is an error.
func (r *Remapper) Assign(old string) (models.UUID, error) {
	if old == "" {
		return "", fmt.Errorf("empty id")
	}
	if _, dup := r.ids[old]; dup {
		return "", fmt.Errorf("duplicate id %q", old)
	}
	id := r.gen()
	r.ids[old] = id
	return id, nil
}

// Lookup returns the native id assigned to old.
func (r *Remapper) Lookup(old string) (models.UUID, bool) {
	id, ok := r.ids[old]
	return id, ok
}
