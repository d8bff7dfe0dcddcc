// Package models provides data model definitions for the techniquebook core.
package models

import (
	"sort"
	"strings"
)

// CombinedTechnique is a read-only record of the combined view. It stands for one
// logical technique, backed by a gi node, a nogi node, or both.
type CombinedTechnique struct {
	ID        UUID
	Name      string
	Gi        *Technique
	NoGi      *Technique
	ParentID  *UUID
	SortOrder int
}

// ExistsInBothModes reports whether both modes contribute a node.
func (c *CombinedTechnique) ExistsInBothModes() bool {
	return c.Gi != nil && c.NoGi != nil
}

// Canonical returns the node the record borrows its identity from: gi when present.
func (c *CombinedTechnique) Canonical() *Technique {
	if c.Gi != nil {
		return c.Gi
	}
	return c.NoGi
}

// In returns the underlying node for m, or nil.
func (c *CombinedTechnique) In(m Mode) *Technique {
	switch m {
	case ModeGi:
		return c.Gi
	case ModeNoGi:
		return c.NoGi
	}
	return nil
}

// IsFavorite reports whether either underlying node is a favorite in its own mode.
func (c *CombinedTechnique) IsFavorite() bool {
	return (c.Gi != nil && c.Gi.IsFavorite(ViewGi)) ||
		(c.NoGi != nil && c.NoGi.IsFavorite(ViewNoGi))
}

// MergeKey normalizes a name for cross-mode matching.
func MergeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SortCombined orders combined records by sort order, then name, then id.
func SortCombined(cs []*CombinedTechnique) {
	sort.SliceStable(cs, func(i, j int) bool {
		return siblingLess(cs[i].SortOrder, cs[j].SortOrder, cs[i].Name, cs[j].Name, cs[i].ID, cs[j].ID)
	})
}

// SortByName orders techniques by name, then id.
func SortByName(ts []*Technique) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Name != ts[j].Name {
			return ts[i].Name < ts[j].Name
		}
		return ts[i].ID < ts[j].ID
	})
}

func siblingLess(oi, oj int, ni, nj string, ii, ij UUID) bool {
	if oi != oj {
		return oi < oj
	}
	if ni != nj {
		return ni < nj
	}
	return ii < ij
}
