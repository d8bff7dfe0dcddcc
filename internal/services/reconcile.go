// Package services provides the combined view merging the gi and nogi forests.
package services

import (
	"sort"

	"github.com/kimhsiao/techniquebook/internal/models"
)

// Reconcile merges the visible techniques of both modes into combined records keyed
// by normalized name. gi nodes claim keys first; a nogi node joins the gi record
// with the same key or becomes a nogi-only record. Within one mode the first node in
// name order claims a key and later duplicates are dropped. Identity, parent and
// sort order come from the gi side when present.
//
// Parents are resolved per record, so a record may point at a parent that was itself
// resolved from the other mode. The result is sorted like sibling groups.
func Reconcile(gi, nogi []*models.Technique) []*models.CombinedTechnique {
	byKey := make(map[string]*models.CombinedTechnique, len(gi)+len(nogi))
	var out []*models.CombinedTechnique

	for _, t := range sortedCopy(gi) {
		if t.IsHidden(models.ViewGi) {
			continue
		}
		key := models.MergeKey(t.Name)
		if _, ok := byKey[key]; ok {
			continue
		}
		c := &models.CombinedTechnique{
			ID:        t.ID,
			Name:      t.Name,
			Gi:        t,
			ParentID:  t.ParentID,
			SortOrder: t.SortOrder,
		}
		byKey[key] = c
		out = append(out, c)
	}

	for _, t := range sortedCopy(nogi) {
		if t.IsHidden(models.ViewNoGi) {
			continue
		}
		key := models.MergeKey(t.Name)
		if c, ok := byKey[key]; ok {
			if c.NoGi == nil {
				c.NoGi = t
			}
			continue
		}
		c := &models.CombinedTechnique{
			ID:        t.ID,
			Name:      t.Name,
			NoGi:      t,
			ParentID:  t.ParentID,
			SortOrder: t.SortOrder,
		}
		byKey[key] = c
		out = append(out, c)
	}

	models.SortCombined(out)
	return out
}

func sortedCopy(ts []*models.Technique) []*models.Technique {
	out := append([]*models.Technique(nil), ts...)
	models.SortByName(out)
	return out
}

// Combined rebuilds the whole combined view.
func (s *TechniqueService) Combined() ([]*models.CombinedTechnique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combined()
}

func (s *TechniqueService) combined() ([]*models.CombinedTechnique, error) {
	gi, err := s.store.ListByMode(models.ModeGi)
	if err != nil {
		return nil, err
	}
	nogi, err := s.store.ListByMode(models.ModeNoGi)
	if err != nil {
		return nil, err
	}
	return Reconcile(gi, nogi), nil
}

// CombinedRoots returns the combined records without a parent.
func (s *TechniqueService) CombinedRoots() ([]*models.CombinedTechnique, error) {
	return s.combinedWhere(func(c *models.CombinedTechnique) bool {
		return c.ParentID == nil
	})
}

// CombinedChildren returns the combined records whose resolved parent is parentID.
func (s *TechniqueService) CombinedChildren(parentID models.UUID) ([]*models.CombinedTechnique, error) {
	return s.combinedWhere(func(c *models.CombinedTechnique) bool {
		return c.ParentID != nil && *c.ParentID == parentID
	})
}

func (s *TechniqueService) combinedWhere(keep func(c *models.CombinedTechnique) bool) ([]*models.CombinedTechnique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.combined()
	if err != nil {
		return nil, err
	}
	out := make([]*models.CombinedTechnique, 0, len(all))
	for _, c := range all {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CombinedFavorites returns the combined records that are a favorite in either mode,
// ordered by name.
func (s *TechniqueService) CombinedFavorites() ([]*models.CombinedTechnique, error) {
	favs, err := s.combinedWhere(func(c *models.CombinedTechnique) bool {
		return c.IsFavorite()
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(favs, func(i, j int) bool {
		return favs[i].Name < favs[j].Name
	})
	return favs, nil
}

// AddCombined adds name in each of modes, under the combined parent's node of that
// mode or as a root when parent is nil or has no node there. Every add is validated
// before any is written, and all are committed in one transaction.
func (s *TechniqueService) AddCombined(name string, parent *models.CombinedTechnique, modes ...models.Mode) ([]*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.Mode]bool, len(modes))
	var added []*models.Technique
	for _, m := range modes {
		if seen[m] {
			continue
		}
		seen[m] = true

		var parentID *models.UUID
		if parent != nil {
			if p := parent.In(m); p != nil {
				parentID = p.ID.Ptr()
			}
		}
		t, err := s.prepareAdd(name, parentID, m)
		if err != nil {
			return nil, s.reject("add", err)
		}
		added = append(added, t)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if err := s.store.CreateTechniques(added); err != nil {
		s.log.Error("add technique failed", err, map[string]interface{}{"modes": len(added)})
		return nil, err
	}
	ids := make([]models.UUID, len(added))
	for i, t := range added {
		ids[i] = t.ID
	}
	s.changed("added", ids...)
	return added, nil
}
