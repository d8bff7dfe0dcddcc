// Package services provides technique tree queries and structural mutations.
package services

import (
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/techniquebook/internal/db"
	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/logging"
	"github.com/kimhsiao/techniquebook/internal/models"
	"github.com/kimhsiao/techniquebook/internal/notes"
	"github.com/kimhsiao/techniquebook/internal/uuid"
)

// MediaRemover deletes media bytes by file name. Implemented by media.FileStore.
type MediaRemover interface {
	Delete(filename string)
}

// ServiceConfig holds the collaborators of a TechniqueService.
type ServiceConfig struct {
	// Media receives file deletes for media items dropped by Update or Delete.
	// Nil disables media cleanup.
	Media MediaRemover

	// Logger defaults to logging.Get().
	Logger *logging.Logger

	// Now defaults to time.Now. Timestamps are truncated to milliseconds in UTC.
	Now func() time.Time
}

// TechniqueService owns the technique forests of every mode. All operations are
// serialized through one mutex; the store is the only state kept between calls.
type TechniqueService struct {
	store db.TreeStore
	media MediaRemover
	log   *logging.Logger
	now   func() time.Time

	// Event callback fired after a committed mutation
	onChanged func(op string, ids []models.UUID)

	mu sync.Mutex
}

// TechniqueUpdate carries the content fields replaced by Update.
type TechniqueUpdate struct {
	Name       string
	Notes      string
	NotesHTML  *string
	MediaItems []models.MediaItem
	Links      []string
}

// NewTechniqueService creates a TechniqueService over store.
func NewTechniqueService(store db.TreeStore, config *ServiceConfig) *TechniqueService {
	if config == nil {
		config = &ServiceConfig{}
	}
	s := &TechniqueService{
		store: store,
		media: config.Media,
		log:   config.Logger,
		now:   config.Now,
	}
	if s.log == nil {
		s.log = logging.Get()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SetChangeCallback registers fn to run after every committed mutation with the
// operation name and the affected ids. fn runs with the service lock held and must
// not call back into the service.
func (s *TechniqueService) SetChangeCallback(fn func(op string, ids []models.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChanged = fn
}

func (s *TechniqueService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *TechniqueService) changed(op string, ids ...models.UUID) {
	s.log.Info("technique "+op, map[string]interface{}{"count": len(ids)})
	if s.onChanged != nil {
		s.onChanged(op, ids)
	}
}

func (s *TechniqueService) reject(op string, err error) error {
	s.log.Warn("rejected "+op, map[string]interface{}{"reason": err.Error()})
	return err
}

// =====================================================
// Queries
// =====================================================

// Get returns the technique with id.
func (s *TechniqueService) Get(id models.UUID) (*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetTechnique(id)
}

// All returns every technique of view ordered by name. The combined view returns the
// union of both modes, hidden nodes included.
func (s *TechniqueService) All(view models.View) ([]*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all(view)
}

func (s *TechniqueService) all(view models.View) ([]*models.Technique, error) {
	if view.IsCombined() {
		return s.store.ListTechniques()
	}
	m, ok := view.Mode()
	if !ok {
		return nil, errors.Validation("unknown view %q", view)
	}
	return s.store.ListByMode(m)
}

// Roots returns the visible root techniques of mode in sibling order.
func (s *TechniqueService) Roots(mode models.Mode) ([]*models.Technique, error) {
	if !mode.Valid() {
		return nil, errors.Validation("unknown mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	roots, err := s.store.ListRoots(mode)
	if err != nil {
		return nil, err
	}
	return visible(roots, mode.View()), nil
}

// Children returns the techniques whose parent is parentID in sibling order. Lookup is
// by parent id alone; view only filters hidden nodes. A missing parent yields an
// empty result.
func (s *TechniqueService) Children(parentID models.UUID, view models.View) ([]*models.Technique, error) {
	if !view.Valid() {
		return nil, errors.Validation("unknown view %q", view)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	children, err := s.store.ListChildren(parentID)
	if err != nil {
		return nil, err
	}
	return visible(children, view), nil
}

// Descendants returns every technique below id in depth-first pre-order, hidden
// nodes included.
func (s *TechniqueService) Descendants(id models.UUID) ([]*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.store.GetTechnique(id)
	if err != nil {
		return nil, err
	}
	var out []*models.Technique
	err = s.walk(root, func(t *models.Technique, post bool) {
		if !post && t.ID != root.ID {
			out = append(out, t)
		}
	})
	return out, err
}

// Favorites returns the visible favorites of view ordered by name. In the combined
// view a technique counts when it is a favorite in either mode and not hidden in both.
func (s *TechniqueService) Favorites(view models.View) ([]*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.all(view)
	if err != nil {
		return nil, err
	}
	var out []*models.Technique
	for _, t := range all {
		if t.IsFavorite(view) && t.VisibleIn(view) {
			out = append(out, t)
		}
	}
	return out, nil
}

func visible(ts []*models.Technique, view models.View) []*models.Technique {
	out := make([]*models.Technique, 0, len(ts))
	for _, t := range ts {
		if !t.IsHidden(view) {
			out = append(out, t)
		}
	}
	return out
}

// siblings returns the raw sibling group of a node at parentID in mode, hidden
// nodes included, in sibling order.
func (s *TechniqueService) siblings(parentID *models.UUID, mode models.Mode) ([]*models.Technique, error) {
	if parentID == nil {
		return s.store.ListRoots(mode)
	}
	children, err := s.store.ListChildren(*parentID)
	if err != nil {
		return nil, err
	}
	out := children[:0]
	for _, c := range children {
		if c.Mode == mode {
			out = append(out, c)
		}
	}
	return out, nil
}

// walk visits root and everything below it depth-first, calling fn before (post =
// false) and after (post = true) each node's children. Nodes already visited are
// skipped, so a corrupt parent chain cannot loop.
func (s *TechniqueService) walk(root *models.Technique, fn func(t *models.Technique, post bool)) error {
	seen := make(map[models.UUID]bool)
	var visit func(t *models.Technique) error
	visit = func(t *models.Technique) error {
		if seen[t.ID] {
			return nil
		}
		seen[t.ID] = true
		fn(t, false)
		children, err := s.store.ListChildren(t.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := visit(c); err != nil {
				return err
			}
		}
		fn(t, true)
		return nil
	}
	return visit(root)
}

// =====================================================
// Mutations
// =====================================================

// Add creates a technique named name under parentID (nil for a root) in mode. It is
// appended after every existing sibling, hidden ones included.
func (s *TechniqueService) Add(name string, parentID *models.UUID, mode models.Mode) (*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.prepareAdd(name, parentID, mode)
	if err != nil {
		return nil, s.reject("add", err)
	}
	if err := s.store.CreateTechnique(t); err != nil {
		s.log.Error("add technique failed", err, map[string]interface{}{"mode": mode.String()})
		return nil, err
	}
	s.changed("added", t.ID)
	return t, nil
}

// prepareAdd validates an add and builds the record without writing it.
func (s *TechniqueService) prepareAdd(name string, parentID *models.UUID, mode models.Mode) (*models.Technique, error) {
	if !mode.Valid() {
		return nil, errors.Validation("cannot add to mode %q", mode)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.Validation("technique name is empty")
	}
	if parentID != nil {
		parent, err := s.store.GetTechnique(*parentID)
		if err != nil {
			return nil, err
		}
		if parent.Mode != mode {
			return nil, errors.Validation("parent %s is in mode %s, not %s", parent.ID, parent.Mode, mode)
		}
	}

	group, err := s.siblings(parentID, mode)
	if err != nil {
		return nil, err
	}
	// deletes leave gaps, so the count alone can collide with the last sibling
	next := 0
	for _, sib := range group {
		if sib.SortOrder >= next {
			next = sib.SortOrder + 1
		}
	}

	now := s.timestamp()
	t := &models.Technique{
		ID:           uuid.NewID(),
		Name:         name,
		Mode:         mode,
		SortOrder:    next,
		CreatedDate:  now,
		ModifiedDate: now,
		Links:        []string{},
	}
	if parentID != nil {
		t.ParentID = parentID.Ptr()
	}
	return t, nil
}

// Update replaces the content of id and stamps its modified date. Parent, order and
// mode are untouched. Files of media items no longer listed are deleted from the
// media store after the commit.
func (s *TechniqueService) Update(id models.UUID, u TechniqueUpdate) (*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(u.Name) == "" {
		return nil, s.reject("update", errors.Validation("technique name is empty"))
	}
	t, err := s.store.GetTechnique(id)
	if err != nil {
		return nil, err
	}
	before := t.Clone()

	t.Name = u.Name
	t.Notes = u.Notes
	t.NotesHTML = u.NotesHTML
	t.MediaItems = u.MediaItems
	t.Links = u.Links
	if t.Links == nil {
		t.Links = []string{}
	}
	t.Touch(s.timestamp())

	if err := s.store.UpdateTechnique(t); err != nil {
		s.log.Error("update technique failed", err, map[string]interface{}{"id": id.String()})
		return nil, err
	}

	kept := make(map[string]bool, len(t.MediaItems))
	for _, m := range t.MediaItems {
		kept[m.FileName] = true
	}
	var dropped []models.MediaItem
	for _, m := range before.MediaItems {
		if !kept[m.FileName] {
			dropped = append(dropped, m)
		}
	}
	s.removeMedia(dropped)

	s.changed("updated", t.ID)
	return t, nil
}

// SetRichNotes stores html as the formatted notes of id and replaces the plain notes
// with its text content. An empty html clears both.
func (s *TechniqueService) SetRichNotes(id models.UUID, html string) (*models.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTechnique(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(html) == "" {
		t.NotesHTML = nil
		t.Notes = ""
	} else {
		plain, err := notes.PlainText(html)
		if err != nil {
			return nil, s.reject("set notes", errors.Validation("notes html: %v", err))
		}
		t.NotesHTML = &html
		t.Notes = plain
	}
	t.Touch(s.timestamp())

	if err := s.store.UpdateTechnique(t); err != nil {
		s.log.Error("set notes failed", err, map[string]interface{}{"id": id.String()})
		return nil, err
	}
	s.changed("updated", t.ID)
	return t, nil
}

// Delete removes id and its whole subtree, children before parents, in one
// transaction. Media files of every removed technique are deleted afterwards.
func (s *TechniqueService) Delete(id models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.store.GetTechnique(id)
	if err != nil {
		return err
	}

	var ids []models.UUID
	var media []models.MediaItem
	err = s.walk(root, func(t *models.Technique, post bool) {
		if post {
			ids = append(ids, t.ID)
			media = append(media, t.MediaItems...)
		}
	})
	if err != nil {
		return err
	}

	if err := s.store.DeleteTechniques(ids...); err != nil {
		s.log.Error("delete technique failed", err, map[string]interface{}{"id": id.String()})
		return err
	}
	s.removeMedia(media)
	s.changed("deleted", ids...)
	return nil
}

func (s *TechniqueService) removeMedia(items []models.MediaItem) {
	if s.media == nil {
		return
	}
	for _, m := range items {
		s.media.Delete(m.FileName)
	}
}

// MoveUp swaps id with the previous visible sibling in its own mode. It is a no-op
// for the first visible sibling.
func (s *TechniqueService) MoveUp(id models.UUID) error {
	return s.shift(id, -1)
}

// MoveDown swaps id with the next visible sibling in its own mode. It is a no-op
// for the last visible sibling.
func (s *TechniqueService) MoveDown(id models.UUID) error {
	return s.shift(id, 1)
}

func (s *TechniqueService) shift(id models.UUID, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTechnique(id)
	if err != nil {
		return err
	}
	group, err := s.siblings(t.ParentID, t.Mode)
	if err != nil {
		return err
	}

	view := t.Mode.View()
	var shown []int
	pos := -1
	for i, sib := range group {
		if sib.ID == t.ID {
			pos = len(shown)
			shown = append(shown, i)
		} else if !sib.IsHidden(view) {
			shown = append(shown, i)
		}
	}
	if pos < 0 {
		return errors.NotFound("technique %s missing from its sibling group", id)
	}
	next := pos + step
	if next < 0 || next >= len(shown) {
		return nil
	}

	// Equal sort orders would make the swap invisible; spread the group out first.
	orders := make([]int, len(group))
	dense := false
	for i, sib := range group {
		orders[i] = sib.SortOrder
		if i > 0 && orders[i] == orders[i-1] {
			dense = true
		}
	}
	if dense {
		for i := range orders {
			orders[i] = i
		}
	}
	a, b := shown[pos], shown[next]
	orders[a], orders[b] = orders[b], orders[a]

	var ps []db.Placement
	var ids []models.UUID
	for i, sib := range group {
		if orders[i] != sib.SortOrder {
			ps = append(ps, db.Placement{ID: sib.ID, ParentID: sib.ParentID, SortOrder: orders[i]})
			ids = append(ids, sib.ID)
		}
	}
	if err := s.store.UpdatePlacements(ps); err != nil {
		s.log.Error("reorder technique failed", err, map[string]interface{}{"id": id.String()})
		return err
	}
	s.changed("reordered", ids...)
	return nil
}

// Move places id at destinationIndex among the children of newParentID (nil for
// roots), counting hidden siblings. The index is clamped to the group. Both the old
// and the new sibling group are renumbered 0..n-1 in one transaction. Moving under
// the node itself, under one of its descendants, or into another mode is rejected.
func (s *TechniqueService) Move(id models.UUID, destinationIndex int, newParentID *models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTechnique(id)
	if err != nil {
		return err
	}
	if newParentID != nil {
		if err := s.checkParent(t, *newParentID); err != nil {
			return s.reject("move", err)
		}
	}

	oldGroup, err := s.siblings(t.ParentID, t.Mode)
	if err != nil {
		return err
	}
	oldGroup = without(oldGroup, id)

	sameParent := samePtr(t.ParentID, newParentID)
	newGroup := oldGroup
	if !sameParent {
		newGroup, err = s.siblings(newParentID, t.Mode)
		if err != nil {
			return err
		}
		newGroup = without(newGroup, id)
	}

	if destinationIndex < 0 {
		destinationIndex = 0
	}
	if destinationIndex > len(newGroup) {
		destinationIndex = len(newGroup)
	}
	arranged := make([]*models.Technique, 0, len(newGroup)+1)
	arranged = append(arranged, newGroup[:destinationIndex]...)
	arranged = append(arranged, t)
	arranged = append(arranged, newGroup[destinationIndex:]...)

	var ps []db.Placement
	var ids []models.UUID
	renumber := func(group []*models.Technique, parent *models.UUID) {
		for i, sib := range group {
			if sib.SortOrder == i && samePtr(sib.ParentID, parent) {
				continue
			}
			ps = append(ps, db.Placement{ID: sib.ID, ParentID: parent, SortOrder: i})
			ids = append(ids, sib.ID)
		}
	}
	renumber(arranged, newParentID)
	if !sameParent {
		renumber(oldGroup, t.ParentID)
	}

	if len(ps) == 0 {
		return nil
	}
	if err := s.store.UpdatePlacements(ps); err != nil {
		s.log.Error("move technique failed", err, map[string]interface{}{"id": id.String()})
		return err
	}
	s.changed("moved", ids...)
	return nil
}

// checkParent validates parentID as a new parent of t: it must exist in t's mode and
// must not be t or any node below t. The ancestor walk is bounded by the number of
// stored techniques.
func (s *TechniqueService) checkParent(t *models.Technique, parentID models.UUID) error {
	if parentID == t.ID {
		return errors.Validation("cannot move %s under itself", t.ID)
	}
	parent, err := s.store.GetTechnique(parentID)
	if err != nil {
		return err
	}
	if parent.Mode != t.Mode {
		return errors.Validation("cannot move %s from mode %s to mode %s", t.ID, t.Mode, parent.Mode)
	}

	limit, err := s.store.CountAll()
	if err != nil {
		return err
	}
	seen := make(map[models.UUID]bool)
	for cur := parent; ; {
		if cur.ID == t.ID {
			return errors.Validation("cannot move %s under its descendant %s", t.ID, parentID)
		}
		if cur.IsRoot() {
			return nil
		}
		seen[cur.ID] = true
		if seen[*cur.ParentID] || len(seen) > limit {
			return errors.Validation("ancestor chain of %s is cyclic", parentID)
		}
		next, err := s.store.GetTechnique(*cur.ParentID)
		if errors.Is(err, errors.ErrNotFound) {
			// a dangling parent ends the chain like a root
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
}

func without(ts []*models.Technique, id models.UUID) []*models.Technique {
	out := make([]*models.Technique, 0, len(ts))
	for _, t := range ts {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func samePtr(a, b *models.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Hide hides id in mode together with every descendant of the same mode. Hiding is
// one-way down the tree: Unhide only ever clears a single node.
func (s *TechniqueService) Hide(id models.UUID, mode models.Mode) error {
	if !mode.Valid() {
		return s.reject("hide", errors.Validation("cannot hide in mode %q", mode))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.store.GetTechnique(id)
	if err != nil {
		return err
	}
	var changes []db.FlagChange
	var ids []models.UUID
	err = s.walk(root, func(t *models.Technique, post bool) {
		if post || t.Mode != root.Mode || t.HiddenInModes.Get(mode) {
			return
		}
		hidden := t.HiddenInModes
		hidden.Set(mode, true)
		changes = append(changes, db.FlagChange{ID: t.ID, Hidden: hidden, Favorite: t.FavoriteInModes})
		ids = append(ids, t.ID)
	})
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	if err := s.store.UpdateFlags(changes); err != nil {
		s.log.Error("hide technique failed", err, map[string]interface{}{"id": id.String()})
		return err
	}
	s.changed("hidden", ids...)
	return nil
}

// Unhide clears the hidden flag of id in mode. Descendants keep their flags.
func (s *TechniqueService) Unhide(id models.UUID, mode models.Mode) error {
	if !mode.Valid() {
		return s.reject("unhide", errors.Validation("cannot unhide in mode %q", mode))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setFlag(id, "unhidden", func(t *models.Technique) {
		t.HiddenInModes.Set(mode, false)
	})
}

// SetFavorite writes the favorite flag of id in mode.
func (s *TechniqueService) SetFavorite(id models.UUID, value bool, mode models.Mode) error {
	if !mode.Valid() {
		return s.reject("favorite", errors.Validation("cannot favorite in mode %q", mode))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setFlag(id, "favorited", func(t *models.Technique) {
		t.FavoriteInModes.Set(mode, value)
	})
}

func (s *TechniqueService) setFlag(id models.UUID, op string, apply func(t *models.Technique)) error {
	t, err := s.store.GetTechnique(id)
	if err != nil {
		return err
	}
	before := db.FlagChange{ID: t.ID, Hidden: t.HiddenInModes, Favorite: t.FavoriteInModes}
	apply(t)
	after := db.FlagChange{ID: t.ID, Hidden: t.HiddenInModes, Favorite: t.FavoriteInModes}
	if before == after {
		return nil
	}
	if err := s.store.UpdateFlags([]db.FlagChange{after}); err != nil {
		s.log.Error("update flags failed", err, map[string]interface{}{"id": id.String()})
		return err
	}
	s.changed(op, t.ID)
	return nil
}
