// Package db provides unit tests for CRUD repository operations.
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/models"
)

// setupTestRepo creates a migrated in-memory database and its repository.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	repo := NewRepository(db.DB)
	t.Cleanup(func() {
		repo.Close()
		db.Close()
	})
	return repo
}

func newTechnique(name string, mode models.Mode, parent *models.UUID, order int) *models.Technique {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Technique{
		Name:         name,
		Mode:         mode,
		ParentID:     parent,
		SortOrder:    order,
		CreatedDate:  now,
		ModifiedDate: now,
		Links:        []string{},
	}
}

func TestCreateTechnique(t *testing.T) {
	repo := setupTestRepo(t)

	html := "<p>keep elbows tight</p>"
	tech := newTechnique("Closed Guard", models.ModeGi, nil, 0)
	tech.Notes = "keep elbows tight"
	tech.NotesHTML = &html
	tech.Links = []string{"https://example.com/guard"}
	tech.HiddenInModes.Gi = true
	tech.FavoriteInModes.Gi = true
	tech.MediaItems = []models.MediaItem{
		{FileName: "a.jpg", Type: models.MediaTypeImage, ThumbnailData: []byte{1, 2, 3}, AddedDate: tech.CreatedDate},
		{FileName: "b.mp4", Type: models.MediaTypeVideo, AddedDate: tech.CreatedDate},
	}

	require.NoError(t, repo.CreateTechnique(tech))
	require.NotEmpty(t, tech.ID)
	require.NotEmpty(t, tech.MediaItems[0].ID)

	got, err := repo.GetTechnique(tech.ID)
	require.NoError(t, err)
	assert.Equal(t, tech, got)
}

func TestGetTechnique_notFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetTechnique("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateTechnique(t *testing.T) {
	repo := setupTestRepo(t)

	tech := newTechnique("Armbar", models.ModeNoGi, nil, 0)
	tech.MediaItems = []models.MediaItem{{FileName: "a.jpg", Type: models.MediaTypeImage}}
	require.NoError(t, repo.CreateTechnique(tech))

	tech.Name = "Armbar from Mount"
	tech.Notes = "control the wrist"
	tech.ModifiedDate = tech.ModifiedDate.Add(time.Hour)
	tech.MediaItems = []models.MediaItem{
		{FileName: "c.jpg", Type: models.MediaTypeImage},
		{FileName: "a.jpg", Type: models.MediaTypeImage},
	}
	require.NoError(t, repo.UpdateTechnique(tech))

	got, err := repo.GetTechnique(tech.ID)
	require.NoError(t, err)
	assert.Equal(t, "Armbar from Mount", got.Name)
	assert.Equal(t, "control the wrist", got.Notes)
	assert.True(t, got.ModifiedDate.Equal(tech.ModifiedDate))
	require.Len(t, got.MediaItems, 2)
	assert.Equal(t, "c.jpg", got.MediaItems[0].FileName, "media order is preserved")
	assert.Equal(t, "a.jpg", got.MediaItems[1].FileName)

	missing := newTechnique("ghost", models.ModeGi, nil, 0)
	missing.ID = "ghost"
	err = repo.UpdateTechnique(missing)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeleteTechniques_cascadesMedia(t *testing.T) {
	repo := setupTestRepo(t)

	tech := newTechnique("Kimura", models.ModeGi, nil, 0)
	tech.MediaItems = []models.MediaItem{{FileName: "k.jpg", Type: models.MediaTypeImage}}
	require.NoError(t, repo.CreateTechnique(tech))

	require.NoError(t, repo.DeleteTechniques(tech.ID))

	var media int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM media_items`).Scan(&media))
	assert.Equal(t, 0, media)

	_, err := repo.GetTechnique(tech.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeleteTechniques_missingRollsBack(t *testing.T) {
	repo := setupTestRepo(t)

	a := newTechnique("A", models.ModeGi, nil, 0)
	require.NoError(t, repo.CreateTechnique(a))

	err := repo.DeleteTechniques(a.ID, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = repo.GetTechnique(a.ID)
	assert.NoError(t, err, "first delete must be rolled back")
}

func TestCreateTechniques_atomic(t *testing.T) {
	repo := setupTestRepo(t)

	a := newTechnique("A", models.ModeGi, nil, 0)
	a.ID = "dup"
	b := newTechnique("B", models.ModeGi, nil, 1)
	b.ID = "dup"

	err := repo.CreateTechniques([]*models.Technique{a, b})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorage))

	n, err := repo.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdatePlacements(t *testing.T) {
	repo := setupTestRepo(t)

	parent := newTechnique("Mount", models.ModeGi, nil, 0)
	a := newTechnique("A", models.ModeGi, nil, 1)
	b := newTechnique("B", models.ModeGi, nil, 2)
	require.NoError(t, repo.CreateTechniques([]*models.Technique{parent, a, b}))

	require.NoError(t, repo.UpdatePlacements([]Placement{
		{ID: b.ID, ParentID: parent.ID.Ptr(), SortOrder: 0},
		{ID: a.ID, ParentID: parent.ID.Ptr(), SortOrder: 1},
	}))

	children, err := repo.ListChildren(parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, b.ID, children[0].ID)
	assert.Equal(t, a.ID, children[1].ID)

	roots, err := repo.ListRoots(models.ModeGi)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	err = repo.UpdatePlacements([]Placement{
		{ID: a.ID, SortOrder: 5},
		{ID: "missing"},
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	got, err := repo.GetTechnique(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SortOrder, "failed batch leaves prior state")
}

func TestUpdateFlags(t *testing.T) {
	repo := setupTestRepo(t)

	a := newTechnique("A", models.ModeNoGi, nil, 0)
	require.NoError(t, repo.CreateTechnique(a))

	require.NoError(t, repo.UpdateFlags([]FlagChange{{
		ID:       a.ID,
		Hidden:   models.ModeFlags{NoGi: true},
		Favorite: models.ModeFlags{Gi: true},
	}}))

	got, err := repo.GetTechnique(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFlags{NoGi: true}, got.HiddenInModes)
	assert.Equal(t, models.ModeFlags{Gi: true}, got.FavoriteInModes)
}

func TestListing_order(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.CreateTechniques([]*models.Technique{
		newTechnique("Zeta", models.ModeGi, nil, 0),
		newTechnique("Alpha", models.ModeGi, nil, 1),
		newTechnique("Beta", models.ModeGi, nil, 1),
		newTechnique("Gamma", models.ModeNoGi, nil, 0),
	}))

	byName, err := repo.ListByMode(models.ModeGi)
	require.NoError(t, err)
	require.Len(t, byName, 3)
	assert.Equal(t, []string{"Alpha", "Beta", "Zeta"}, names(byName))

	roots, err := repo.ListRoots(models.ModeGi)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta", "Alpha", "Beta"}, names(roots), "sort order, then name")

	all, err := repo.ListTechniques()
	require.NoError(t, err)
	assert.Len(t, all, 4)

	gi, err := repo.CountTechniques(models.ModeGi)
	require.NoError(t, err)
	assert.Equal(t, 3, gi)
	nogi, err := repo.CountTechniques(models.ModeNoGi)
	require.NoError(t, err)
	assert.Equal(t, 1, nogi)
}

func names(ts []*models.Technique) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}
