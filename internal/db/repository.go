// Package db provides CRUD repository operations for techniquebook data models.
package db

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/models"
	"github.com/kimhsiao/techniquebook/internal/uuid"
)

// Repository provides CRUD operations for techniques and their media items.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used read queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// If another goroutine stored it first, close our duplicate
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// withTx runs fn in one transaction. Any failure rolls back and surfaces as a
// StorageError unless fn already returned an AppError.
func (r *Repository) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Storage(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return err
		}
		return errors.Storage(op, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Storage(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// =====================================================
// Row mapping
// =====================================================

const techniqueColumns = `id, name, notes, notes_html, parent_id, mode, sort_order,
	created_at, modified_at, links, hidden_gi, hidden_nogi, favorite_gi, favorite_nogi`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func scanTechnique(s rowScanner) (*models.Technique, error) {
	var t models.Technique
	var notesHTML, parentID sql.NullString
	var createdAt, modifiedAt int64
	var links string
	err := s.Scan(
		&t.ID, &t.Name, &t.Notes, &notesHTML, &parentID, &t.Mode, &t.SortOrder,
		&createdAt, &modifiedAt, &links,
		&t.HiddenInModes.Gi, &t.HiddenInModes.NoGi,
		&t.FavoriteInModes.Gi, &t.FavoriteInModes.NoGi,
	)
	if err != nil {
		return nil, err
	}
	if notesHTML.Valid {
		html := notesHTML.String
		t.NotesHTML = &html
	}
	if parentID.Valid {
		t.ParentID = models.UUID(parentID.String).Ptr()
	}
	t.CreatedDate = fromMillis(createdAt)
	t.ModifiedDate = fromMillis(modifiedAt)
	if err := json.Unmarshal([]byte(links), &t.Links); err != nil {
		return nil, fmt.Errorf("decode links of %s: %w", t.ID, err)
	}
	if t.Links == nil {
		t.Links = []string{}
	}
	return &t, nil
}

func techniqueArgs(t *models.Technique) ([]interface{}, error) {
	links := t.Links
	if links == nil {
		links = []string{}
	}
	encoded, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	var notesHTML, parentID interface{}
	if t.NotesHTML != nil {
		notesHTML = *t.NotesHTML
	}
	if t.ParentID != nil {
		parentID = string(*t.ParentID)
	}
	return []interface{}{
		string(t.ID), t.Name, t.Notes, notesHTML, parentID, string(t.Mode), t.SortOrder,
		toMillis(t.CreatedDate), toMillis(t.ModifiedDate), string(encoded),
		t.HiddenInModes.Gi, t.HiddenInModes.NoGi,
		t.FavoriteInModes.Gi, t.FavoriteInModes.NoGi,
	}, nil
}

// queryTechniques runs a SELECT of techniqueColumns and attaches media items.
// Rows are fully drained before media is loaded: the pool holds one connection.
func queryTechniques(q querier, query string, args ...interface{}) ([]*models.Technique, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}

	var ts []*models.Technique
	for rows.Next() {
		t, err := scanTechnique(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := attachMedia(q, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// attachMedia loads media items for ts in one query.
func attachMedia(q querier, ts []*models.Technique) error {
	if len(ts) == 0 {
		return nil
	}
	byID := make(map[models.UUID]*models.Technique, len(ts))
	placeholders := make([]string, 0, len(ts))
	args := make([]interface{}, 0, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
		placeholders = append(placeholders, "?")
		args = append(args, string(t.ID))
	}

	query := `SELECT technique_id, id, file_name, type, thumbnail, added_at
	FROM media_items WHERE technique_id IN (` + strings.Join(placeholders, ",") + `)
	ORDER BY technique_id, position`
	rows, err := q.Query(query, args...)
	if err != nil {
		return fmt.Errorf("load media items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner models.UUID
		var item models.MediaItem
		var addedAt int64
		if err := rows.Scan(&owner, &item.ID, &item.FileName, &item.Type, &item.ThumbnailData, &addedAt); err != nil {
			return fmt.Errorf("scan media item: %w", err)
		}
		item.AddedDate = fromMillis(addedAt)
		if len(item.ThumbnailData) == 0 {
			item.ThumbnailData = nil
		}
		if t := byID[owner]; t != nil {
			t.MediaItems = append(t.MediaItems, item)
		}
	}
	return rows.Err()
}

func insertTechnique(q querier, t *models.Technique) error {
	args, err := techniqueArgs(t)
	if err != nil {
		return err
	}
	query := `INSERT INTO techniques (` + techniqueColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("insert technique %s: %w", t.ID, err)
	}
	return insertMedia(q, t)
}

func insertMedia(q querier, t *models.Technique) error {
	query := `INSERT INTO media_items (id, technique_id, position, file_name, type, thumbnail, added_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i := range t.MediaItems {
		item := &t.MediaItems[i]
		if item.ID == "" {
			item.ID = uuid.NewID()
		}
		var thumbnail interface{}
		if len(item.ThumbnailData) > 0 {
			thumbnail = item.ThumbnailData
		}
		_, err := q.Exec(query, string(item.ID), string(t.ID), i, item.FileName, string(item.Type),
			thumbnail, toMillis(item.AddedDate))
		if err != nil {
			return fmt.Errorf("insert media item %s: %w", item.ID, err)
		}
	}
	return nil
}

// =====================================================
// Technique Operations
// =====================================================

// GetTechnique retrieves a technique by ID.
func (r *Repository) GetTechnique(id models.UUID) (*models.Technique, error) {
	stmt, err := r.PrepareStmt(`SELECT ` + techniqueColumns + ` FROM techniques WHERE id = ?`)
	if err != nil {
		return nil, errors.Storage("get technique", err)
	}

	t, err := scanTechnique(stmt.QueryRow(string(id)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("technique %s not found", id)
	}
	if err != nil {
		return nil, errors.Storage("get technique", err)
	}
	if err := attachMedia(r.db, []*models.Technique{t}); err != nil {
		return nil, errors.Storage("get technique", err)
	}
	return t, nil
}

// CreateTechnique inserts a technique and its media items. An empty ID is assigned.
func (r *Repository) CreateTechnique(t *models.Technique) error {
	if t.ID == "" {
		t.ID = uuid.NewID()
	}
	return r.withTx("create technique", func(tx *sql.Tx) error {
		return insertTechnique(tx, t)
	})
}

// CreateTechniques inserts every technique in one transaction.
func (r *Repository) CreateTechniques(ts []*models.Technique) error {
	return r.withTx("create techniques", func(tx *sql.Tx) error {
		for _, t := range ts {
			if t.ID == "" {
				t.ID = uuid.NewID()
			}
			if err := insertTechnique(tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTechnique rewrites an existing technique and replaces its media items.
func (r *Repository) UpdateTechnique(t *models.Technique) error {
	args, err := techniqueArgs(t)
	if err != nil {
		return errors.Storage("update technique", err)
	}
	// id moves from the front to the WHERE clause
	args = append(args[1:], args[0])

	return r.withTx("update technique", func(tx *sql.Tx) error {
		query := `
		UPDATE techniques
		SET name = ?, notes = ?, notes_html = ?, parent_id = ?, mode = ?, sort_order = ?,
			created_at = ?, modified_at = ?, links = ?,
			hidden_gi = ?, hidden_nogi = ?, favorite_gi = ?, favorite_nogi = ?
		WHERE id = ?
		`
		result, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errors.NotFound("technique %s not found", t.ID)
		}

		if _, err := tx.Exec(`DELETE FROM media_items WHERE technique_id = ?`, string(t.ID)); err != nil {
			return err
		}
		return insertMedia(tx, t)
	})
}

// DeleteTechniques deletes techniques in the given order within one transaction.
// Media rows cascade. A missing id aborts the whole delete.
func (r *Repository) DeleteTechniques(ids ...models.UUID) error {
	return r.withTx("delete techniques", func(tx *sql.Tx) error {
		for _, id := range ids {
			result, err := tx.Exec(`DELETE FROM techniques WHERE id = ?`, string(id))
			if err != nil {
				return err
			}
			if n, err := result.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return errors.NotFound("technique %s not found", id)
			}
		}
		return nil
	})
}

// UpdatePlacements applies parent and sort order changes in one transaction.
func (r *Repository) UpdatePlacements(ps []Placement) error {
	return r.withTx("update placements", func(tx *sql.Tx) error {
		for _, p := range ps {
			var parentID interface{}
			if p.ParentID != nil {
				parentID = string(*p.ParentID)
			}
			result, err := tx.Exec(`UPDATE techniques SET parent_id = ?, sort_order = ? WHERE id = ?`,
				parentID, p.SortOrder, string(p.ID))
			if err != nil {
				return err
			}
			if n, err := result.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return errors.NotFound("technique %s not found", p.ID)
			}
		}
		return nil
	})
}

// UpdateFlags applies hidden and favorite flag changes in one transaction.
func (r *Repository) UpdateFlags(fs []FlagChange) error {
	return r.withTx("update flags", func(tx *sql.Tx) error {
		for _, f := range fs {
			result, err := tx.Exec(`
			UPDATE techniques
			SET hidden_gi = ?, hidden_nogi = ?, favorite_gi = ?, favorite_nogi = ?
			WHERE id = ?`,
				f.Hidden.Gi, f.Hidden.NoGi, f.Favorite.Gi, f.Favorite.NoGi, string(f.ID))
			if err != nil {
				return err
			}
			if n, err := result.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return errors.NotFound("technique %s not found", f.ID)
			}
		}
		return nil
	})
}

// CountTechniques counts techniques stored in a mode.
func (r *Repository) CountTechniques(mode models.Mode) (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM techniques WHERE mode = ?`, string(mode)).Scan(&n); err != nil {
		return 0, errors.Storage("count techniques", err)
	}
	return n, nil
}

// CountAll counts every stored technique.
func (r *Repository) CountAll() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM techniques`).Scan(&n); err != nil {
		return 0, errors.Storage("count techniques", err)
	}
	return n, nil
}

// ListTechniques returns every technique ordered by name.
func (r *Repository) ListTechniques() ([]*models.Technique, error) {
	ts, err := queryTechniques(r.db, `SELECT `+techniqueColumns+` FROM techniques ORDER BY name, id`)
	if err != nil {
		return nil, errors.Storage("list techniques", err)
	}
	return ts, nil
}

// ListByMode returns a mode's techniques ordered by name.
func (r *Repository) ListByMode(mode models.Mode) ([]*models.Technique, error) {
	ts, err := queryTechniques(r.db, `SELECT `+techniqueColumns+`
	FROM techniques WHERE mode = ? ORDER BY name, id`, string(mode))
	if err != nil {
		return nil, errors.Storage("list techniques by mode", err)
	}
	return ts, nil
}

// ListRoots returns a mode's root techniques in sibling order.
func (r *Repository) ListRoots(mode models.Mode) ([]*models.Technique, error) {
	ts, err := queryTechniques(r.db, `SELECT `+techniqueColumns+`
	FROM techniques WHERE mode = ? AND parent_id IS NULL
	ORDER BY sort_order, name, id`, string(mode))
	if err != nil {
		return nil, errors.Storage("list root techniques", err)
	}
	return ts, nil
}

// ListChildren returns techniques whose parent_id is parentID, in sibling order.
func (r *Repository) ListChildren(parentID models.UUID) ([]*models.Technique, error) {
	ts, err := queryTechniques(r.db, `SELECT `+techniqueColumns+`
	FROM techniques WHERE parent_id = ?
	ORDER BY sort_order, name, id`, string(parentID))
	if err != nil {
		return nil, errors.Storage("list child techniques", err)
	}
	return ts, nil
}
