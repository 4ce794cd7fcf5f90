package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/campwatch/internal/watcher"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides database access for watchers.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

const watcherColumns = `
	id, campground_id, COALESCE(site_type, ''), tent_only, no_rv,
	COALESCE(loop_name, ''), check_hour, check_minute, COALESCE(email, ''),
	created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanWatcher(row scanner) (*watcher.Watcher, error) {
	var w watcher.Watcher
	if err := row.Scan(
		&w.ID,
		&w.CampgroundID,
		&w.SiteType,
		&w.TentOnly,
		&w.NoRV,
		&w.Loop,
		&w.CheckTime.Hour,
		&w.CheckTime.Minute,
		&w.Email,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts w and returns the stored record with its id and timestamps.
func (r *Repository) Create(ctx context.Context, w *watcher.Watcher) (*watcher.Watcher, error) {
	q := `
		INSERT INTO watchers (campground_id, site_type, tent_only, no_rv, loop_name, check_hour, check_minute, email)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		RETURNING` + watcherColumns

	created, err := scanWatcher(r.q.QueryRow(ctx, q,
		w.CampgroundID, w.SiteType, w.TentOnly, w.NoRV, w.Loop,
		w.CheckTime.Hour, w.CheckTime.Minute, w.Email,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting watcher for campground %s: %w", w.CampgroundID, err)
	}

	return created, nil
}

// Get retrieves a watcher by id.
// Returns nil, nil when the watcher is not found.
func (r *Repository) Get(ctx context.Context, id int64) (*watcher.Watcher, error) {
	q := `SELECT` + watcherColumns + `FROM watchers WHERE id = $1`

	w, err := scanWatcher(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying watcher %d: %w", id, err)
	}

	return w, nil
}

// List returns every watcher ordered by id.
func (r *Repository) List(ctx context.Context) ([]*watcher.Watcher, error) {
	q := `SELECT` + watcherColumns + `FROM watchers ORDER BY id`

	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying watchers: %w", err)
	}
	defer rows.Close()

	var results []*watcher.Watcher
	for rows.Next() {
		w, err := scanWatcher(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning watcher row: %w", err)
		}
		results = append(results, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating watcher rows: %w", err)
	}

	return results, nil
}

// Update overwrites the mutable fields of the watcher with w.ID.
// Returns nil, nil when the watcher is not found.
func (r *Repository) Update(ctx context.Context, w *watcher.Watcher) (*watcher.Watcher, error) {
	q := `
		UPDATE watchers
		SET campground_id = $2,
		    site_type     = NULLIF($3, ''),
		    tent_only     = $4,
		    no_rv         = $5,
		    loop_name     = NULLIF($6, ''),
		    check_hour    = $7,
		    check_minute  = $8,
		    email         = NULLIF($9, ''),
		    updated_at    = NOW()
		WHERE id = $1
		RETURNING` + watcherColumns

	updated, err := scanWatcher(r.q.QueryRow(ctx, q,
		w.ID, w.CampgroundID, w.SiteType, w.TentOnly, w.NoRV, w.Loop,
		w.CheckTime.Hour, w.CheckTime.Minute, w.Email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating watcher %d: %w", w.ID, err)
	}

	return updated, nil
}

// Delete removes the watcher with id and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM watchers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting watcher %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
