package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dumbledong/TotesMessenger/pkg/entity"
)

// Links persists linking threads keyed by submission fullname.
type Links struct {
	db DBTX
}

// NewLinks creates a link repository on the given handle.
func NewLinks(db DBTX) *Links {
	return &Links{db: db}
}

// LinkRef is one row of the notification-gathering query, in render order.
type LinkRef struct {
	Subreddit string
	Title     string
	Permalink string
}

// Exists reports whether a row exists for the link id.
func (r *Links) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM links WHERE id = ? LIMIT 1", id).Scan(&one)
	return rowFound(err)
}

// Load hydrates link from its stored row, overwriting the freshly
// constructed fields; the boolean reports whether a row was found.
func (r *Links) Load(ctx context.Context, link *entity.Link) (bool, error) {
	var skip bool

	err := r.db.QueryRowContext(ctx, `
		SELECT id, source, permalink, subreddit, skip, author, title FROM links
		WHERE id = ? LIMIT 1
	`, link.ID).Scan(&link.ID, &link.Source, &link.Permalink, &link.Subreddit,
		&skip, &link.Author, &link.Title)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load link %s: %w", link.ID, err)
	}

	link.Skip = entity.SkipStateFromBool(skip)
	link.IsNew = false
	return true, nil
}

// Save upserts the link. As with sources, the creation timestamp is fixed at
// first insert.
func (r *Links) Save(ctx context.Context, link *entity.Link) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO links (id, source, subreddit, author, title, permalink, skip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source    = excluded.source,
			subreddit = excluded.subreddit,
			author    = excluded.author,
			title     = excluded.title,
			permalink = excluded.permalink,
			skip      = excluded.skip
	`, link.ID, link.Source, link.Subreddit, link.Author, link.Title,
		link.Permalink, link.Skip.Bool())
	if err != nil {
		return fmt.Errorf("save link %s: %w", link.ID, err)
	}
	return nil
}

// ForSource returns the unskipped links pointing at the source, ordered by
// subreddit then title for deterministic, human-friendly grouping. The
// idx_links_source index backs this query.
func (r *Links) ForSource(ctx context.Context, sourceID string) ([]LinkRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subreddit, title, permalink FROM links
		WHERE source = ? AND skip = ?
		ORDER BY subreddit ASC, title ASC
	`, sourceID, false)
	if err != nil {
		return nil, fmt.Errorf("query links for %s: %w", sourceID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var refs []LinkRef
	for rows.Next() {
		var ref LinkRef
		if err := rows.Scan(&ref.Subreddit, &ref.Title, &ref.Permalink); err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links for %s: %w", sourceID, err)
	}
	return refs, nil
}
