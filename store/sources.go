package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dumbledong/TotesMessenger/pkg/entity"
)

// Sources persists notification sources keyed by fullname.
type Sources struct {
	db DBTX
}

// NewSources creates a source repository on the given handle.
func NewSources(db DBTX) *Sources {
	return &Sources{db: db}
}

// Exists reports whether a row exists for the source id.
func (r *Sources) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM sources WHERE id = ? LIMIT 1", id).Scan(&one)
	return rowFound(err)
}

// Load hydrates src from its stored row. When a row exists all fields are
// overwritten from the store, IsNew is cleared, and no external fetch is
// needed; the boolean reports whether a row was found.
func (r *Sources) Load(ctx context.Context, src *entity.Source) (bool, error) {
	var reply sql.NullString
	var skip bool

	err := r.db.QueryRowContext(ctx, `
		SELECT id, reply, subreddit, author, title, skip FROM sources
		WHERE id = ? LIMIT 1
	`, src.ID).Scan(&src.ID, &reply, &src.Subreddit, &src.Author, &src.Title, &skip)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load source %s: %w", src.ID, err)
	}

	src.Reply = reply.String
	src.Skip = entity.SkipStateFromBool(skip)
	src.IsNew = false
	return true, nil
}

// Save upserts the source. The creation timestamp is fixed at first insert
// and never touched by updates, so saving an unchanged source is a no-op.
func (r *Sources) Save(ctx context.Context, src *entity.Source) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (id, reply, subreddit, author, title, skip)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			reply     = excluded.reply,
			subreddit = excluded.subreddit,
			author    = excluded.author,
			title     = excluded.title,
			skip      = excluded.skip
	`, src.ID, nullable(src.Reply), src.Subreddit, src.Author, src.Title, src.Skip.Bool())
	if err != nil {
		return fmt.Errorf("save source %s: %w", src.ID, err)
	}
	return nil
}

// nullable maps an empty string to NULL so the sources.reply UNIQUE
// constraint only bites on actual reply ids.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
