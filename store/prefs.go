package store

import (
	"context"
	"fmt"
	"strings"
)

// Prefs is the per-subreddit and per-user watch/skip preference store.
// Names are stored lowercase; a row whose watch flag is false excludes the
// named subreddit or user from that side of notification.
type Prefs struct {
	db DBTX
}

// NewPrefs creates a preference store on the given handle.
func NewPrefs(db DBTX) *Prefs {
	return &Prefs{db: db}
}

// SubredditExists reports whether a preference row exists for the subreddit.
func (p *Prefs) SubredditExists(ctx context.Context, name string) (bool, error) {
	return p.exists(ctx, "subreddits", strings.ToLower(name))
}

// UserExists reports whether a preference row exists for the user.
func (p *Prefs) UserExists(ctx context.Context, name string) (bool, error) {
	return p.exists(ctx, "users", strings.ToLower(name))
}

// UpsertSubreddit inserts or updates the subreddit's watch flags. Nil flags
// are left untouched on update and take the schema default on insert.
func (p *Prefs) UpsertSubreddit(ctx context.Context, name string, watchSource, watchLink *bool) error {
	return p.upsert(ctx, "subreddits", strings.ToLower(name), watchSource, watchLink)
}

// UpsertUser inserts or updates the user's watch flags with the same partial
// semantics as UpsertSubreddit.
func (p *Prefs) UpsertUser(ctx context.Context, name string, watchSource, watchLink *bool) error {
	return p.upsert(ctx, "users", strings.ToLower(name), watchSource, watchLink)
}

// UserSkipsSource reports whether the author's sources are excluded.
func (p *Prefs) UserSkipsSource(ctx context.Context, author string) (bool, error) {
	return p.skips(ctx, "users", "watch_source", author)
}

// SubredditSkipsSource reports whether the subreddit's sources are excluded.
func (p *Prefs) SubredditSkipsSource(ctx context.Context, subreddit string) (bool, error) {
	return p.skips(ctx, "subreddits", "watch_source", subreddit)
}

// UserSkipsLink reports whether links authored by the user are excluded.
func (p *Prefs) UserSkipsLink(ctx context.Context, author string) (bool, error) {
	return p.skips(ctx, "users", "watch_link", author)
}

// SubredditSkipsLink reports whether links from the subreddit are excluded.
func (p *Prefs) SubredditSkipsLink(ctx context.Context, subreddit string) (bool, error) {
	return p.skips(ctx, "subreddits", "watch_link", subreddit)
}

func (p *Prefs) exists(ctx context.Context, table, name string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE name = ? LIMIT 1", name).Scan(&one)
	return rowFound(err)
}

func (p *Prefs) skips(ctx context.Context, table, flag, name string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE name = ? AND "+flag+" = ? LIMIT 1",
		strings.ToLower(name), false).Scan(&one)
	return rowFound(err)
}

func (p *Prefs) upsert(ctx context.Context, table, name string, watchSource, watchLink *bool) error {
	exists, err := p.exists(ctx, table, name)
	if err != nil {
		return err
	}

	if !exists {
		ws, wl := false, false
		if watchSource != nil {
			ws = *watchSource
		}
		if watchLink != nil {
			wl = *watchLink
		}
		_, err := p.db.ExecContext(ctx,
			"INSERT INTO "+table+" (name, watch_source, watch_link) VALUES (?, ?, ?)",
			name, ws, wl)
		if err != nil {
			return fmt.Errorf("insert %s %q: %w", table, name, err)
		}
		return nil
	}

	if watchSource != nil {
		if _, err := p.db.ExecContext(ctx,
			"UPDATE "+table+" SET watch_source = ? WHERE name = ?", *watchSource, name); err != nil {
			return fmt.Errorf("update %s %q: %w", table, name, err)
		}
	}
	if watchLink != nil {
		if _, err := p.db.ExecContext(ctx,
			"UPDATE "+table+" SET watch_link = ? WHERE name = ?", *watchLink, name); err != nil {
			return fmt.Errorf("update %s %q: %w", table, name, err)
		}
	}
	return nil
}
