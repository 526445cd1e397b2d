// Package entity contains the core domain types for the cross-posting notifier.
package entity

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Sentinel values stored when the upstream data is gone or inapplicable.
const (
	DeletedAuthor = "[deleted]"
	CommentTitle  = "[comment]"
)

// SkipState is the memoized outcome of skip evaluation for an entity instance.
// A skipped result latches: once an entity is skipped it stays skipped for the
// lifetime of the instance and of its stored row.
type SkipState int

const (
	SkipUnknown SkipState = iota // not evaluated yet
	SkipAllowed                  // evaluated, eligible for notification
	SkipSkipped                  // evaluated, excluded from notification
)

// Skipped reports whether the entity has been ruled out of notification.
func (s SkipState) Skipped() bool { return s == SkipSkipped }

// Bool flattens the state for persistence. Only a latched skip survives a
// round trip; Allowed rows come back as Unknown and are re-evaluated.
func (s SkipState) Bool() bool { return s == SkipSkipped }

// SkipStateFromBool maps a stored skip flag back to a state.
func SkipStateFromBool(skip bool) SkipState {
	if skip {
		return SkipSkipped
	}
	return SkipUnknown
}

// Source is a thread or comment that has been linked to from somewhere else
// on reddit and may receive a notification reply.
type Source struct {
	ID        string // fullname, t1_ (comment) or t3_ (post)
	Reply     string // fullname of our notification reply, empty until posted
	Subreddit string
	Author    string
	Title     string
	Skip      SkipState
	IsNew     bool
}

// IsComment reports whether the source is a comment rather than a post.
func (s *Source) IsComment() bool { return strings.HasPrefix(s.ID, "t1_") }

// IsPost reports whether the source is a post.
func (s *Source) IsPost() bool { return strings.HasPrefix(s.ID, "t3_") }

// Link is a thread whose content references a Source. It carries the Source's
// id rather than a pointer; both rows are persisted independently.
type Link struct {
	ID        string // submission fullname
	Source    string // Source.ID
	Subreddit string
	Author    string
	Title     string
	Permalink string
	Skip      SkipState
	IsNew     bool
}

// NotThreadError indicates a URL that does not point at a reddit comment or
// post, and therefore cannot be a notification source.
type NotThreadError struct {
	Path string
}

func (e *NotThreadError) Error() string {
	return fmt.Sprintf("not a reddit comment or post: %s", e.Path)
}

// IsNotThread checks if an error is a NotThreadError.
func IsNotThread(err error) bool {
	var nt *NotThreadError
	return errors.As(err, &nt)
}

// Comments have path /r/sub/comments/xxx/title/xxx, posts /r/sub/comments/xxx/title.
var pathRegexp = regexp.MustCompile(`^/r/([^/]+)/comments/([a-z0-9]{6,8})(?:/[^/]+/([a-z0-9]{6,8}))?`)

// ParseSourceURL resolves a reddit URL into the fullname and subreddit of the
// thread or comment it points at. The whole URL is lowercased first, so
// resolution is deterministic regardless of how the URL was typed.
func ParseSourceURL(raw string) (id, subreddit string, err error) {
	u, err := url.Parse(strings.ToLower(raw))
	if err != nil {
		return "", "", &NotThreadError{Path: raw}
	}

	m := pathRegexp.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", &NotThreadError{Path: u.Path}
	}

	if m[3] != "" {
		return "t1_" + m[3], m[1], nil
	}
	return "t3_" + m[2], m[1], nil
}
