// Package reddit implements the narrow slice of the reddit API the notifier
// consumes: the reddit.com-domain feed, thing lookup by fullname, and
// posting or editing comments.
package reddit

import (
	"context"
	"errors"
	"fmt"
)

// Submission is the subset of a reddit thing the notifier reads. Comments
// carry an empty Title.
type Submission struct {
	Name       string  // fullname, t1_ or t3_ prefixed
	Subreddit  string
	Author     string  // "[deleted]" when the account is gone
	Title      string
	Permalink  string
	URL        string
	Archived   bool
	CreatedUTC float64
}

// API is the capability set the core consumes. The concrete Client satisfies
// it; tests substitute fakes.
type API interface {
	// NewSubmissions fetches up to limit newest submissions whose URL points
	// back at reddit.
	NewSubmissions(ctx context.Context, limit int) ([]*Submission, error)
	// Submission fetches a comment or post by fullname.
	Submission(ctx context.Context, fullname string) (*Submission, error)
	// Reply posts a new comment under the parent and returns its fullname.
	Reply(ctx context.Context, parentFullname, body string) (string, error)
	// EditComment replaces the body of an existing comment.
	EditComment(ctx context.Context, commentFullname, body string) error
}

// Authenticator is implemented by clients that need a login handshake before
// the API can be used.
type Authenticator interface {
	Login(ctx context.Context) error
}

// NotFoundError indicates a fullname that no longer resolves (deleted or
// removed). It is an expected, recoverable condition.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find submission %s", e.ID)
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// APIError indicates a non-2xx response from reddit.
type APIError struct {
	URL        string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit API HTTP %d: %s", e.StatusCode, e.URL)
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var api *APIError
	return errors.As(err, &api)
}
