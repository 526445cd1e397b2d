package poll

import (
	"context"
	"fmt"
	"strings"

	"github.com/dumbledong/TotesMessenger/pkg/entity"
	"github.com/dumbledong/TotesMessenger/reddit"
)

// PrefStore is the slice of the preference store the evaluator queries.
type PrefStore interface {
	UserSkipsSource(ctx context.Context, author string) (bool, error)
	SubredditSkipsSource(ctx context.Context, subreddit string) (bool, error)
	UserSkipsLink(ctx context.Context, author string) (bool, error)
	SubredditSkipsLink(ctx context.Context, subreddit string) (bool, error)
}

// Fetcher fetches a thing by fullname, used for the archived check.
type Fetcher interface {
	Submission(ctx context.Context, fullname string) (*reddit.Submission, error)
}

// Evaluator decides whether sources and links are excluded from notification.
// Results are memoized on the entity; a skipped result latches for the
// instance and, once saved, for the stored row.
type Evaluator struct {
	prefs  PrefStore
	reddit Fetcher
}

// NewEvaluator creates a skip evaluator.
func NewEvaluator(prefs PrefStore, fetcher Fetcher) *Evaluator {
	return &Evaluator{prefs: prefs, reddit: fetcher}
}

// CheckSource evaluates the source's skip state. fetched may carry the
// already-fetched submission so a fresh source costs no second API call;
// pass nil for sources hydrated from the store, in which case the archived
// check fetches lazily and only when the preference checks pass.
func (e *Evaluator) CheckSource(ctx context.Context, src *entity.Source, fetched *reddit.Submission) (bool, error) {
	if src.Skip != entity.SkipUnknown {
		return src.Skip.Skipped(), nil
	}

	skip, err := e.sourceSkipped(ctx, src, fetched)
	if err != nil {
		return false, err
	}

	if skip {
		src.Skip = entity.SkipSkipped
	} else {
		src.Skip = entity.SkipAllowed
	}
	return skip, nil
}

func (e *Evaluator) sourceSkipped(ctx context.Context, src *entity.Source, fetched *reddit.Submission) (bool, error) {
	if skip, err := e.prefs.UserSkipsSource(ctx, src.Author); err != nil {
		return false, fmt.Errorf("check user pref for %s: %w", src.Author, err)
	} else if skip {
		return true, nil
	}

	if skip, err := e.prefs.SubredditSkipsSource(ctx, src.Subreddit); err != nil {
		return false, fmt.Errorf("check subreddit pref for %s: %w", src.Subreddit, err)
	} else if skip {
		return true, nil
	}

	// Archived check goes last: it is the only one that may cost an API call.
	if fetched == nil {
		var err error
		fetched, err = e.reddit.Submission(ctx, src.ID)
		if err != nil {
			return false, fmt.Errorf("fetch %s for archived check: %w", src.ID, err)
		}
	}
	return fetched.Archived, nil
}

// CheckLink evaluates the link's skip state against the link-side preferences.
func (e *Evaluator) CheckLink(ctx context.Context, link *entity.Link) (bool, error) {
	if link.Skip != entity.SkipUnknown {
		return link.Skip.Skipped(), nil
	}

	skip, err := e.linkSkipped(ctx, link)
	if err != nil {
		return false, err
	}

	if skip {
		link.Skip = entity.SkipSkipped
	} else {
		link.Skip = entity.SkipAllowed
	}
	return skip, nil
}

func (e *Evaluator) linkSkipped(ctx context.Context, link *entity.Link) (bool, error) {
	if skip, err := e.prefs.UserSkipsLink(ctx, link.Author); err != nil {
		return false, fmt.Errorf("check user pref for %s: %w", link.Author, err)
	} else if skip {
		return true, nil
	}

	// The preference table keys on the all-lowercase subreddit name, not the
	// mixed-case display name from the submission.
	if skip, err := e.prefs.SubredditSkipsLink(ctx, strings.ToLower(link.Subreddit)); err != nil {
		return false, fmt.Errorf("check subreddit pref for %s: %w", link.Subreddit, err)
	} else if skip {
		return true, nil
	}

	return false, nil
}
