// Package poll drives the notifier: each cycle fetches candidate submissions,
// resolves them into source/link pairs, applies skip logic, and dispatches
// notifications for the distinct sources that need one.
package poll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dumbledong/TotesMessenger/notify"
	"github.com/dumbledong/TotesMessenger/pkg/entity"
	"github.com/dumbledong/TotesMessenger/reddit"
	"github.com/dumbledong/TotesMessenger/store"
)

// ErrNotReady is returned when Run is called before Setup completed. This is
// a startup-order bug, not a runtime condition, and is not retried.
var ErrNotReady = errors.New("poll: not set up yet, call Setup first")

// PairPolicy decides whether a source/link subreddit pairing is eligible for
// notification at all.
type PairPolicy func(sourceSubreddit, linkSubreddit string) bool

// DefaultPairPolicy restricts notifications to the single pairing this
// deployment serves: relationship_advice threads linked from ra_automod.
func DefaultPairPolicy(sourceSubreddit, linkSubreddit string) bool {
	return sourceSubreddit == "relationship_advice" && linkSubreddit == "ra_automod"
}

// Options tunes the polling loop.
type Options struct {
	// Limit bounds how many candidate submissions one cycle fetches.
	Limit int
	// MinPostAge defers candidates younger than this to a later cycle.
	MinPostAge time.Duration
	// SnitchURL, when set, receives a best-effort GET after each successful
	// cycle as a liveness beacon.
	SnitchURL string
	// Policy overrides DefaultPairPolicy when non-nil.
	Policy PairPolicy
}

// Totes is the polling orchestrator.
type Totes struct {
	api      reddit.API
	store    *store.Store
	notifier *notify.Notifier
	logger   *slog.Logger
	http     *http.Client
	policy   PairPolicy
	opts     Options
	ready    bool
}

// New creates the orchestrator. The store handle is injected, opened and
// closed by the caller.
func New(api reddit.API, st *store.Store, notifier *notify.Notifier, logger *slog.Logger, opts Options) *Totes {
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPairPolicy
	}
	return &Totes{
		api:      api,
		store:    st,
		notifier: notifier,
		logger:   logger,
		http:     &http.Client{Timeout: 10 * time.Second},
		policy:   policy,
		opts:     opts,
	}
}

// Setup performs the login handshake when the API needs one and marks the
// orchestrator ready.
func (t *Totes) Setup(ctx context.Context) error {
	if auth, ok := t.api.(reddit.Authenticator); ok {
		if err := auth.Login(ctx); err != nil {
			return fmt.Errorf("reddit login: %w", err)
		}
	}
	t.ready = true
	t.logger.Info("Totes set up")
	return nil
}

// Loop runs cycles until ctx is cancelled, sleeping wait between them. Cycle
// failures are logged and the loop continues; only cancellation or calling
// Loop before Setup ends it.
func (t *Totes) Loop(ctx context.Context, wait time.Duration) error {
	for {
		if err := t.Run(ctx); err != nil {
			if errors.Is(err, ErrNotReady) || ctx.Err() != nil {
				return err
			}
			t.logger.Error("Cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Run executes one polling cycle.
func (t *Totes) Run(ctx context.Context) error {
	if !t.ready {
		return ErrNotReady
	}

	t.logger.Info("Running cycle")

	candidates, err := t.api.NewSubmissions(ctx, t.opts.Limit)
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}
	t.logger.Debug("Got new submissions", "count", len(candidates))

	// Distinct sources pending notification, keyed by fullname.
	queue := make(map[string]*entity.Source)
	now := time.Now()

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		created := time.Unix(int64(candidate.CreatedUTC), 0)
		if age := now.Sub(created); age < t.opts.MinPostAge {
			t.logger.Debug("Skipping candidate, too new", "id", candidate.Name, "age", age.String())
			continue
		}

		if err := t.processCandidate(ctx, candidate, queue); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// One bad candidate never aborts the batch; its transaction has
			// already been rolled back.
			t.logError("Candidate failed", candidate.Name, err)
		}
	}

	for _, src := range queue {
		if err := t.dispatch(ctx, src); err != nil {
			if ctx.Err() != nil {
				return err
			}
			t.logError("Notification failed", src.ID, err)
		}
	}

	t.snitch(ctx)
	t.logger.Info("Cycle done", "candidates", len(candidates), "notified", len(queue))
	return nil
}

// processCandidate resolves one submission into a source/link pair inside a
// transaction; a failure rolls the whole unit back.
func (t *Totes) processCandidate(ctx context.Context, candidate *reddit.Submission, queue map[string]*entity.Source) error {
	return t.store.WithTx(ctx, func(tx *sql.Tx) error {
		sources := store.NewSources(tx)
		links := store.NewLinks(tx)
		eval := NewEvaluator(store.NewPrefs(tx), t.api)

		src, fetched, err := t.resolveSource(ctx, sources, candidate.URL)
		if err != nil {
			return fmt.Errorf("resolve source of %s: %w", candidate.Name, err)
		}
		t.logger.Debug("Got source", "candidate", candidate.Name, "source", src.ID, "new", src.IsNew)

		if _, err := eval.CheckSource(ctx, src, fetched); err != nil {
			return err
		}
		if err := sources.Save(ctx, src); err != nil {
			return err
		}

		link := newLink(candidate, src.ID)
		if _, err := links.Load(ctx, link); err != nil {
			return err
		}
		t.logger.Debug("Got link", "candidate", candidate.Name, "link", link.ID, "new", link.IsNew)

		if _, err := eval.CheckLink(ctx, link); err != nil {
			return err
		}
		if err := links.Save(ctx, link); err != nil {
			return err
		}

		skipAny := src.Skip.Skipped() || link.Skip.Skipped()
		if !t.policy(src.Subreddit, link.Subreddit) {
			skipAny = true
		}
		anyNew := src.IsNew || link.IsNew

		t.logger.Debug("Candidate evaluated",
			"candidate", candidate.Name,
			"skip_any", skipAny,
			"any_new", anyNew)

		if anyNew && !skipAny {
			queue[src.ID] = src
		}
		return nil
	})
}

// resolveSource builds the source for a candidate's target URL: hydrated from
// the store when previously seen (no API call), otherwise fetched fresh. The
// returned submission is non-nil only when a fetch happened.
func (t *Totes) resolveSource(ctx context.Context, sources *store.Sources, rawURL string) (*entity.Source, *reddit.Submission, error) {
	id, subreddit, err := entity.ParseSourceURL(rawURL)
	if err != nil {
		return nil, nil, err
	}

	src := &entity.Source{ID: id, Subreddit: subreddit, IsNew: true}

	found, err := sources.Load(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	if found {
		return src, nil, nil
	}

	fetched, err := t.api.Submission(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	src.Author = normalizeAuthor(fetched.Author)
	if src.IsComment() || fetched.Title == "" {
		src.Title = entity.CommentTitle
	} else {
		src.Title = fetched.Title
	}
	return src, fetched, nil
}

// newLink builds a link entity from the already-fetched candidate. A deleted
// author auto-skips the link: the content is gone or unreliable.
func newLink(candidate *reddit.Submission, sourceID string) *entity.Link {
	link := &entity.Link{
		ID:        candidate.Name,
		Source:    sourceID,
		Subreddit: strings.ToLower(candidate.Subreddit),
		Author:    normalizeAuthor(candidate.Author),
		Title:     candidate.Title,
		Permalink: candidate.Permalink,
		IsNew:     true,
	}
	if link.Author == entity.DeletedAuthor {
		link.Skip = entity.SkipSkipped
	}
	return link
}

func normalizeAuthor(author string) string {
	if author == "" || strings.EqualFold(author, entity.DeletedAuthor) {
		return entity.DeletedAuthor
	}
	return strings.ToLower(author)
}

// dispatch posts or edits the notification reply for one source, as its own
// transactional unit.
func (t *Totes) dispatch(ctx context.Context, src *entity.Source) error {
	return t.store.WithTx(ctx, func(tx *sql.Tx) error {
		note, err := t.notifier.Gather(ctx, store.NewLinks(tx), src)
		if err != nil {
			return err
		}
		if !note.ShouldNotify() {
			t.logger.Debug("No eligible links", "source", src.ID)
			return nil
		}
		return t.notifier.Post(ctx, store.NewSources(tx), note)
	})
}

// snitch reports liveness to the configured beacon URL. Failures are logged
// and swallowed.
func (t *Totes) snitch(ctx context.Context) {
	if t.opts.SnitchURL == "" {
		return
	}

	t.logger.Info("Snitching", "url", t.opts.SnitchURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.opts.SnitchURL, http.NoBody)
	if err != nil {
		t.logger.Warn("Couldn't snitch", "error", err)
		return
	}

	resp, err := t.http.Do(req)
	if err != nil {
		t.logger.Warn("Couldn't snitch", "error", err)
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("Snitch returned non-OK status", "status_code", resp.StatusCode)
	}
}

// logError logs a per-item failure. Expected conditions (non-thread URLs,
// deleted targets) only show at debug level; anything else is an error.
func (t *Totes) logError(msg, id string, err error) {
	if entity.IsNotThread(err) || reddit.IsNotFound(err) {
		t.logger.Debug(msg, "id", id, "error", err)
		return
	}
	t.logger.Error(msg, "id", id, "error", err)
}
