// Package notify composes the cross-link notification and posts or edits the
// single reply each source gets.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dumbledong/TotesMessenger/pkg/entity"
	"github.com/dumbledong/TotesMessenger/store"
)

const (
	preamble = "This thread has been linked to from another place on reddit."

	footer = "[](#footer)*^(If you follow any of the above links, respect the rules of reddit and don't vote.) " +
		"^([Info](/r/TotesMessenger/wiki/) ^/ ^[Contact](/message/compose/?to=/r/TotesMessenger))* [](#bot)"

	// Rendered permalinks go through the no-participation host so readers
	// land on a page without vote buttons.
	npHost = "https://np.reddit.com"
)

// Poster is the slice of the reddit API the dispatcher uses.
type Poster interface {
	Reply(ctx context.Context, parentFullname, body string) (string, error)
	EditComment(ctx context.Context, commentFullname, body string) error
}

// LinkLister gathers the links eligible for a source's notification.
type LinkLister interface {
	ForSource(ctx context.Context, sourceID string) ([]store.LinkRef, error)
}

// SourceSaver persists a source after its reply id is captured.
type SourceSaver interface {
	Save(ctx context.Context, src *entity.Source) error
}

// Options tunes rendering and dispatch.
type Options struct {
	// DryRun logs the composed body instead of contacting reddit.
	DryRun bool
	// TitleCutoffCount is the link count above which titles get truncated to
	// bound the message size.
	TitleCutoffCount int
	// TitleLimit is the character limit applied when truncating.
	TitleLimit int
}

// Notifier renders and dispatches notification replies.
type Notifier struct {
	poster Poster
	logger *slog.Logger
	opts   Options
}

// New creates a notifier.
func New(poster Poster, logger *slog.Logger, opts Options) *Notifier {
	return &Notifier{poster: poster, logger: logger, opts: opts}
}

// Notification is the pending reply for one source, with its links already
// resolved in render order.
type Notification struct {
	Source *entity.Source
	Links  []store.LinkRef
}

// Gather collects the persisted, unskipped links pointing at src.
func (n *Notifier) Gather(ctx context.Context, links LinkLister, src *entity.Source) (*Notification, error) {
	refs, err := links.ForSource(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("gather links for %s: %w", src.ID, err)
	}
	return &Notification{Source: src, Links: refs}, nil
}

// ShouldNotify reports whether the notification has anything to say.
func (note *Notification) ShouldNotify() bool {
	return len(note.Links) > 0
}

// Post delivers the notification. A source whose reply id is already set gets
// its existing reply edited in place, so repeated calls converge on the
// latest link list; otherwise a new reply is posted, its id captured on the
// source, and the source persisted. At most one new reply is ever created
// per source.
func (n *Notifier) Post(ctx context.Context, sources SourceSaver, note *Notification) error {
	src := note.Source
	body := n.Render(note)

	if n.opts.DryRun {
		n.logger.Info("DRY RUN reply",
			"source", src.ID,
			"link_count", len(note.Links),
			"body", body)
		return nil
	}

	if src.Reply != "" {
		if err := n.poster.EditComment(ctx, src.Reply, body); err != nil {
			return fmt.Errorf("edit reply %s: %w", src.Reply, err)
		}
		n.logger.Info("Notification reply updated", "source", src.ID, "reply", src.Reply)
		return nil
	}

	replyID, err := n.poster.Reply(ctx, src.ID, body)
	if err != nil {
		return fmt.Errorf("post reply under %s: %w", src.ID, err)
	}

	src.Reply = replyID
	if err := sources.Save(ctx, src); err != nil {
		return fmt.Errorf("save source after reply: %w", err)
	}

	n.logger.Info("Notification reply posted", "source", src.ID, "reply", replyID)
	return nil
}

// Render produces the markdown body: preamble, one bullet per link, footer.
func (n *Notifier) Render(note *Notification) string {
	parts := make([]string, 0, len(note.Links)+2)
	parts = append(parts, preamble)

	truncate := len(note.Links) > n.opts.TitleCutoffCount
	for _, ref := range note.Links {
		title := ref.Title
		if truncate {
			title = truncateTitle(title, n.opts.TitleLimit)
		}
		parts = append(parts, fmt.Sprintf("- [/r/%s] [%s](%s)",
			ref.Subreddit, escapeTitle(title), npLink(ref.Permalink)))
	}

	parts = append(parts, footer)
	return strings.Join(parts, "\n\n")
}

// escapeTitle backslash-escapes the markdown characters that would otherwise
// turn a title into formatting.
var titleEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"[", `\[`,
	"]", `\]`,
	"^", `\^`,
	"`", "\\`",
	"_", `\_`,
	"~", `\~`,
	"/", `\/`,
)

func escapeTitle(title string) string {
	return titleEscaper.Replace(title)
}

func truncateTitle(title string, limit int) string {
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit]) + "..."
}

// npLink rebuilds the permalink on the no-participation host, keeping only
// its path.
func npLink(permalink string) string {
	u, err := url.Parse(permalink)
	if err != nil {
		return npHost + permalink
	}
	return npHost + u.Path
}
