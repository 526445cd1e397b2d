package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumbledong/TotesMessenger/pkg/entity"
)

func saveLink(t *testing.T, links *Links, link *entity.Link) {
	t.Helper()
	require.NoError(t, links.Save(context.Background(), link))
}

func TestLinksSaveAndLoad(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	links := NewLinks(st.DB())

	saveLink(t, links, &entity.Link{
		ID:        "t3_link001",
		Source:    "t3_abc123",
		Subreddit: "bestof",
		Author:    "linker",
		Title:     "Look at this",
		Permalink: "/r/bestof/comments/link001/look_at_this/",
		Skip:      entity.SkipAllowed,
	})

	loaded := &entity.Link{ID: "t3_link001", IsNew: true}
	found, err := links.Load(ctx, loaded)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "t3_abc123", loaded.Source)
	assert.Equal(t, "bestof", loaded.Subreddit)
	assert.Equal(t, "linker", loaded.Author)
	assert.Equal(t, "Look at this", loaded.Title)
	assert.Equal(t, "/r/bestof/comments/link001/look_at_this/", loaded.Permalink)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, entity.SkipUnknown, loaded.Skip)
}

func TestLinksLoadMissing(t *testing.T) {
	st := testStore(t)

	link := &entity.Link{ID: "t3_nothere", IsNew: true}
	found, err := NewLinks(st.DB()).Load(context.Background(), link)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, link.IsNew, "missing row leaves the fresh link untouched")
}

func TestLinksForSource(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	links := NewLinks(st.DB())

	// Inserted out of order on purpose.
	saveLink(t, links, &entity.Link{ID: "t3_l3", Source: "t3_src", Subreddit: "b",
		Author: "u", Title: "y", Permalink: "/p3"})
	saveLink(t, links, &entity.Link{ID: "t3_l1", Source: "t3_src", Subreddit: "a",
		Author: "u", Title: "x", Permalink: "/p1"})
	saveLink(t, links, &entity.Link{ID: "t3_l2", Source: "t3_src", Subreddit: "a",
		Author: "u", Title: "y", Permalink: "/p2"})

	// Skipped and unrelated rows stay out of the result.
	saveLink(t, links, &entity.Link{ID: "t3_l4", Source: "t3_src", Subreddit: "a",
		Author: "u", Title: "z", Permalink: "/p4", Skip: entity.SkipSkipped})
	saveLink(t, links, &entity.Link{ID: "t3_l5", Source: "t3_other", Subreddit: "a",
		Author: "u", Title: "w", Permalink: "/p5"})

	refs, err := links.ForSource(ctx, "t3_src")
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, []LinkRef{
		{Subreddit: "a", Title: "x", Permalink: "/p1"},
		{Subreddit: "a", Title: "y", Permalink: "/p2"},
		{Subreddit: "b", Title: "y", Permalink: "/p3"},
	}, refs)
}

func TestLinksForSourceEmpty(t *testing.T) {
	st := testStore(t)

	refs, err := NewLinks(st.DB()).ForSource(context.Background(), "t3_src")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
