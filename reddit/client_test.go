package reddit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))

		fmt.Fprintf(w, `{"access_token": %q, "token_type": "bearer", "expires_in": 3600}`, testToken)
	})
	if handler != nil {
		mux.Handle("/", handler)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(srv.Client(), Credentials{
		Username:     "totes",
		Password:     "hunter2",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, "test-agent", logger)
	c.AuthURL = srv.URL + "/api/v1/access_token"
	c.APIBase = srv.URL
	return c
}

func TestLogin(t *testing.T) {
	c := testClient(t, nil)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, testToken, c.token)
	assert.False(t, c.tokenExpiry.IsZero())
}

func TestLoginBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(srv.Client(), Credentials{}, "test-agent", logger)
	c.AuthURL = srv.URL

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
}

func TestNewSubmissions(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain/reddit.com/new", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		fmt.Fprint(w, `{"data": {"children": [
			{"kind": "t3", "data": {"name": "t3_aaa111", "subreddit": "bestof",
				"author": "linker", "title": "Look",
				"permalink": "/r/bestof/comments/aaa111/look/",
				"url": "https://www.reddit.com/r/golang/comments/bbb222/x/",
				"created_utc": 1700000000}},
			{"kind": "t3", "data": {"name": "t3_ccc333", "subreddit": "pics",
				"author": "[deleted]", "title": "Cat", "archived": true,
				"created_utc": 1700000100}}
		]}}`)
	}))

	subs, err := c.NewSubmissions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "t3_aaa111", subs[0].Name)
	assert.Equal(t, "bestof", subs[0].Subreddit)
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/bbb222/x/", subs[0].URL)
	assert.Equal(t, float64(1700000000), subs[0].CreatedUTC)

	assert.Equal(t, "[deleted]", subs[1].Author)
	assert.True(t, subs[1].Archived)
}

func TestSubmission(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/info", r.URL.Path)
		assert.Equal(t, "t1_def456", r.URL.Query().Get("id"))

		fmt.Fprint(w, `{"data": {"children": [
			{"kind": "t1", "data": {"id": "def456", "subreddit": "golang",
				"author": "gopher", "created_utc": 1700000000}}
		]}}`)
	}))

	sub, err := c.Submission(context.Background(), "t1_def456")
	require.NoError(t, err)

	// Comments come back without a name; it is rebuilt from kind and id.
	assert.Equal(t, "t1_def456", sub.Name)
	assert.Equal(t, "golang", sub.Subreddit)
	assert.Empty(t, sub.Title)
}

func TestSubmissionNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": {"children": []}}`)
	}))

	_, err := c.Submission(context.Background(), "t3_gone00")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestReply(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/comment", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "t3_abc123", r.PostForm.Get("thing_id"))
		assert.Equal(t, "hello", r.PostForm.Get("text"))

		fmt.Fprint(w, `{"json": {"errors": [], "data": {"things": [
			{"data": {"name": "t1_reply01"}}
		]}}}`)
	}))

	id, err := c.Reply(context.Background(), "t3_abc123", "hello")
	require.NoError(t, err)
	assert.Equal(t, "t1_reply01", id)
}

func TestReplyRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"json": {"errors": [["TOO_OLD", "that's an archived post", "thing_id"]]}}`)
	}))

	_, err := c.Reply(context.Background(), "t3_abc123", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOO_OLD")
}

func TestEditComment(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/editusertext", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "t1_reply01", r.PostForm.Get("thing_id"))

		fmt.Fprint(w, `{"json": {"errors": []}}`)
	}))

	require.NoError(t, c.EditComment(context.Background(), "t1_reply01", "updated"))
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data": {"children": []}}`)
	}))

	subs, err := c.NewSubmissions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.NewSubmissions(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, 1, calls)
}
