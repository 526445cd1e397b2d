package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	defaultAPIBase = "https://oauth.reddit.com"

	// Reddit asks script apps to stay under one request per second.
	requestInterval = time.Second
)

// Credentials holds the script-app OAuth credentials.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Client talks to the reddit API with password-grant OAuth, retries, and
// rate limiting.
type Client struct {
	http      *http.Client
	logger    *slog.Logger
	limiter   *rate.Limiter
	creds     Credentials
	userAgent string

	// AuthURL and APIBase are overridable for tests.
	AuthURL string
	APIBase string

	token       string
	tokenExpiry time.Time
}

// New creates a reddit client. Login must be called before any API method.
func New(httpClient *http.Client, creds Credentials, userAgent string, logger *slog.Logger) *Client {
	return &Client{
		http:      httpClient,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(requestInterval), 1),
		creds:     creds,
		userAgent: userAgent,
		AuthURL:   defaultAuthURL,
		APIBase:   defaultAPIBase,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login performs the password-grant handshake and stores the bearer token.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.creds.Username},
		"password":   {c.creds.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return &APIError{URL: c.AuthURL, StatusCode: resp.StatusCode}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("login rejected for %s (bad credentials?)", c.creds.Username)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Info("Logged in to reddit", "username", c.creds.Username)
	return nil
}

// ensureToken refreshes the bearer token shortly before it expires.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return nil
	}
	return c.Login(ctx)
}

// NewSubmissions fetches the newest submissions that link back at reddit.
func (c *Client) NewSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	var listing listingResponse
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/domain/reddit.com/new", query, &listing); err != nil {
		return nil, err
	}

	subs := make([]*Submission, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		subs = append(subs, child.Data.submission(child.Kind))
	}
	return subs, nil
}

// Submission fetches a comment or post by fullname via /api/info; an empty
// listing means the id no longer resolves.
func (c *Client) Submission(ctx context.Context, fullname string) (*Submission, error) {
	var listing listingResponse
	query := url.Values{"id": {fullname}}
	if err := c.get(ctx, "/api/info", query, &listing); err != nil {
		return nil, err
	}

	if len(listing.Data.Children) == 0 {
		return nil, &NotFoundError{ID: fullname}
	}

	child := listing.Data.Children[0]
	return child.Data.submission(child.Kind), nil
}

// Reply posts a new comment under the parent and returns its fullname.
func (c *Client) Reply(ctx context.Context, parentFullname, body string) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {body},
	}

	var resp commentResponse
	if err := c.postForm(ctx, "/api/comment", form, &resp); err != nil {
		return "", err
	}

	if len(resp.JSON.Errors) > 0 {
		return "", fmt.Errorf("reply to %s rejected: %v", parentFullname, resp.JSON.Errors)
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reply to %s returned no comment", parentFullname)
	}
	return resp.JSON.Data.Things[0].Data.Name, nil
}

// EditComment replaces the body of an existing comment.
func (c *Client) EditComment(ctx context.Context, commentFullname, body string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {commentFullname},
		"text":     {body},
	}

	var resp commentResponse
	if err := c.postForm(ctx, "/api/editusertext", form, &resp); err != nil {
		return err
	}
	if len(resp.JSON.Errors) > 0 {
		return fmt.Errorf("edit of %s rejected: %v", commentFullname, resp.JSON.Errors)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.APIBase + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, "", nil, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, c.APIBase+path,
		"application/x-www-form-urlencoded", []byte(form.Encode()), out)
}

// do performs one API request with rate limiting and retries. Responses that
// cannot succeed on retry (auth failures, client errors) come back as
// unrecoverable so the retry loop exits early.
func (c *Client) do(ctx context.Context, method, target, contentType string, payload []byte, out any) error {
	err := retry.Do(
		func() error {
			if err := c.ensureToken(ctx); err != nil {
				return err
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			var body io.Reader = http.NoBody
			if payload != nil {
				body = strings.NewReader(string(payload))
			}
			req, err := http.NewRequestWithContext(ctx, method, target, body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", c.userAgent)
			req.Header.Set("Authorization", "Bearer "+c.token)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}

			start := time.Now()
			resp, err := c.http.Do(req)
			if err != nil {
				c.logger.Warn("Reddit request failed, will retry",
					"method", method, "url", target, "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("Reddit request completed",
				"method", method,
				"url", target,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				// Token may have been revoked server-side; force a fresh login.
				c.token = ""
				return &APIError{URL: target, StatusCode: resp.StatusCode}
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(&NotFoundError{ID: target})
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return &APIError{URL: target, StatusCode: resp.StatusCode}
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(&APIError{URL: target, StatusCode: resp.StatusCode})
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying reddit request after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	return nil
}

// thing is the wire shape shared by comments and posts.
type thing struct {
	Name       string  `json:"name"`
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	Archived   bool    `json:"archived"`
	CreatedUTC float64 `json:"created_utc"`
}

func (t *thing) submission(kind string) *Submission {
	name := t.Name
	if name == "" && t.ID != "" {
		name = kind + "_" + t.ID
	}
	return &Submission{
		Name:       name,
		Subreddit:  t.Subreddit,
		Author:     t.Author,
		Title:      t.Title,
		Permalink:  t.Permalink,
		URL:        t.URL,
		Archived:   t.Archived,
		CreatedUTC: t.CreatedUTC,
	}
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data thing  `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []struct {
				Data thing `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}
