// Package x implements the agent's social collaborators on the X API v2: publishing posts
// and replies, reading external context from recent search and polling mentions.
package x

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/murmur/internal/cognition"
	"github.com/blueberrycongee/murmur/internal/metrics"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

const (
	// DefaultBaseURL is the X API v2 endpoint.
	DefaultBaseURL = "https://api.twitter.com/2"

	providerName = "x"

	// Search accepts between 10 and 100 results per page.
	minSearchResults = 10
	maxSearchResults = 100
)

// Config configures the X client.
type Config struct {
	BaseURL string
	// AccessToken is an OAuth 2.0 user-context token with tweet.write scope.
	AccessToken string
	UserID      string
	Username    string
	// SearchQuery selects the posts used as external context.
	SearchQuery       string
	Timeout           time.Duration
	RequestsPerMinute int
	// HTTPClient is the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
}

// Client talks to the X API.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a new X client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("x access_token is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("x user_id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.AccessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
	}, nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type tweet struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	AuthorID         string    `json:"author_id"`
	CreatedAt        time.Time `json:"created_at"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type timelineResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

func (r *timelineResponse) usernames() map[string]string {
	out := make(map[string]string, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		out[u.ID] = u.Username
	}
	return out
}

// Publish posts content and returns the new post ID.
func (c *Client) Publish(ctx context.Context, content string) (string, error) {
	return c.tweet(ctx, "publish", tweetRequest{Text: content})
}

// Reply posts content as a reply to targetID.
func (c *Client) Reply(ctx context.Context, content, targetID string) (string, error) {
	if targetID == "" {
		return "", agenterrors.NewPublishError("reply", agenterrors.PublishRejected, 0, "reply target is empty", nil)
	}
	return c.tweet(ctx, "reply", tweetRequest{Text: content, Reply: &replyField{InReplyToTweetID: targetID}})
}

func (c *Client) tweet(ctx context.Context, op string, req tweetRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal tweet: %w", err)
	}

	var resp tweetResponse
	status, err := c.do(ctx, op, http.MethodPost, "/tweets", nil, body, &resp)
	if err != nil {
		err = publishError(op, status, err)
		metrics.PublishTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return "", err
	}
	if resp.Data.ID == "" {
		metrics.PublishTotal.WithLabelValues(op, "parse_error").Inc()
		return "", agenterrors.NewParseError(op, "x returned no post id", nil)
	}
	metrics.PublishTotal.WithLabelValues(op, "success").Inc()
	return resp.Data.ID, nil
}

// publishError converts a request failure into a PublishError. Decode failures stay ParseErrors.
func publishError(op string, status int, err error) error {
	if agenterrors.IsKind(err, agenterrors.KindParse) {
		return err
	}
	if status == 0 {
		return agenterrors.NewPublishError(op, agenterrors.PublishNetwork, 0, "x request failed", err)
	}
	message := "x rejected the post"
	if e, ok := agenterrors.As(err); ok {
		message = e.Message
	}
	return agenterrors.NewPublishError(op, agenterrors.PublishKindFromStatus(status), status, message, nil)
}

func resultLabel(err error) string {
	if e, ok := agenterrors.As(err); ok && e.PublishKind != "" {
		return string(e.PublishKind)
	}
	return "parse_error"
}

// ExternalContext returns up to limit recent posts matching the search query, formatted as
// "@username: text".
func (c *Client) ExternalContext(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || c.cfg.SearchQuery == "" {
		return nil, nil
	}
	maxResults := limit
	if maxResults < minSearchResults {
		maxResults = minSearchResults
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	query := url.Values{}
	query.Set("query", c.cfg.SearchQuery)
	query.Set("max_results", strconv.Itoa(maxResults))
	query.Set("expansions", "author_id")
	query.Set("user.fields", "username")

	var resp timelineResponse
	if _, err := c.do(ctx, "external_context", http.MethodGet, "/tweets/search/recent", query, nil, &resp); err != nil {
		return nil, err
	}

	names := resp.usernames()
	out := make([]string, 0, limit)
	for _, t := range resp.Data {
		if len(out) == limit {
			break
		}
		name := names[t.AuthorID]
		if name == "" {
			name = t.AuthorID
		}
		out = append(out, FormatContext(name, t.Text))
	}
	return out, nil
}

// FormatContext renders an external post as a context line.
func FormatContext(username, text string) string {
	return fmt.Sprintf("@%s: %s", username, strings.TrimSpace(text))
}

// Mentions returns posts mentioning the agent newer than sinceID, oldest first.
func (c *Client) Mentions(ctx context.Context, sinceID string) ([]cognition.Interaction, error) {
	query := url.Values{}
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}
	query.Set("tweet.fields", "author_id,created_at,referenced_tweets")
	query.Set("expansions", "author_id")
	query.Set("user.fields", "username")

	var resp timelineResponse
	path := "/users/" + url.PathEscape(c.cfg.UserID) + "/mentions"
	if _, err := c.do(ctx, "mentions", http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	names := resp.usernames()
	out := make([]cognition.Interaction, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		t := resp.Data[i]
		if t.AuthorID == c.cfg.UserID {
			continue
		}
		in := cognition.Interaction{
			ID:        t.ID,
			AuthorID:  t.AuthorID,
			Author:    names[t.AuthorID],
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		}
		for _, ref := range t.ReferencedTweets {
			if ref.Type == "replied_to" {
				in.InReplyToID = ref.ID
			}
		}
		out = append(out, in)
	}
	return out, nil
}

// Username returns the agent's handle without the leading @.
func (c *Client) Username() string {
	return c.cfg.Username
}

// do performs a request and returns the HTTP status, or 0 when no response arrived.
// Read failures come back as ProviderErrors.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte, out any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, agenterrors.NewProviderError(op, "rate limiter wait", 0, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(providerName, op, 0, time.Since(start))
		return 0, agenterrors.NewProviderError(op, "x request failed", 0, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(providerName, op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, agenterrors.NewProviderError(op, "x: "+errorDetail(resp.StatusCode, raw), resp.StatusCode, nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, agenterrors.NewParseError(op, "decode x response", err)
	}
	return resp.StatusCode, nil
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func errorDetail(status int, body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	return http.StatusText(status)
}

var (
	_ cognition.ActionSink        = (*Client)(nil)
	_ cognition.InteractionSource = (*Client)(nil)
)
