// Package notion is a minimal client for the two Notion API endpoints the
// cleanup needs: querying a database and archiving a page.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fedragon/notion-cleanup/internal/models"
)

const (
	DefaultBaseURL   = "https://api.notion.com/v1"
	APIVersion       = "2022-06-28"
	DefaultUserAgent = "notion-cleanup"

	// PageSize is the largest page the query endpoint returns.
	PageSize = 100

	defaultQueryTimeout   = 30 * time.Second
	defaultArchiveTimeout = 10 * time.Second

	// error bodies past this size are truncated in messages
	maxErrorBody = 4 << 10
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type Client struct {
	apiKey         string
	baseURL        string
	userAgent      string
	http           HTTPDoer
	queryTimeout   time.Duration
	archiveTimeout time.Duration
}

type ClientOpt func(c *Client)

func WithBaseURL(u string) ClientOpt {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(doer HTTPDoer) ClientOpt {
	return func(c *Client) {
		c.http = doer
	}
}

// WithTimeouts overrides the per-request timeouts of queries and archive
// calls. Zero values keep the defaults.
func WithTimeouts(query, archive time.Duration) ClientOpt {
	return func(c *Client) {
		if query > 0 {
			c.queryTimeout = query
		}
		if archive > 0 {
			c.archiveTimeout = archive
		}
	}
}

func WithUserAgent(ua string) ClientOpt {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func NewClient(apiKey string, opts ...ClientOpt) *Client {
	c := &Client{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		userAgent:      DefaultUserAgent,
		http:           NewHTTPClient(),
		queryTimeout:   defaultQueryTimeout,
		archiveTimeout: defaultArchiveTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewHTTPClient returns an HTTP client derived from the default transport
// that does not follow redirects: the API never redirects, and following one
// would forward the bearer token.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type queryRequest struct {
	Filter      json.RawMessage `json:"filter"`
	PageSize    int             `json:"page_size"`
	StartCursor string          `json:"start_cursor,omitempty"`
}

type queryResponse struct {
	Results    []models.Record `json:"results"`
	HasMore    bool            `json:"has_more"`
	NextCursor *string         `json:"next_cursor"`
}

type errorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query fetches one page of the records of databaseID matching filter.
// An empty cursor starts from the first page.
func (c *Client) Query(ctx context.Context, databaseID string, filter json.RawMessage, cursor string) (*models.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	body := queryRequest{
		Filter:      filter,
		PageSize:    PageSize,
		StartCursor: cursor,
	}

	var res queryResponse
	path := "/databases/" + url.PathEscape(databaseID) + "/query"
	if err := c.do(ctx, "query database "+databaseID, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}

	page := &models.Page{
		Records: res.Results,
		HasMore: res.HasMore,
	}
	if res.NextCursor != nil {
		page.NextCursor = *res.NextCursor
	}

	// a page claiming more results without a cursor would loop forever
	if page.HasMore && page.NextCursor == "" {
		return nil, fmt.Errorf("query database %s: response has more results but no cursor", databaseID)
	}

	return page, nil
}

// Archive moves a page to the trash, where it stays recoverable.
func (c *Client) Archive(ctx context.Context, pageID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.archiveTimeout)
	defer cancel()

	body := map[string]bool{"archived": true}
	return c.do(ctx, "archive page "+pageID, http.MethodPatch, "/pages/"+url.PathEscape(pageID), body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: unable to encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: unable to decode response: %w", op, err)
	}

	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		Operation:  op,
		StatusCode: resp.StatusCode,
	}

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Object == "error" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
