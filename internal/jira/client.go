// Package jira talks to the Jira REST v2 API: issue search by case
// reference and comment listing, appending and editing.
package jira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/pkg/httpretry"
)

// ErrUnexpectedStatus wraps any response whose status is not the one the
// endpoint returns on success.
var ErrUnexpectedStatus = errors.New("jira: unexpected status")

const defaultPageSize = 50

// Client is the Jira API client. Reads are retried; writes are sent once so
// a slow 201 never turns into a duplicate comment.
type Client struct {
	baseURL  string
	apiKey   string
	reads    httpretry.HTTPDoer
	writes   httpretry.HTTPDoer
	pageSize int
}

// NewClient builds a client for cfg.APIHost, for example
// https://jira.example.com/rest/api/2.
func NewClient(cfg config.JiraConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-hosted Jira with private CA
	}
	httpClient := &http.Client{Timeout: cfg.Timeout(), Transport: transport}

	return &Client{
		baseURL:  strings.TrimRight(cfg.APIHost, "/"),
		apiKey:   cfg.APIKey,
		reads:    httpretry.NewRetryClient(httpClient, cfg.MaxRetries),
		writes:   httpClient,
		pageSize: defaultPageSize,
	}
}

// SetHTTPClient replaces both transports (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.reads = client
	c.writes = client
}

func (c *Client) do(ctx context.Context, doer httpretry.HTTPDoer, method, endpoint string, body interface{}, want int) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%w %d from %s %s: %s", ErrUnexpectedStatus, resp.StatusCode, method, endpoint, truncate(respBody, 200))
	}
	return respBody, nil
}

// Search runs a JQL query and returns every matching issue.
func (c *Client) Search(ctx context.Context, jql string) ([]Issue, error) {
	var issues []Issue
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.pageSize))

		body, err := c.do(ctx, c.reads, http.MethodGet, "/search?"+q.Encode(), nil, http.StatusOK)
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing search response: %w", err)
		}

		issues = append(issues, page.Issues...)
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return issues, nil
		}
	}
}

// ListComments returns all comments on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, issueKey string) ([]Comment, error) {
	var comments []Comment
	for startAt := 0; ; {
		endpoint := fmt.Sprintf("/issue/%s/comment?startAt=%d&maxResults=%d", url.PathEscape(issueKey), startAt, c.pageSize)
		body, err := c.do(ctx, c.reads, http.MethodGet, endpoint, nil, http.StatusOK)
		if err != nil {
			return nil, err
		}
		var page commentsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing comments of %s: %w", issueKey, err)
		}

		comments = append(comments, page.Comments...)
		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			return comments, nil
		}
	}
}

// AddComment appends a comment. Jira answers 201 Created.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	endpoint := fmt.Sprintf("/issue/%s/comment", url.PathEscape(issueKey))
	_, err := c.do(ctx, c.writes, http.MethodPost, endpoint, commentRequest{Body: body}, http.StatusCreated)
	return err
}

// EditComment replaces a comment's body. Jira answers 200 OK.
func (c *Client) EditComment(ctx context.Context, issueKey, commentID, body string) error {
	endpoint := fmt.Sprintf("/issue/%s/comment/%s", url.PathEscape(issueKey), url.PathEscape(commentID))
	_, err := c.do(ctx, c.writes, http.MethodPut, endpoint, commentRequest{Body: body}, http.StatusOK)
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
