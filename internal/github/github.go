package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.github.com"

// SummaryMarker tags the comment prsum owns on a pull request so that
// publishing again edits it instead of adding another.
const SummaryMarker = "<!-- prsum:summary -->"

// ErrUnauthorized is returned when GitHub rejects the token.
var ErrUnauthorized = errors.New("github: authentication failed")

// ErrNoPullRequest is returned when a branch has no open pull request.
var ErrNoPullRequest = errors.New("github: no open pull request")

// Client provides access to the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a new GitHub client. Requires GITHUB_TOKEN env var.
func NewClient() (*Client, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN environment variable is not set")
	}

	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	apiURL = strings.TrimRight(apiURL, "/")

	return &Client{
		token:   token,
		apiURL:  apiURL,
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Comment is an issue comment on a pull request.
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

type pullRequest struct {
	Number int `json:"number"`
}

// FindPullRequest returns the number of the open pull request whose head is
// branch in owner/repo.
func (c *Client) FindPullRequest(ctx context.Context, owner, repo, branch string) (int, error) {
	q := url.Values{"state": {"open"}, "head": {owner + ":" + branch}}
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls?%s", owner, repo, q.Encode()), nil)
	if err != nil {
		return 0, err
	}
	var prs []pullRequest
	if err := json.Unmarshal(body, &prs); err != nil {
		return 0, fmt.Errorf("parsing response: %w", err)
	}
	if len(prs) == 0 {
		return 0, fmt.Errorf("%w for %s in %s/%s", ErrNoPullRequest, branch, owner, repo)
	}
	return prs[0].Number, nil
}

// ListComments fetches the first page of issue comments on a pull request.
func (c *Client) ListComments(ctx context.Context, owner, repo string, prNumber int) ([]Comment, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=100", owner, repo, prNumber), nil)
	if err != nil {
		return nil, err
	}
	var comments []Comment
	if err := json.Unmarshal(body, &comments); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return comments, nil
}

// PublishSummary writes markdown as the prsum comment on a pull request,
// editing the existing one when present. It reports whether a new comment
// was created.
func (c *Client) PublishSummary(ctx context.Context, owner, repo string, prNumber int, markdown string) (Comment, bool, error) {
	existing, err := c.ListComments(ctx, owner, repo, prNumber)
	if err != nil {
		return Comment{}, false, err
	}
	payload, err := json.Marshal(map[string]string{"body": CommentBody(markdown)})
	if err != nil {
		return Comment{}, false, fmt.Errorf("marshaling comment: %w", err)
	}

	method := http.MethodPost
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber)
	created := true
	for _, cm := range existing {
		if strings.Contains(cm.Body, SummaryMarker) {
			method = http.MethodPatch
			path = fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, cm.ID)
			created = false
			break
		}
	}

	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return Comment{}, false, err
	}
	var out Comment
	if err := json.Unmarshal(body, &out); err != nil {
		return Comment{}, false, fmt.Errorf("parsing response: %w", err)
	}
	return out, created, nil
}

// CommentBody prefixes markdown with SummaryMarker.
func CommentBody(markdown string) string {
	return SummaryMarker + "\n" + markdown
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, string(body))
	case resp.StatusCode == 404:
		return nil, fmt.Errorf("GitHub API: %s not found", path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// DetectRepo parses owner/repo from the origin remote of the repository at dir.
func DetectRepo(ctx context.Context, dir string) (owner, repo string, err error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}
