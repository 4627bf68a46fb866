// Package tracker files issues against an external GitHub-style issue
// tracker. One attempt per user action; no retry, no state kept here.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"
)

type Client struct {
	gh *github.Client
}

// New returns a client authenticated with the given access token.
func New(token string) *Client {
	return &Client{gh: github.NewClient(nil).WithAuthToken(token)}
}

// LogIssue submits a single issue titled "[Priority] Title" to repoName
// ("owner/repo"). Tracker-reported errors surface the tracker's own message;
// anything else gets a generic wrapper.
func (c *Client) LogIssue(ctx context.Context, repoName, title, description, priority string) error {
	owner, repo, ok := strings.Cut(repoName, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("invalid repository name %q, expected owner/repo", repoName)
	}

	req := &github.IssueRequest{
		Title: github.String(fmt.Sprintf("[%s] %s", priority, title)),
		Body:  github.String(description),
	}

	_, _, err := c.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) {
			return fmt.Errorf("GitHub error: %s", ghErr.Message)
		}
		return fmt.Errorf("failed to log issue: %w", err)
	}
	return nil
}
