// Package jira ingests issue-tracking data: projects, epics, sprints, and
// issues.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/collabgraph/collabgraph-go/internal/retry"
)

// Provider is the identity-provider name recorded on IdentityMapping nodes
// written by this pipeline.
const Provider = "Jira"

const pageSize = 100

// Client wraps the Jira REST client with bounded retries around throttled
// calls. Jira signals throttling with HTTP 429, which is converted into a
// structured rate-limit error for the retry policy.
type Client struct {
	jira      *jira.Client
	retryOpts retry.Options
}

// NewClient creates an authenticated Jira client and validates credentials.
func NewClient(ctx context.Context, baseURL, email, apiToken string) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: email,
		Password: apiToken,
	}
	jc, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}

	if _, _, err := jc.User.GetSelfWithContext(ctx); err != nil {
		return nil, fmt.Errorf("jira authentication failed: %w", err)
	}
	return &Client{jira: jc}, nil
}

// classify converts throttling responses into the structured retryable error.
func classify(resp *jira.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return &retry.RateLimitError{Err: err}
	}
	return err
}

// ListProjects lists all projects visible to the authenticated user.
func (c *Client) ListProjects(ctx context.Context) (jira.ProjectList, error) {
	list, err := retry.Do(ctx, c.retryOpts, func() (jira.ProjectList, error) {
		list, resp, err := c.jira.Project.GetListWithContext(ctx)
		if err != nil {
			return nil, classify(resp, err)
		}
		return *list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return list, nil
}

// SearchIssues runs a paginated JQL search and returns all matching issues.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	var all []jira.Issue
	startAt := 0
	for {
		opts := &jira.SearchOptions{StartAt: startAt, MaxResults: pageSize}
		type page struct {
			issues []jira.Issue
			total  int
		}
		result, err := retry.Do(ctx, c.retryOpts, func() (page, error) {
			issues, resp, err := c.jira.Issue.SearchWithContext(ctx, jql, opts)
			if err != nil {
				return page{}, classify(resp, err)
			}
			return page{issues: issues, total: resp.Total}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("search issues (%s): %w", jql, err)
		}

		all = append(all, result.issues...)
		if len(result.issues) == 0 || len(all) >= result.total {
			break
		}
		startAt += len(result.issues)
	}
	return all, nil
}

// FetchSprint gets one sprint by id via the agile API.
func (c *Client) FetchSprint(ctx context.Context, sprintID int) (*jira.Sprint, error) {
	sprint, err := retry.Do(ctx, c.retryOpts, func() (*jira.Sprint, error) {
		req, err := c.jira.NewRequestWithContext(ctx, "GET", fmt.Sprintf("rest/agile/1.0/sprint/%d", sprintID), nil)
		if err != nil {
			return nil, err
		}
		sprint := new(jira.Sprint)
		resp, err := c.jira.Do(req, sprint)
		if err != nil {
			return nil, classify(resp, err)
		}
		return sprint, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch sprint %d: %w", sprintID, err)
	}
	return sprint, nil
}

// dateClause formats a time boundary for JQL comparison.
func dateClause(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
