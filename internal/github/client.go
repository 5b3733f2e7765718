// Package github ingests code-hosting data: repositories, collaborators,
// teams, branches, commits, and pull requests.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/collabgraph/collabgraph-go/internal/retry"
)

// Provider is the identity-provider name recorded on IdentityMapping nodes
// written by this pipeline.
const Provider = "GitHub"

const perPage = 100

// Client wraps the GitHub API client with client-side pacing and bounded
// retries around rate-limited calls.
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	retryOpts   retry.Options
}

// NewClient creates a GitHub client. rateLimit is requests per second.
func NewClient(token string, rateLimit int) *Client {
	if rateLimit <= 0 {
		rateLimit = 10
	}
	return &Client{
		client:      github.NewClient(nil).WithAuthToken(token),
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
	}
}

// call pacing + retry wrapper shared by every API method.
func call[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limiter: %w", err)
	}
	return retry.Do(ctx, c.retryOpts, fn)
}

// FetchRepository gets repository metadata.
func (c *Client) FetchRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	repo, err := call(ctx, c, func() (*github.Repository, error) {
		repo, _, err := c.client.Repositories.Get(ctx, owner, name)
		return repo, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}
	return repo, nil
}

// ListRepositories lists all repositories for an owner (user or org).
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]*github.Repository, error) {
	var all []*github.Repository
	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		repos, resp, err := callPage(ctx, c, func() ([]*github.Repository, *github.Response, error) {
			return c.client.Repositories.ListByUser(ctx, owner, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list repositories for %s: %w", owner, err)
		}
		all = append(all, repos...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListCollaborators lists repository collaborators with their permissions.
func (c *Client) ListCollaborators(ctx context.Context, owner, name string) ([]*github.User, error) {
	var all []*github.User
	opts := &github.ListCollaboratorsOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		users, resp, err := callPage(ctx, c, func() ([]*github.User, *github.Response, error) {
			return c.client.Repositories.ListCollaborators(ctx, owner, name, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list collaborators for %s/%s: %w", owner, name, err)
		}
		all = append(all, users...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// FetchUser gets a user's full profile. The list endpoints return sparse
// user records without name or email.
func (c *Client) FetchUser(ctx context.Context, login string) (*github.User, error) {
	user, err := call(ctx, c, func() (*github.User, error) {
		user, _, err := c.client.Users.Get(ctx, login)
		return user, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", login, err)
	}
	return user, nil
}

// ListRepositoryTeams lists teams with access to a repository.
func (c *Client) ListRepositoryTeams(ctx context.Context, owner, name string) ([]*github.Team, error) {
	var all []*github.Team
	opts := &github.ListOptions{PerPage: perPage}
	for {
		teams, resp, err := callPage(ctx, c, func() ([]*github.Team, *github.Response, error) {
			return c.client.Repositories.ListTeams(ctx, owner, name, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list teams for %s/%s: %w", owner, name, err)
		}
		all = append(all, teams...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListTeamMembers lists the members of an org team.
func (c *Client) ListTeamMembers(ctx context.Context, org, teamSlug string) ([]*github.User, error) {
	var all []*github.User
	opts := &github.TeamListTeamMembersOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		users, resp, err := callPage(ctx, c, func() ([]*github.User, *github.Response, error) {
			return c.client.Teams.ListTeamMembersBySlug(ctx, org, teamSlug, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list members for team %s/%s: %w", org, teamSlug, err)
		}
		all = append(all, users...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListBranches lists all branches of a repository.
func (c *Client) ListBranches(ctx context.Context, owner, name string) ([]*github.Branch, error) {
	var all []*github.Branch
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		branches, resp, err := callPage(ctx, c, func() ([]*github.Branch, *github.Response, error) {
			return c.client.Repositories.ListBranches(ctx, owner, name, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list branches for %s/%s: %w", owner, name, err)
		}
		all = append(all, branches...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListCommits lists commits on a branch since the given time boundary.
func (c *Client) ListCommits(ctx context.Context, owner, name, branch string, since time.Time) ([]*github.RepositoryCommit, error) {
	var all []*github.RepositoryCommit
	opts := &github.CommitsListOptions{
		SHA:         branch,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		commits, resp, err := callPage(ctx, c, func() ([]*github.RepositoryCommit, *github.Response, error) {
			return c.client.Repositories.ListCommits(ctx, owner, name, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list commits for %s/%s@%s: %w", owner, name, branch, err)
		}
		all = append(all, commits...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// FetchCommit gets one commit's detail, including changed files.
func (c *Client) FetchCommit(ctx context.Context, owner, name, sha string) (*github.RepositoryCommit, error) {
	commit, err := call(ctx, c, func() (*github.RepositoryCommit, error) {
		commit, _, err := c.client.Repositories.GetCommit(ctx, owner, name, sha, nil)
		return commit, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch commit %s: %w", sha, err)
	}
	return commit, nil
}

// ListPullRequests lists pull requests in all states, most recently updated
// first, so callers can stop paging once they fall outside the fetch window.
func (c *Client) ListPullRequests(ctx context.Context, owner, name string, updatedSince time.Time) ([]*github.PullRequest, error) {
	var all []*github.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		prs, resp, err := callPage(ctx, c, func() ([]*github.PullRequest, *github.Response, error) {
			return c.client.PullRequests.List(ctx, owner, name, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list pull requests for %s/%s: %w", owner, name, err)
		}

		done := false
		for _, pr := range prs {
			if pr.GetUpdatedAt().Time.Before(updatedSince) {
				done = true
				break
			}
			all = append(all, pr)
		}
		if done || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListReviews lists the submitted reviews on a pull request.
func (c *Client) ListReviews(ctx context.Context, owner, name string, number int) ([]*github.PullRequestReview, error) {
	var all []*github.PullRequestReview
	opts := &github.ListOptions{PerPage: perPage}
	for {
		reviews, resp, err := callPage(ctx, c, func() ([]*github.PullRequestReview, *github.Response, error) {
			return c.client.PullRequests.ListReviews(ctx, owner, name, number, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list reviews for %s/%s#%d: %w", owner, name, number, err)
		}
		all = append(all, reviews...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// callPage is call for paginated endpoints that also return the response.
func callPage[T any](ctx context.Context, c *Client, fn func() (T, *github.Response, error)) (T, *github.Response, error) {
	type page struct {
		items T
		resp  *github.Response
	}
	result, err := call(ctx, c, func() (page, error) {
		items, resp, err := fn()
		return page{items, resp}, err
	})
	return result.items, result.resp, err
}
