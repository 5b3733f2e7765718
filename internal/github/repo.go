package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/linking"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

// Options tunes one pipeline run. All values come from configuration loaded
// by the CLI; the pipeline itself never reads the environment.
type Options struct {
	CommitLookbackDays  int
	PRLookbackDays      int
	IdentityRefreshDays int
	BulkUserThreshold   int
	BranchIssuePatterns []string
}

// API is the slice of the remote client the pipeline calls, an interface so
// pipeline passes can be exercised against fakes.
type API interface {
	FetchRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	ListRepositories(ctx context.Context, owner string) ([]*github.Repository, error)
	ListCollaborators(ctx context.Context, owner, name string) ([]*github.User, error)
	FetchUser(ctx context.Context, login string) (*github.User, error)
	ListRepositoryTeams(ctx context.Context, owner, name string) ([]*github.Team, error)
	ListTeamMembers(ctx context.Context, org, teamSlug string) ([]*github.User, error)
	ListBranches(ctx context.Context, owner, name string) ([]*github.Branch, error)
	ListCommits(ctx context.Context, owner, name, branch string, since time.Time) ([]*github.RepositoryCommit, error)
	FetchCommit(ctx context.Context, owner, name, sha string) (*github.RepositoryCommit, error)
	ListPullRequests(ctx context.Context, owner, name string, updatedSince time.Time) ([]*github.PullRequest, error)
	ListReviews(ctx context.Context, owner, name string, number int) ([]*github.PullRequestReview, error)
}

// Store is the slice of the graph store the pipeline writes through.
type Store interface {
	identity.CacheStore
	linking.StubStore
	MergeNode(ctx context.Context, label, id string, props map[string]any) error
	MergeRelationship(ctx context.Context, rel models.Relationship) error
	MarkCommitFullySynced(ctx context.Context, commitID string) error
}

// Pipeline ingests one repository at a time, sequentially: collaborators,
// teams, branches, commits, pull requests. Repositories are independent
// units; a fatal failure in one aborts only that repository's run.
type Pipeline struct {
	client API
	store  Store
	window *syncstate.WindowTracker
	delta  *syncstate.DeltaFilter
	stubs  *linking.StubResolver
	opts   Options
	log    *logrus.Entry

	// set per repository run
	repoName      string
	defaultBranch string
}

// Summary counts the outcome of one repository run.
type Summary struct {
	Failed     int
	CacheStats identity.Stats
}

// NewPipeline wires a pipeline over an API client and a graph store.
func NewPipeline(client *Client, store *graph.Store, opts Options, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		client: client,
		store:  store,
		window: syncstate.NewWindowTracker(store),
		delta:  syncstate.NewDeltaFilter(store),
		stubs:  linking.NewStubResolver(store, log),
		opts:   opts,
		log:    log,
	}
}

// Run processes the named repositories for an owner, or every repository the
// owner has when names is empty. Failures are isolated per repository.
func (p *Pipeline) Run(ctx context.Context, owner string, names []string) error {
	if len(names) == 0 {
		repos, err := p.client.ListRepositories(ctx, owner)
		if err != nil {
			return fmt.Errorf("repository discovery: %w", err)
		}
		for _, repo := range repos {
			names = append(names, repo.GetName())
		}
	}

	var failedRepos int
	for _, name := range names {
		repo, err := p.client.FetchRepository(ctx, owner, name)
		if err != nil {
			p.log.WithError(err).WithField("repo", name).Error("repository fetch failed")
			failedRepos++
			continue
		}
		if _, err := p.ProcessRepository(ctx, owner, repo); err != nil {
			p.log.WithError(err).WithField("repo", name).Error("repository run aborted")
			failedRepos++
		}
	}
	if failedRepos > 0 {
		return fmt.Errorf("%d of %d repositories failed", failedRepos, len(names))
	}
	return nil
}

// ProcessRepository runs the full ingestion sequence for one repository.
//
// The root Repository node is written first; failure there is fatal for the
// whole run since no child entity could be linked. Per-entity failures inside
// each pass are absorbed and counted. The last_synced_at marker advances only
// when every pass completed without a fatal error, so a failed run leaves the
// next run re-examining the same window.
func (p *Pipeline) ProcessRepository(ctx context.Context, owner string, repo *github.Repository) (Summary, error) {
	p.repoName = repo.GetName()
	p.defaultBranch = repo.GetDefaultBranch()
	repoID := models.RepositoryID(owner, p.repoName)

	log := p.log.WithField("repo", repo.GetFullName())
	log.Info("processing repository")
	prevLog := p.log
	p.log = log
	defer func() { p.log = prevLog }()

	props := map[string]any{
		"name":           p.repoName,
		"full_name":      repo.GetFullName(),
		"owner":          owner,
		"default_branch": p.defaultBranch,
		"language":       repo.GetLanguage(),
		"url":            repo.GetHTMLURL(),
		"created_at":     repo.GetCreatedAt().UTC().Format(time.RFC3339),
	}
	if err := p.store.MergeNode(ctx, models.LabelRepository, repoID, props); err != nil {
		return Summary{}, fmt.Errorf("root repository node: %w", err)
	}

	// Per-run cache: discarded after the final flush below.
	cache := identity.NewPersonCache(p.store, log)
	var summary Summary

	failed, err := p.processCollaborators(ctx, cache, repoID, owner, p.repoName)
	summary.Failed += failed
	if err != nil {
		return summary, err
	}

	failed, err = p.processTeams(ctx, cache, repoID, owner)
	summary.Failed += failed
	if err != nil {
		return summary, err
	}

	branches, failed, err := p.processBranches(ctx, repoID, owner)
	summary.Failed += failed
	if err != nil {
		return summary, err
	}

	failed, err = p.processCommits(ctx, cache, repoID, owner, branches)
	summary.Failed += failed
	if err != nil {
		return summary, err
	}

	failed, err = p.processPullRequests(ctx, cache, repoID, owner)
	summary.Failed += failed
	if err != nil {
		return summary, err
	}

	if err := cache.Flush(ctx); err != nil {
		return summary, err
	}
	summary.CacheStats = cache.Stats()
	log.WithField("hits", summary.CacheStats.Hits).
		WithField("misses", summary.CacheStats.Misses).
		WithField("hit_rate", fmt.Sprintf("%.1f%%", summary.CacheStats.HitRate*100)).
		Info("person cache stats")

	if err := p.window.UpdateLastSyncedAt(ctx, repoID); err != nil {
		return summary, err
	}
	log.WithField("entity_failures", summary.Failed).Info("repository run complete")
	return summary, nil
}
