package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/linking"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

// processPullRequests ingests pull requests updated inside the fetch window.
// PRs recorded in a terminal state are skipped unless the remote reports them
// open again; open PRs are always reprocessed while they stay in the window.
func (p *Pipeline) processPullRequests(ctx context.Context, cache *identity.PersonCache, repoID, owner string) (failed int, err error) {
	since, err := p.window.ComputeFetchSince(ctx, repoID, p.opts.PRLookbackDays)
	if err != nil {
		return 0, fmt.Errorf("pull requests pass: %w", err)
	}

	terminal, err := p.delta.TerminalPullRequests(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("pull requests pass: %w", err)
	}

	prs, err := p.client.ListPullRequests(ctx, owner, p.repoName, since)
	if err != nil {
		return 0, fmt.Errorf("pull requests pass: %w", err)
	}

	skipped := 0
	for _, pr := range prs {
		if syncstate.ShouldSkipPullRequest(terminal, pr.GetNumber(), pr.GetState()) {
			skipped++
			continue
		}
		if err := p.handlePullRequest(ctx, cache, owner, pr); err != nil {
			p.log.WithError(err).WithField("pr", pr.GetNumber()).Warn("pull request write failed")
			failed++
		}
	}
	p.log.WithField("fetched", len(prs)).
		WithField("skipped", skipped).
		Info("pull requests processed")
	return failed, nil
}

func (p *Pipeline) handlePullRequest(ctx context.Context, cache *identity.PersonCache, owner string, pr *github.PullRequest) error {
	prID := models.PullRequestID(p.repoName, pr.GetNumber())
	baseBranchID := models.BranchID(p.repoName, pr.GetBase().GetRef())

	// Merged PRs report state "closed"; fold the merge flag into state so
	// the terminal-state filter sees one vocabulary.
	state := pr.GetState()
	if pr.MergedAt != nil {
		state = "merged"
	}

	props := map[string]any{
		"number":      pr.GetNumber(),
		"title":       pr.GetTitle(),
		"description": pr.GetBody(),
		"state":       state,
		"head_branch": pr.GetHead().GetRef(),
		"base_branch": pr.GetBase().GetRef(),
		"created_at":  pr.GetCreatedAt().UTC().Format(time.RFC3339),
		"updated_at":  pr.GetUpdatedAt().UTC().Format(time.RFC3339),
		"url":         pr.GetHTMLURL(),
	}
	if pr.MergedAt != nil {
		props["merged_at"] = pr.GetMergedAt().UTC().Format(time.RFC3339)
	}
	if pr.ClosedAt != nil {
		props["closed_at"] = pr.GetClosedAt().UTC().Format(time.RFC3339)
	}
	if err := p.store.MergeNode(ctx, models.LabelPullRequest, prID, props); err != nil {
		return err
	}

	if err := p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelTargets,
		FromID:   prID,
		ToID:     baseBranchID,
		FromType: models.LabelPullRequest,
		ToType:   models.LabelBranch,
	}); err != nil {
		return err
	}

	if author := pr.GetUser(); author != nil {
		if personID, err := p.resolveUser(ctx, cache, author); err == nil {
			if err := p.store.MergeRelationship(ctx, models.Relationship{
				Type:     models.RelAuthored,
				FromID:   personID,
				ToID:     prID,
				FromType: models.LabelPerson,
				ToType:   models.LabelPullRequest,
			}); err != nil {
				return err
			}
		} else {
			p.log.WithError(err).WithField("pr", pr.GetNumber()).Warn("author resolution failed")
		}
	}

	if err := p.linkReviews(ctx, cache, owner, pr, prID); err != nil {
		return err
	}

	// Issue keys in the head branch name link the PR to tracker work items.
	for _, key := range linking.ExtractIssueKeysFromBranch(pr.GetHead().GetRef(), p.opts.BranchIssuePatterns, p.log) {
		issueID, err := p.stubs.EnsureIssueStub(ctx, key)
		if err != nil {
			return err
		}
		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     models.RelReferences,
			FromID:   prID,
			ToID:     issueID,
			FromType: models.LabelPullRequest,
			ToType:   models.LabelIssue,
		}); err != nil {
			return err
		}
	}
	return nil
}

// linkReviews writes REVIEWED relationships for submitted reviews and
// REVIEW_REQUESTED for pending reviewer requests.
func (p *Pipeline) linkReviews(ctx context.Context, cache *identity.PersonCache, owner string, pr *github.PullRequest, prID string) error {
	reviews, err := p.client.ListReviews(ctx, owner, p.repoName, pr.GetNumber())
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}

	for _, review := range reviews {
		reviewer := review.GetUser()
		if reviewer == nil {
			continue
		}
		personID, err := p.resolveUser(ctx, cache, reviewer)
		if err != nil {
			p.log.WithError(err).WithField("pr", pr.GetNumber()).Warn("reviewer resolution failed")
			continue
		}

		rel := models.Relationship{
			Type:     models.RelReviewed,
			FromID:   personID,
			ToID:     prID,
			FromType: models.LabelPerson,
			ToType:   models.LabelPullRequest,
			Props: map[string]any{
				"state": review.GetState(),
			},
		}
		if review.SubmittedAt != nil {
			rel.Props["submitted_at"] = review.GetSubmittedAt().UTC().Format(time.RFC3339)
		}
		if err := p.store.MergeRelationship(ctx, rel); err != nil {
			return err
		}
	}

	for _, requested := range pr.RequestedReviewers {
		personID, err := p.resolveUser(ctx, cache, requested)
		if err != nil {
			p.log.WithError(err).WithField("pr", pr.GetNumber()).Warn("requested reviewer resolution failed")
			continue
		}
		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     models.RelReviewRequested,
			FromID:   personID,
			ToID:     prID,
			FromType: models.LabelPerson,
			ToType:   models.LabelPullRequest,
		}); err != nil {
			return err
		}
	}
	return nil
}
