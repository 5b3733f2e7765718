package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/linking"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

// processCommits ingests commits for every branch inside the fetch window.
// Commits already marked fully synced are skipped outright: no detail fetch,
// no handler invocation.
func (p *Pipeline) processCommits(ctx context.Context, cache *identity.PersonCache, repoID, owner string, branches []*github.Branch) (failed int, err error) {
	since, err := p.window.ComputeFetchSince(ctx, repoID, p.opts.CommitLookbackDays)
	if err != nil {
		return 0, fmt.Errorf("commits pass: %w", err)
	}

	synced, err := p.delta.SyncedCommits(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("commits pass: %w", err)
	}
	p.log.WithField("since", since.Format(time.RFC3339)).
		WithField("already_synced", len(synced)).
		Info("processing commits")

	for _, branch := range branches {
		commits, err := p.client.ListCommits(ctx, owner, p.repoName, branch.GetName(), since)
		if err != nil {
			p.log.WithError(err).WithField("branch", branch.GetName()).Warn("commit listing failed")
			failed++
			continue
		}

		skipped := 0
		for _, commit := range commits {
			if syncstate.ShouldSkipCommit(synced, commit.GetSHA()) {
				skipped++
				continue
			}
			if err := p.handleCommit(ctx, cache, owner, branch.GetName(), commit.GetSHA()); err != nil {
				p.log.WithError(err).WithField("sha", shortSHA(commit.GetSHA())).Warn("commit write failed")
				failed++
				continue
			}
			// Mark only once every dependent write landed; the set keeps
			// later branches containing the same commit from refetching it.
			synced[commit.GetSHA()] = struct{}{}
		}
		p.log.WithField("branch", branch.GetName()).
			WithField("fetched", len(commits)).
			WithField("skipped", skipped).
			Debug("branch commits processed")
	}
	return failed, nil
}

// handleCommit writes one commit and everything hanging off it: branch
// membership, author/committer links, file modifications, and issue-key
// references. The fully_synced marker is set last, only after every file
// write completed, so a partial failure leaves the commit eligible for a
// from-scratch retry (all writes are upserts, safe to repeat).
func (p *Pipeline) handleCommit(ctx context.Context, cache *identity.PersonCache, owner, branchName, sha string) error {
	detail, err := p.client.FetchCommit(ctx, owner, p.repoName, sha)
	if err != nil {
		return err
	}

	commitID := models.CommitID(sha)
	branchID := models.BranchID(p.repoName, branchName)

	props := map[string]any{
		"sha":       sha,
		"message":   detail.GetCommit().GetMessage(),
		"timestamp": detail.GetCommit().GetAuthor().GetDate().UTC().Format(time.RFC3339),
		"additions": detail.GetStats().GetAdditions(),
		"deletions": detail.GetStats().GetDeletions(),
		"url":       detail.GetHTMLURL(),
	}
	if err := p.store.MergeNode(ctx, models.LabelCommit, commitID, props); err != nil {
		return err
	}

	if err := p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelPartOf,
		FromID:   commitID,
		ToID:     branchID,
		FromType: models.LabelCommit,
		ToType:   models.LabelBranch,
	}); err != nil {
		return err
	}

	p.linkCommitPeople(ctx, cache, detail, commitID)

	if err := p.linkCommitIssues(ctx, detail.GetCommit().GetMessage(), branchName, commitID); err != nil {
		return err
	}

	for _, file := range detail.Files {
		if err := p.handleFileModification(ctx, commitID, file); err != nil {
			return fmt.Errorf("file %s: %w", file.GetFilename(), err)
		}
	}

	return p.store.MarkCommitFullySynced(ctx, commitID)
}

// linkCommitPeople resolves the author and committer and links them to the
// commit. Resolution failures skip the link but never fail the commit.
func (p *Pipeline) linkCommitPeople(ctx context.Context, cache *identity.PersonCache, detail *github.RepositoryCommit, commitID string) {
	type role struct {
		relType string
		user    *github.User
		gitSig  *github.CommitAuthor
	}
	roles := []role{
		{models.RelAuthored, detail.Author, detail.GetCommit().GetAuthor()},
		{models.RelCommitted, detail.Committer, detail.GetCommit().GetCommitter()},
	}

	for _, r := range roles {
		in := identity.Input{
			Email:    models.NormalizeEmail(r.gitSig.GetEmail()),
			Name:     r.gitSig.GetName(),
			Provider: models.SourceGitHub,
		}
		if r.user != nil {
			in.ExternalID = r.user.GetLogin()
			in.URL = r.user.GetHTMLURL()
			if in.Name == "" {
				in.Name = r.user.GetLogin()
			}
		}

		personID, _, err := cache.Resolve(ctx, in)
		if err != nil {
			if errors.Is(err, identity.ErrMissingIdentifier) {
				p.log.WithField("commit", shortSHA(detail.GetSHA())).Debug("no usable identity for commit signature, skipping link")
			} else {
				p.log.WithError(err).WithField("commit", shortSHA(detail.GetSHA())).Warn("identity resolution failed for commit signature")
			}
			continue
		}
		if in.ExternalID != "" {
			cache.QueueIdentityLink(personID, models.IdentityID(models.SourceGitHub, in.ExternalID), Provider, in.ExternalID, in.Email, time.Now().UTC())
		}

		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     r.relType,
			FromID:   personID,
			ToID:     commitID,
			FromType: models.LabelPerson,
			ToType:   models.LabelCommit,
		}); err != nil {
			p.log.WithError(err).WithField("commit", shortSHA(detail.GetSHA())).Warn("commit person link failed")
		}
	}
}

// linkCommitIssues extracts issue keys from the commit message and branch
// name, ensures a stub Issue exists for each, and links the commit to it.
func (p *Pipeline) linkCommitIssues(ctx context.Context, message, branchName, commitID string) error {
	keys := linking.ExtractIssueKeys(message)
	keys = append(keys, linking.ExtractIssueKeysFromBranch(branchName, p.opts.BranchIssuePatterns, p.log)...)

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		issueID, err := p.stubs.EnsureIssueStub(ctx, key)
		if err != nil {
			return err
		}
		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     models.RelReferences,
			FromID:   commitID,
			ToID:     issueID,
			FromType: models.LabelCommit,
			ToType:   models.LabelIssue,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) handleFileModification(ctx context.Context, commitID string, file *github.CommitFile) error {
	fileID := models.FileID(p.repoName, file.GetFilename())

	props := map[string]any{
		"path": file.GetFilename(),
	}
	if err := p.store.MergeNode(ctx, models.LabelFile, fileID, props); err != nil {
		return err
	}

	return p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelModifies,
		FromID:   commitID,
		ToID:     fileID,
		FromType: models.LabelCommit,
		ToType:   models.LabelFile,
		Props: map[string]any{
			"status":    file.GetStatus(),
			"additions": file.GetAdditions(),
			"deletions": file.GetDeletions(),
		},
	})
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
