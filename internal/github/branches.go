package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

// processBranches writes Branch nodes for branches that changed since the
// last run and marks recorded branches that vanished from the remote as
// deleted. Returns the surviving branch list for the commit pass.
func (p *Pipeline) processBranches(ctx context.Context, repoID string, owner string) (branches []*github.Branch, failed int, err error) {
	remote, err := p.client.ListBranches(ctx, owner, p.repoName)
	if err != nil {
		return nil, 0, fmt.Errorf("branches pass: %w", err)
	}

	recorded, err := p.delta.Branches(ctx, repoID)
	if err != nil {
		return nil, 0, fmt.Errorf("branches pass: %w", err)
	}

	var toProcess []*github.Branch
	for _, branch := range remote {
		if syncstate.BranchNeedsSync(recorded, branch.GetName(), branch.GetCommit().GetSHA()) {
			toProcess = append(toProcess, branch)
		}
	}
	p.log.WithField("total", len(remote)).
		WithField("changed", len(toProcess)).
		Info("processing branches")

	for _, branch := range toProcess {
		if err := p.handleBranch(ctx, repoID, branch); err != nil {
			p.log.WithError(err).WithField("branch", branch.GetName()).Warn("branch write failed")
			failed++
		}
	}

	// Recorded branches missing from the remote listing were deleted
	// upstream. Mark them so the delta filter reprocesses a resurrection.
	remoteNames := make(map[string]struct{}, len(remote))
	for _, branch := range remote {
		remoteNames[branch.GetName()] = struct{}{}
	}
	for name, meta := range recorded {
		if _, ok := remoteNames[name]; ok || meta.IsDeleted {
			continue
		}
		branchID := models.BranchID(p.repoName, name)
		if err := p.store.MergeNode(ctx, models.LabelBranch, branchID, map[string]any{"is_deleted": true}); err != nil {
			p.log.WithError(err).WithField("branch", name).Warn("deleted-branch marking failed")
			failed++
		}
	}

	return remote, failed, nil
}

func (p *Pipeline) handleBranch(ctx context.Context, repoID string, branch *github.Branch) error {
	branchID := models.BranchID(p.repoName, branch.GetName())

	props := map[string]any{
		"name":            branch.GetName(),
		"last_commit_sha": branch.GetCommit().GetSHA(),
		"is_deleted":      false,
		"is_default":      branch.GetName() == p.defaultBranch,
		"updated_at":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.store.MergeNode(ctx, models.LabelBranch, branchID, props); err != nil {
		return err
	}

	return p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelBranchOf,
		FromID:   branchID,
		ToID:     repoID,
		FromType: models.LabelBranch,
		ToType:   models.LabelRepository,
	})
}
