package linking

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/sirupsen/logrus"
)

// StubStore is the slice of the graph store stub creation writes through.
type StubStore interface {
	CreateNodeIfAbsent(ctx context.Context, label, id string, props map[string]any) (bool, error)
}

// StubResolver creates minimally-populated placeholder nodes for entities one
// pipeline references before the other pipeline has materialized them.
//
// A stub carries a provenance marker (source = "<origin>_reference") and only
// its natural key; enrichment happens exclusively through the authoritative
// pipeline's own upsert at the same canonical id, which overwrites all domain
// fields and the provenance tag. The two writers never coordinate directly:
// convergence comes from identical id derivation plus idempotent upserts.
type StubResolver struct {
	store StubStore
	log   *logrus.Entry
	now   func() time.Time
}

// NewStubResolver creates a resolver over the given store.
func NewStubResolver(store StubStore, log *logrus.Entry) *StubResolver {
	return &StubResolver{store: store, log: log, now: time.Now}
}

// EnsureIssueStub makes sure an Issue node exists for a tracker key found in
// a commit message or branch name, and returns its canonical id. Existing
// nodes — stub or enriched — are never modified.
func (r *StubResolver) EnsureIssueStub(ctx context.Context, issueKey string) (string, error) {
	issueID := models.IssueID(issueKey)

	props := map[string]any{
		"key":        issueKey,
		"source":     models.SourceGitHubRef,
		"created_at": r.now().UTC().Format(time.RFC3339),
	}
	created, err := r.store.CreateNodeIfAbsent(ctx, models.LabelIssue, issueID, props)
	if err != nil {
		return "", fmt.Errorf("ensure issue stub %s: %w", issueKey, err)
	}
	if created {
		r.log.WithField("issue_key", issueKey).Debug("created stub Issue node, will be enriched when tracker data loads")
	}
	return issueID, nil
}

// EnsureTeamStub makes sure a Team node exists for a team name referenced by
// a work item, and returns its canonical id. The id derivation matches the
// authoritative team handler's, so the later team upsert enriches this node
// in place.
func (r *StubResolver) EnsureTeamStub(ctx context.Context, teamName string) (string, error) {
	teamID := models.TeamID(teamName)

	props := map[string]any{
		"name":       teamName,
		"source":     models.SourceJiraRef,
		"created_at": r.now().UTC().Format(time.RFC3339),
	}
	created, err := r.store.CreateNodeIfAbsent(ctx, models.LabelTeam, teamID, props)
	if err != nil {
		return "", fmt.Errorf("ensure team stub %q: %w", teamName, err)
	}
	if created {
		r.log.WithField("team", teamName).Debug("created stub Team node, will be enriched when code-host data loads")
	}
	return teamID, nil
}
