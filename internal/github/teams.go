package github

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// processTeams writes Team nodes for teams with access to the repository,
// plus MEMBER_OF relationships for their members.
//
// The team upsert is authoritative: it overwrites all domain fields and the
// provenance tag, which is how Team stubs created by the work-item pipeline
// get enriched in place.
func (p *Pipeline) processTeams(ctx context.Context, cache *identity.PersonCache, repoID, owner string) (failed int, err error) {
	teams, err := p.client.ListRepositoryTeams(ctx, owner, p.repoName)
	if err != nil {
		// Team listing requires org scope; personal repositories have none.
		p.log.WithError(err).Info("could not fetch teams, skipping pass")
		return 0, nil
	}
	p.log.WithField("count", len(teams)).Info("processing teams")

	for _, team := range teams {
		name := team.GetName()
		if name == "" {
			continue
		}
		teamID := models.TeamID(name)

		props := map[string]any{
			"name":        name,
			"slug":        team.GetSlug(),
			"description": team.GetDescription(),
			"source":      models.SourceGitHub,
			"updated_at":  time.Now().UTC().Format(time.RFC3339),
		}
		if err := p.store.MergeNode(ctx, models.LabelTeam, teamID, props); err != nil {
			p.log.WithError(err).WithField("team", name).Warn("team write failed")
			failed++
			continue
		}

		rel := models.Relationship{
			Type:     models.RelPartOf,
			FromID:   teamID,
			ToID:     repoID,
			FromType: models.LabelTeam,
			ToType:   models.LabelRepository,
		}
		if err := p.store.MergeRelationship(ctx, rel); err != nil {
			p.log.WithError(err).WithField("team", name).Warn("team relationship write failed")
			failed++
			continue
		}

		if n, err := p.processTeamMembers(ctx, cache, owner, teamID, team.GetSlug()); err != nil {
			p.log.WithError(err).WithField("team", name).Warn("team member pass failed")
			failed += n + 1
		} else {
			failed += n
		}
	}
	return failed, nil
}

func (p *Pipeline) processTeamMembers(ctx context.Context, cache *identity.PersonCache, org, teamID, teamSlug string) (failed int, err error) {
	members, err := p.client.ListTeamMembers(ctx, org, teamSlug)
	if err != nil {
		return 0, fmt.Errorf("list team members: %w", err)
	}

	for _, member := range members {
		personID, err := p.resolveUser(ctx, cache, member)
		if err != nil {
			p.log.WithError(err).WithField("login", member.GetLogin()).Warn("skipping team member")
			failed++
			continue
		}

		rel := models.Relationship{
			Type:     models.RelMemberOf,
			FromID:   personID,
			ToID:     teamID,
			FromType: models.LabelPerson,
			ToType:   models.LabelTeam,
		}
		if err := p.store.MergeRelationship(ctx, rel); err != nil {
			p.log.WithError(err).WithField("login", member.GetLogin()).Warn("membership write failed")
			failed++
		}
	}
	return failed, nil
}
