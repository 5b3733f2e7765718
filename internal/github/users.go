package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// MapPermissionsToGeneral maps GitHub's permission flags to the general
// access vocabulary used on COLLABORATES_ON relationships.
func MapPermissionsToGeneral(permissions map[string]bool) string {
	for _, perm := range []string{"admin", "maintain", "push"} {
		if permissions[perm] {
			return "WRITE"
		}
	}
	// pull, triage, or any read-only access
	return "READ"
}

// resolveUser runs identity resolution for a GitHub user and queues the
// IdentityMapping refresh. Returns the canonical person id.
func (p *Pipeline) resolveUser(ctx context.Context, cache *identity.PersonCache, user *github.User) (string, error) {
	login := user.GetLogin()
	if login == "" {
		return "", fmt.Errorf("github user without login: %w", identity.ErrMissingIdentifier)
	}

	name := user.GetName()
	if name == "" {
		name = login
	}
	email := models.NormalizeEmail(user.GetEmail())
	url := user.GetHTMLURL()
	if url == "" {
		url = "https://github.com/" + login
	}

	personID, isNew, err := cache.Resolve(ctx, identity.Input{
		Email:      email,
		Name:       name,
		Provider:   models.SourceGitHub,
		ExternalID: login,
		URL:        url,
	})
	if err != nil {
		return "", fmt.Errorf("resolve github user %s: %w", login, err)
	}
	if isNew {
		p.log.WithField("person_id", personID).Debug("created person for github user")
	}

	cache.QueueIdentityLink(personID, models.IdentityID(models.SourceGitHub, login), Provider, login, email, time.Now().UTC())
	return personID, nil
}

// processCollaborators writes collaborator persons and their access
// relationships to the repository.
//
// Identity-refresh work is bounded by the freshness window: users whose
// IdentityMapping was refreshed recently skip the per-user profile fetch, but
// their COLLABORATES_ON relationship is still created unconditionally. Above
// the bulk threshold, profile fetches are skipped for the whole batch and
// the sparse listing data is used as-is.
func (p *Pipeline) processCollaborators(ctx context.Context, cache *identity.PersonCache, repoID, owner, name string) (failed int, err error) {
	collaborators, err := p.client.ListCollaborators(ctx, owner, name)
	if err != nil {
		return 0, fmt.Errorf("collaborators pass: %w", err)
	}
	p.log.WithField("count", len(collaborators)).Info("processing collaborators")

	var logins []string
	byLogin := make(map[string]*github.User, len(collaborators))
	for _, user := range collaborators {
		if user.GetType() != "User" {
			continue
		}
		logins = append(logins, user.GetLogin())
		byLogin[user.GetLogin()] = user
	}

	stale, skipped, err := p.delta.StaleIdentities(ctx, Provider, logins, p.opts.IdentityRefreshDays)
	if err != nil {
		return 0, fmt.Errorf("collaborators pass: %w", err)
	}
	if skipped > 0 {
		p.log.WithField("skipped", skipped).Info("collaborators with fresh identity data")
	}

	// Per-user profile fetches are only worth it for small batches of
	// stale users; past the threshold the sparse records are used as-is.
	needsFetch := make(map[string]struct{}, len(stale))
	if len(logins) <= p.opts.BulkUserThreshold {
		for _, login := range stale {
			needsFetch[login] = struct{}{}
		}
	}

	for _, login := range logins {
		user := byLogin[login]
		if _, ok := needsFetch[login]; ok {
			full, err := p.client.FetchUser(ctx, login)
			if err != nil {
				p.log.WithError(err).WithField("login", login).Warn("profile fetch failed, using sparse record")
			} else {
				full.Permissions = user.Permissions
				user = full
			}
		}

		personID, err := p.resolveUser(ctx, cache, user)
		if err != nil {
			p.log.WithError(err).WithField("login", login).Warn("skipping collaborator")
			failed++
			continue
		}

		rel := models.Relationship{
			Type:     models.RelCollaboratesOn,
			FromID:   personID,
			ToID:     repoID,
			FromType: models.LabelPerson,
			ToType:   models.LabelRepository,
			Props: map[string]any{
				"access": MapPermissionsToGeneral(user.Permissions),
			},
		}
		if err := p.store.MergeRelationship(ctx, rel); err != nil {
			p.log.WithError(err).WithField("login", login).Warn("collaborator relationship write failed")
			failed++
		}
	}
	return failed, nil
}
