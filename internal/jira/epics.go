package jira

import (
	"context"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// processEpics ingests epics created or updated inside the fetch window.
// Epics whose parent resolved to an initiative in the current window get a
// BELONGS_TO link to it. Returns a map from the tracker's internal epic issue
// id to the epic node id, for parent linking in the issue pass.
func (p *Pipeline) processEpics(ctx context.Context, cache *identity.PersonCache, projectID, projectKey string, initiativeIDs map[string]string) (map[string]string, error) {
	since, err := p.window.ComputeFetchSince(ctx, projectID, p.opts.EpicLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("epics pass: %w", err)
	}

	jql := fmt.Sprintf(
		`project = %s AND issuetype = Epic AND (created >= %s OR updated >= %s) ORDER BY created DESC`,
		projectKey, dateClause(since), dateClause(since))
	epics, err := p.client.SearchIssues(ctx, jql)
	if err != nil {
		return nil, fmt.Errorf("epics pass: %w", err)
	}
	p.log.WithField("count", len(epics)).Info("processing epics")

	epicIDs := make(map[string]string, len(epics))
	for i := range epics {
		epic := &epics[i]
		epicID, err := p.handleEpic(ctx, cache, projectID, initiativeIDs, epic)
		if err != nil {
			p.log.WithError(err).WithField("epic", epic.Key).Warn("epic write failed")
			continue
		}
		epicIDs[epic.ID] = epicID
	}
	return epicIDs, nil
}

func (p *Pipeline) handleEpic(ctx context.Context, cache *identity.PersonCache, projectID string, initiativeIDs map[string]string, epic *jira.Issue) (string, error) {
	if epic.ID == "" || epic.Key == "" {
		return "", fmt.Errorf("epic missing id or key")
	}
	fields := epic.Fields
	if fields == nil {
		return "", fmt.Errorf("epic %s has no fields", epic.Key)
	}
	epicID := models.EpicID(epic.ID)

	props := map[string]any{
		"key":     epic.Key,
		"summary": fields.Summary,
		"source":  models.SourceJira,
		"url":     fmt.Sprintf("%s/browse/%s", p.baseURL, epic.Key),
	}
	if fields.Status != nil {
		props["status"] = fields.Status.Name
	}
	if fields.Priority != nil {
		props["priority"] = fields.Priority.Name
	}
	if created := time.Time(fields.Created); !created.IsZero() {
		props["created_at"] = created.UTC().Format(time.RFC3339)
	}
	if due := time.Time(fields.Duedate); !due.IsZero() {
		props["due_date"] = due.UTC().Format("2006-01-02")
	}
	if err := p.store.MergeNode(ctx, models.LabelEpic, epicID, props); err != nil {
		return "", err
	}

	if err := p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelBelongsTo,
		FromID:   epicID,
		ToID:     projectID,
		FromType: models.LabelEpic,
		ToType:   models.LabelProject,
	}); err != nil {
		return "", err
	}

	if parent := fields.Parent; parent != nil && parent.ID != "" {
		if initiativeID, ok := initiativeIDs[parent.ID]; ok {
			if err := p.store.MergeRelationship(ctx, models.Relationship{
				Type:     models.RelBelongsTo,
				FromID:   epicID,
				ToID:     initiativeID,
				FromType: models.LabelEpic,
				ToType:   models.LabelInitiative,
			}); err != nil {
				return "", err
			}
		}
	}

	// The owning team is a cross-pipeline reference: the code-host pipeline
	// is authoritative for teams, so only a stub is ensured here.
	if teamName := customFieldString(fields, p.opts.EpicTeamField); teamName != "" {
		teamID, err := p.stubs.EnsureTeamStub(ctx, teamName)
		if err != nil {
			return "", err
		}
		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     models.RelOwnedBy,
			FromID:   epicID,
			ToID:     teamID,
			FromType: models.LabelEpic,
			ToType:   models.LabelTeam,
		}); err != nil {
			return "", err
		}
	}

	p.linkPeople(ctx, cache, epicID, models.LabelEpic, fields)
	return epicID, nil
}

// linkPeople links assignee and reporter to a work item. Resolution failures
// skip the link but never fail the item.
func (p *Pipeline) linkPeople(ctx context.Context, cache *identity.PersonCache, itemID, itemLabel string, fields *jira.IssueFields) {
	link := func(user *jira.User, relType string) {
		if user == nil {
			return
		}
		personID, err := p.resolvePerson(ctx, cache, user)
		if err != nil {
			p.log.WithError(err).WithField("item", itemID).Warn("identity resolution failed, skipping link")
			return
		}
		if err := p.store.MergeRelationship(ctx, models.Relationship{
			Type:     relType,
			FromID:   itemID,
			ToID:     personID,
			FromType: itemLabel,
			ToType:   models.LabelPerson,
		}); err != nil {
			p.log.WithError(err).WithField("item", itemID).Warn("person link failed")
		}
	}
	link(fields.Assignee, models.RelAssignedTo)
	link(fields.Reporter, models.RelReportedBy)
}

// customFieldString digs a display string out of an issue's custom fields.
// Team-style fields arrive either as a plain string or as an option object
// with a value/name key.
func customFieldString(fields *jira.IssueFields, key string) string {
	if fields == nil || key == "" {
		return ""
	}
	raw, ok := fields.Unknowns[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"value", "name"} {
			if s, ok := v[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
