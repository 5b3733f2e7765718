package jira

import (
	"context"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// processInitiatives ingests initiatives created or updated inside the fetch
// window. Returns a map from the tracker's internal issue id to the
// initiative node id, consumed by the epic pass for parent linking.
//
// Trackers without the initiative hierarchy reject the issuetype clause, so a
// failed search skips the pass instead of aborting the project.
func (p *Pipeline) processInitiatives(ctx context.Context, cache *identity.PersonCache, projectID, projectKey string) (map[string]string, error) {
	since, err := p.window.ComputeFetchSince(ctx, projectID, p.opts.EpicLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("initiatives pass: %w", err)
	}

	jql := fmt.Sprintf(
		`project = %s AND issuetype = Initiative AND (created >= %s OR updated >= %s) ORDER BY created DESC`,
		projectKey, dateClause(since), dateClause(since))
	initiatives, err := p.client.SearchIssues(ctx, jql)
	if err != nil {
		p.log.WithError(err).Info("initiative search failed, skipping pass")
		return map[string]string{}, nil
	}
	p.log.WithField("count", len(initiatives)).Info("processing initiatives")

	initiativeIDs := make(map[string]string, len(initiatives))
	for i := range initiatives {
		initiative := &initiatives[i]
		initiativeID, err := p.handleInitiative(ctx, cache, projectID, initiative)
		if err != nil {
			p.log.WithError(err).WithField("initiative", initiative.Key).Warn("initiative write failed")
			continue
		}
		initiativeIDs[initiative.ID] = initiativeID
	}
	return initiativeIDs, nil
}

func (p *Pipeline) handleInitiative(ctx context.Context, cache *identity.PersonCache, projectID string, initiative *jira.Issue) (string, error) {
	if initiative.ID == "" || initiative.Key == "" {
		return "", fmt.Errorf("initiative missing id or key")
	}
	fields := initiative.Fields
	if fields == nil {
		return "", fmt.Errorf("initiative %s has no fields", initiative.Key)
	}
	initiativeID := models.InitiativeID(initiative.ID)

	props := map[string]any{
		"key":     initiative.Key,
		"summary": fields.Summary,
		"source":  models.SourceJira,
		"url":     fmt.Sprintf("%s/browse/%s", p.baseURL, initiative.Key),
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
	if updated := time.Time(fields.Updated); !updated.IsZero() {
		props["updated_at"] = updated.UTC().Format(time.RFC3339)
	}
	if due := time.Time(fields.Duedate); !due.IsZero() {
		props["due_date"] = due.UTC().Format("2006-01-02")
	}
	if len(fields.Labels) > 0 {
		props["labels"] = fields.Labels
	}
	if names := componentNames(fields.Components); len(names) > 0 {
		props["components"] = names
	}
	if err := p.store.MergeNode(ctx, models.LabelInitiative, initiativeID, props); err != nil {
		return "", err
	}

	if err := p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelBelongsTo,
		FromID:   initiativeID,
		ToID:     projectID,
		FromType: models.LabelInitiative,
		ToType:   models.LabelProject,
	}); err != nil {
		return "", err
	}

	p.linkPeople(ctx, cache, initiativeID, models.LabelInitiative, fields)
	return initiativeID, nil
}

func componentNames(components []*jira.Component) []string {
	var names []string
	for _, c := range components {
		if c != nil && c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}
