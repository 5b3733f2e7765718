package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// processIssues ingests non-epic issues created or updated inside the fetch
// window. Issue nodes are keyed by issue key, so an authoritative write here
// converges onto any stub a code-host pipeline created from a commit message
// or branch name. Returns the sprint ids seen on issues, each with the issue
// node ids to link once the sprint nodes exist.
func (p *Pipeline) processIssues(ctx context.Context, cache *identity.PersonCache, projectID, projectKey string, epicIDs map[string]string) (map[int][]string, error) {
	since, err := p.window.ComputeFetchSince(ctx, projectID, p.opts.IssueLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("issues pass: %w", err)
	}

	jql := fmt.Sprintf(
		`project = %s AND issuetype != Epic AND (created >= %s OR updated >= %s) ORDER BY created DESC`,
		projectKey, dateClause(since), dateClause(since))
	issues, err := p.client.SearchIssues(ctx, jql)
	if err != nil {
		return nil, fmt.Errorf("issues pass: %w", err)
	}
	p.log.WithField("count", len(issues)).Info("processing issues")

	sprintIssues := make(map[int][]string)
	for i := range issues {
		issue := &issues[i]
		if issueTypeIsEpic(issue.Fields) {
			continue
		}
		issueID, sprintID, err := p.handleIssue(ctx, cache, projectID, epicIDs, issue)
		if err != nil {
			p.log.WithError(err).WithField("issue", issue.Key).Warn("issue write failed")
			continue
		}
		if sprintID != 0 {
			sprintIssues[sprintID] = append(sprintIssues[sprintID], issueID)
		}
	}
	return sprintIssues, nil
}

func (p *Pipeline) handleIssue(ctx context.Context, cache *identity.PersonCache, projectID string, epicIDs map[string]string, issue *jira.Issue) (string, int, error) {
	if issue.Key == "" {
		return "", 0, fmt.Errorf("issue missing key")
	}
	fields := issue.Fields
	if fields == nil {
		return "", 0, fmt.Errorf("issue %s has no fields", issue.Key)
	}
	issueID := models.IssueID(issue.Key)

	props := map[string]any{
		"key":     issue.Key,
		"summary": fields.Summary,
		"type":    fields.Type.Name,
		"source":  models.SourceJira,
		"url":     fmt.Sprintf("%s/browse/%s", p.baseURL, issue.Key),
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
	if resolved := time.Time(fields.Resolutiondate); !resolved.IsZero() {
		props["resolved_at"] = resolved.UTC().Format(time.RFC3339)
	}
	if err := p.store.MergeNode(ctx, models.LabelIssue, issueID, props); err != nil {
		return "", 0, err
	}

	if err := p.store.MergeRelationship(ctx, models.Relationship{
		Type:     models.RelBelongsTo,
		FromID:   issueID,
		ToID:     projectID,
		FromType: models.LabelIssue,
		ToType:   models.LabelProject,
	}); err != nil {
		return "", 0, err
	}

	// Parent linking covers only epic parents; sub-task parents stay flat.
	if parent := fields.Parent; parent != nil && parent.ID != "" {
		if epicID, ok := epicIDs[parent.ID]; ok {
			if err := p.store.MergeRelationship(ctx, models.Relationship{
				Type:     models.RelBelongsTo,
				FromID:   issueID,
				ToID:     epicID,
				FromType: models.LabelIssue,
				ToType:   models.LabelEpic,
			}); err != nil {
				return "", 0, err
			}
		}
	}

	p.linkPeople(ctx, cache, issueID, models.LabelIssue, fields)

	// The sprint relationship is deferred until the sprint pass has written
	// the Sprint node; only the membership is recorded here.
	sprintID := 0
	if fields.Sprint != nil && fields.Sprint.ID != 0 {
		sprintID = fields.Sprint.ID
	}
	return issueID, sprintID, nil
}

// issueTypeIsEpic guards against trackers where the JQL issuetype filter is
// localized and an epic slips through the issue search.
func issueTypeIsEpic(fields *jira.IssueFields) bool {
	return fields != nil && strings.EqualFold(fields.Type.Name, "Epic")
}
