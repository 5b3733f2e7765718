package jira

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

// processSprints fetches every sprint referenced by the issue pass, writes
// the Sprint nodes, and then links the member issues. A sprint that can no
// longer be fetched loses only its own node; the issues keep their other
// relationships.
func (p *Pipeline) processSprints(ctx context.Context, sprintIssues map[int][]string) error {
	if len(sprintIssues) == 0 {
		return nil
	}
	p.log.WithField("count", len(sprintIssues)).Info("processing sprints")

	for id, issueIDs := range sprintIssues {
		sprint, err := p.client.FetchSprint(ctx, id)
		if err != nil {
			p.log.WithError(err).WithField("sprint", id).Warn("sprint fetch failed")
			continue
		}

		sprintID := models.SprintID(id)
		props := map[string]any{
			"name":   sprint.Name,
			"state":  sprint.State,
			"source": models.SourceJira,
		}
		if sprint.StartDate != nil {
			props["start_date"] = sprint.StartDate.UTC().Format(time.RFC3339)
		}
		if sprint.EndDate != nil {
			props["end_date"] = sprint.EndDate.UTC().Format(time.RFC3339)
		}
		if sprint.CompleteDate != nil {
			props["complete_date"] = sprint.CompleteDate.UTC().Format(time.RFC3339)
		}
		if err := p.store.MergeNode(ctx, models.LabelSprint, sprintID, props); err != nil {
			return fmt.Errorf("sprint %d: %w", id, err)
		}

		for _, issueID := range issueIDs {
			if err := p.store.MergeRelationship(ctx, models.Relationship{
				Type:     models.RelInSprint,
				FromID:   issueID,
				ToID:     sprintID,
				FromType: models.LabelIssue,
				ToType:   models.LabelSprint,
			}); err != nil {
				return fmt.Errorf("sprint %d: %w", id, err)
			}
		}
	}
	return nil
}
