package jira

import (
	"context"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/sirupsen/logrus"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/linking"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

// Options tunes one pipeline run.
type Options struct {
	// Projects to ingest, by key. Empty means every visible project.
	Projects          []string
	EpicLookbackDays  int
	IssueLookbackDays int
	// Custom field holding the owning team name on epics.
	EpicTeamField string
}

// API is the slice of the remote client the pipeline calls, an interface so
// pipeline passes can be exercised against fakes.
type API interface {
	ListProjects(ctx context.Context) (jira.ProjectList, error)
	SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error)
	FetchSprint(ctx context.Context, sprintID int) (*jira.Sprint, error)
}

// Store is the slice of the graph store the pipeline writes through.
type Store interface {
	identity.CacheStore
	linking.StubStore
	MergeNode(ctx context.Context, label, id string, props map[string]any) error
	MergeRelationship(ctx context.Context, rel models.Relationship) error
}

// Pipeline ingests one project at a time, sequentially: initiatives, epics,
// issues, then the sprints the issues referenced. Projects are independent
// units; a fatal failure in one aborts only that project's run.
type Pipeline struct {
	client API
	store  Store
	window *syncstate.WindowTracker
	stubs  *linking.StubResolver
	opts   Options
	log    *logrus.Entry

	baseURL string
}

// NewPipeline wires a pipeline over an API client and a graph store.
func NewPipeline(client *Client, store *graph.Store, baseURL string, opts Options, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		client:  client,
		store:   store,
		window:  syncstate.NewWindowTracker(store),
		stubs:   linking.NewStubResolver(store, log),
		opts:    opts,
		baseURL: baseURL,
		log:     log,
	}
}

// Run processes every configured project.
func (p *Pipeline) Run(ctx context.Context) error {
	projects, err := p.client.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("project discovery: %w", err)
	}

	wanted := make(map[string]struct{}, len(p.opts.Projects))
	for _, key := range p.opts.Projects {
		wanted[key] = struct{}{}
	}

	var failed, total int
	for i := range projects {
		project := &projects[i]
		if len(wanted) > 0 {
			if _, ok := wanted[project.Key]; !ok {
				continue
			}
		}
		total++
		if err := p.ProcessProject(ctx, project.Key, project.Name); err != nil {
			p.log.WithError(err).WithField("project", project.Key).Error("project run aborted")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed", failed, total)
	}
	return nil
}

// ProcessProject runs the full ingestion sequence for one project. The root
// Project node is written first and is fatal on failure; the last_synced_at
// marker advances only after every pass completed without a fatal error.
func (p *Pipeline) ProcessProject(ctx context.Context, key, name string) error {
	projectID := models.ProjectID(key)
	log := p.log.WithField("project", key)
	log.Info("processing project")

	props := map[string]any{
		"key":    key,
		"name":   name,
		"source": models.SourceJira,
		"url":    fmt.Sprintf("%s/browse/%s", p.baseURL, key),
	}
	if err := p.store.MergeNode(ctx, models.LabelProject, projectID, props); err != nil {
		return fmt.Errorf("root project node: %w", err)
	}

	cache := identity.NewPersonCache(p.store, log)

	initiativeIDs, err := p.processInitiatives(ctx, cache, projectID, key)
	if err != nil {
		return err
	}

	epicIDs, err := p.processEpics(ctx, cache, projectID, key, initiativeIDs)
	if err != nil {
		return err
	}

	sprintIssues, err := p.processIssues(ctx, cache, projectID, key, epicIDs)
	if err != nil {
		return err
	}

	if err := p.processSprints(ctx, sprintIssues); err != nil {
		return err
	}

	if err := cache.Flush(ctx); err != nil {
		return err
	}
	stats := cache.Stats()
	log.WithField("hits", stats.Hits).
		WithField("misses", stats.Misses).
		WithField("hit_rate", fmt.Sprintf("%.1f%%", stats.HitRate*100)).
		Info("person cache stats")

	if err := p.window.UpdateLastSyncedAt(ctx, projectID); err != nil {
		return err
	}
	log.Info("project run complete")
	return nil
}

// resolvePerson runs identity resolution for a Jira user and queues the
// IdentityMapping refresh.
func (p *Pipeline) resolvePerson(ctx context.Context, cache *identity.PersonCache, user *jira.User) (string, error) {
	if user == nil {
		return "", identity.ErrMissingIdentifier
	}

	externalID := user.AccountID
	if externalID == "" {
		externalID = user.Name
	}
	name := user.DisplayName
	if name == "" {
		name = externalID
	}
	email := models.NormalizeEmail(user.EmailAddress)

	personID, _, err := cache.Resolve(ctx, identity.Input{
		Email:      email,
		Name:       name,
		Provider:   models.SourceJira,
		ExternalID: externalID,
	})
	if err != nil {
		return "", err
	}
	if externalID != "" {
		cache.QueueIdentityLink(personID, models.IdentityID(models.SourceJira, externalID), Provider, externalID, email, time.Now().UTC())
	}
	return personID, nil
}
