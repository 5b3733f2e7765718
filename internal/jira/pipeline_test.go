package jira

import (
	"context"
	"strings"
	"testing"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/linking"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

// fakeAPI serves canned search results keyed by the issuetype in the JQL.
type fakeAPI struct {
	initiatives []jira.Issue
	epics       []jira.Issue

	initiativeSearchErr error
}

func (f *fakeAPI) ListProjects(ctx context.Context) (jira.ProjectList, error) {
	return nil, nil
}

func (f *fakeAPI) SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	switch {
	case strings.Contains(jql, "issuetype = Initiative"):
		return f.initiatives, f.initiativeSearchErr
	case strings.Contains(jql, "issuetype = Epic"):
		return f.epics, nil
	}
	return nil, nil
}

func (f *fakeAPI) FetchSprint(ctx context.Context, sprintID int) (*jira.Sprint, error) {
	return nil, nil
}

// fakeGraph is an in-memory Store that also serves the window tracker.
type fakeGraph struct {
	nodes map[string]map[string]any // "<label>/<id>" -> props
	rels  []models.Relationship
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]map[string]any)}
}

func (f *fakeGraph) FindPersonIDByEmail(ctx context.Context, email string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeGraph) MergePerson(ctx context.Context, p models.Person) error {
	return nil
}

func (f *fakeGraph) MergeIdentityBatch(ctx context.Context, links []graph.IdentityLink) error {
	return nil
}

func (f *fakeGraph) CreateNodeIfAbsent(ctx context.Context, label, id string, props map[string]any) (bool, error) {
	key := label + "/" + id
	if _, ok := f.nodes[key]; ok {
		return false, nil
	}
	f.nodes[key] = props
	return true, nil
}

func (f *fakeGraph) MergeNode(ctx context.Context, label, id string, props map[string]any) error {
	f.nodes[label+"/"+id] = props
	return nil
}

func (f *fakeGraph) MergeRelationship(ctx context.Context, rel models.Relationship) error {
	f.rels = append(f.rels, rel)
	return nil
}

func (f *fakeGraph) RootLastSyncedAt(ctx context.Context, rootID string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeGraph) SetRootLastSyncedAt(ctx context.Context, rootID string, ts time.Time) error {
	return nil
}

func (f *fakeGraph) hasRel(relType, fromID, toID string) bool {
	for _, rel := range f.rels {
		if rel.Type == relType && rel.FromID == fromID && rel.ToID == toID {
			return true
		}
	}
	return false
}

func newTestPipeline(api *fakeAPI, store *fakeGraph) *Pipeline {
	log := testLog()
	return &Pipeline{
		client:  api,
		store:   store,
		window:  syncstate.NewWindowTracker(store),
		stubs:   linking.NewStubResolver(store, log),
		opts:    Options{EpicLookbackDays: 90},
		baseURL: "https://acme.atlassian.net",
		log:     log,
	}
}

func TestProcessInitiativesWritesNodeAndProjectLink(t *testing.T) {
	api := &fakeAPI{initiatives: []jira.Issue{{
		ID:  "10000",
		Key: "PLAT-1",
		Fields: &jira.IssueFields{
			Summary: "Platform consolidation",
			Status:  &jira.Status{Name: "In Progress"},
			Labels:  []string{"platform"},
		},
	}}}
	store := newFakeGraph()
	p := newTestPipeline(api, store)
	cache := identity.NewPersonCache(store, testLog())
	projectID := models.ProjectID("PLAT")

	ids, err := p.processInitiatives(context.Background(), cache, projectID, "PLAT")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10000": "initiative_jira_10000"}, ids)

	props, ok := store.nodes[models.LabelInitiative+"/initiative_jira_10000"]
	require.True(t, ok)
	assert.Equal(t, "PLAT-1", props["key"])
	assert.Equal(t, "Platform consolidation", props["summary"])
	assert.Equal(t, "In Progress", props["status"])
	assert.Equal(t, models.SourceJira, props["source"])

	assert.True(t, store.hasRel(models.RelBelongsTo, "initiative_jira_10000", projectID))
}

// Trackers without the initiative hierarchy reject the issuetype clause; the
// pass is skipped and the project run continues.
func TestProcessInitiativesSearchFailureSkipsPass(t *testing.T) {
	api := &fakeAPI{initiativeSearchErr: assert.AnError}
	store := newFakeGraph()
	p := newTestPipeline(api, store)
	cache := identity.NewPersonCache(store, testLog())

	ids, err := p.processInitiatives(context.Background(), cache, models.ProjectID("PLAT"), "PLAT")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, store.nodes)
}

func TestProcessEpicsLinksParentInitiative(t *testing.T) {
	api := &fakeAPI{
		epics: []jira.Issue{
			{
				ID:  "10001",
				Key: "PLAT-2",
				Fields: &jira.IssueFields{
					Summary: "Unify auth",
					Parent:  &jira.Parent{ID: "10000", Key: "PLAT-1"},
				},
			},
			{
				ID:  "10002",
				Key: "PLAT-3",
				Fields: &jira.IssueFields{
					Summary: "Orphan epic",
				},
			},
		},
	}
	store := newFakeGraph()
	p := newTestPipeline(api, store)
	cache := identity.NewPersonCache(store, testLog())
	projectID := models.ProjectID("PLAT")

	initiativeIDs := map[string]string{"10000": models.InitiativeID("10000")}
	epicIDs, err := p.processEpics(context.Background(), cache, projectID, "PLAT", initiativeIDs)
	require.NoError(t, err)
	assert.Len(t, epicIDs, 2)

	// Epic under a known initiative links to it; both still link to the project.
	assert.True(t, store.hasRel(models.RelBelongsTo, "epic_jira_10001", "initiative_jira_10000"))
	assert.True(t, store.hasRel(models.RelBelongsTo, "epic_jira_10001", projectID))
	assert.True(t, store.hasRel(models.RelBelongsTo, "epic_jira_10002", projectID))
	assert.False(t, store.hasRel(models.RelBelongsTo, "epic_jira_10002", "initiative_jira_10000"))
}
