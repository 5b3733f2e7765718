package github

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/identity"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/collabgraph/collabgraph-go/internal/syncstate"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

// fakeAPI overrides only the calls under test; everything else panics via the
// embedded nil interface.
type fakeAPI struct {
	API
	collaborators []*github.User
	fetchedLogins []string
}

func (f *fakeAPI) ListCollaborators(ctx context.Context, owner, name string) ([]*github.User, error) {
	return f.collaborators, nil
}

func (f *fakeAPI) FetchUser(ctx context.Context, login string) (*github.User, error) {
	f.fetchedLogins = append(f.fetchedLogins, login)
	return &github.User{
		Login: github.String(login),
		Name:  github.String("Full " + login),
	}, nil
}

// fakeGraph is an in-memory Store that also serves the delta filter's reads.
type fakeGraph struct {
	persons   map[string]models.Person
	rels      []models.Relationship
	freshUser map[string]struct{}
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		persons:   make(map[string]models.Person),
		freshUser: make(map[string]struct{}),
	}
}

func (f *fakeGraph) FindPersonIDByEmail(ctx context.Context, email string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeGraph) MergePerson(ctx context.Context, p models.Person) error {
	f.persons[p.ID] = p
	return nil
}

func (f *fakeGraph) MergeIdentityBatch(ctx context.Context, links []graph.IdentityLink) error {
	return nil
}

func (f *fakeGraph) CreateNodeIfAbsent(ctx context.Context, label, id string, props map[string]any) (bool, error) {
	return true, nil
}

func (f *fakeGraph) MergeNode(ctx context.Context, label, id string, props map[string]any) error {
	return nil
}

func (f *fakeGraph) MergeRelationship(ctx context.Context, rel models.Relationship) error {
	f.rels = append(f.rels, rel)
	return nil
}

func (f *fakeGraph) MarkCommitFullySynced(ctx context.Context, commitID string) error {
	return nil
}

func (f *fakeGraph) FullySyncedCommitSHAs(ctx context.Context, repoID string) (map[string]struct{}, error) {
	return nil, nil
}

func (f *fakeGraph) TerminalPullRequestNumbers(ctx context.Context, repoID string) (map[int]struct{}, error) {
	return nil, nil
}

func (f *fakeGraph) BranchMetadata(ctx context.Context, repoID string) (map[string]models.BranchMeta, error) {
	return nil, nil
}

func (f *fakeGraph) FreshIdentityUsernames(ctx context.Context, provider string, usernames []string, window time.Duration) (map[string]struct{}, error) {
	return f.freshUser, nil
}

func (f *fakeGraph) relsOfType(relType string) []models.Relationship {
	var out []models.Relationship
	for _, rel := range f.rels {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

func collaborator(login string, permissions map[string]bool) *github.User {
	return &github.User{
		Login:       github.String(login),
		Type:        github.String("User"),
		Permissions: permissions,
	}
}

// A collaborator whose identity was refreshed recently skips the per-user
// profile fetch, but the access relationship is still written for every
// collaborator in the listing.
func TestProcessCollaboratorsFreshIdentityStillLinked(t *testing.T) {
	api := &fakeAPI{collaborators: []*github.User{
		collaborator("alice", map[string]bool{"push": true}),
		collaborator("bob", map[string]bool{"pull": true}),
	}}
	store := newFakeGraph()
	store.freshUser["alice"] = struct{}{}

	p := &Pipeline{
		client: api,
		store:  store,
		delta:  syncstate.NewDeltaFilter(store),
		opts: Options{
			IdentityRefreshDays: 7,
			BulkUserThreshold:   20,
		},
		log:      testLog(),
		repoName: "api",
	}
	cache := identity.NewPersonCache(store, testLog())
	repoID := models.RepositoryID("acme", "api")

	failed, err := p.processCollaborators(context.Background(), cache, repoID, "acme", "api")
	require.NoError(t, err)
	assert.Zero(t, failed)

	// Only the stale collaborator got a profile fetch.
	assert.Equal(t, []string{"bob"}, api.fetchedLogins)

	// Both collaborators got their relationship, fresh-skipped one included.
	rels := store.relsOfType(models.RelCollaboratesOn)
	require.Len(t, rels, 2)
	byPerson := make(map[string]models.Relationship, len(rels))
	for _, rel := range rels {
		byPerson[rel.FromID] = rel
	}

	alice, ok := byPerson["person_github_alice"]
	require.True(t, ok, "fresh-skipped collaborator must still be linked")
	assert.Equal(t, repoID, alice.ToID)
	assert.Equal(t, "WRITE", alice.Props["access"])

	bob, ok := byPerson["person_github_bob"]
	require.True(t, ok)
	assert.Equal(t, "READ", bob.Props["access"])
}

// Above the bulk threshold no profile fetches happen at all, even for stale
// collaborators, and relationships are still written from the sparse records.
func TestProcessCollaboratorsBulkThresholdSkipsFetches(t *testing.T) {
	api := &fakeAPI{collaborators: []*github.User{
		collaborator("alice", map[string]bool{"admin": true}),
		collaborator("bob", map[string]bool{"pull": true}),
		collaborator("carol", map[string]bool{"pull": true}),
	}}
	store := newFakeGraph()

	p := &Pipeline{
		client: api,
		store:  store,
		delta:  syncstate.NewDeltaFilter(store),
		opts: Options{
			IdentityRefreshDays: 7,
			BulkUserThreshold:   2,
		},
		log:      testLog(),
		repoName: "api",
	}
	cache := identity.NewPersonCache(store, testLog())

	failed, err := p.processCollaborators(context.Background(), cache,
		models.RepositoryID("acme", "api"), "acme", "api")
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Empty(t, api.fetchedLogins)
	assert.Len(t, store.relsOfType(models.RelCollaboratesOn), 3)
}
