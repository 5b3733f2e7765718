package identity

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/models"
)

// fakeStore is an in-memory CacheStore that counts round trips.
type fakeStore struct {
	persons      map[string]models.Person // keyed by node id
	byEmail      map[string]string        // normalized email -> node id
	emailLookups int
	batches      [][]graph.IdentityLink
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons: make(map[string]models.Person),
		byEmail: make(map[string]string),
	}
}

func (f *fakeStore) FindPersonIDByEmail(ctx context.Context, email string) (string, bool, error) {
	f.emailLookups++
	id, ok := f.byEmail[email]
	return id, ok, nil
}

func (f *fakeStore) MergePerson(ctx context.Context, p models.Person) error {
	f.persons[p.ID] = p
	if p.Email != "" {
		f.byEmail[p.Email] = p.ID
	}
	return nil
}

func (f *fakeStore) MergeIdentityBatch(ctx context.Context, links []graph.IdentityLink) error {
	f.batches = append(f.batches, links)
	return nil
}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestResolverEmailIsMasterKey(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	id, isNew, err := r.Resolve(ctx, Input{Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "person_alice@example.com", id)

	// Same email from another provider resolves to the same node.
	again, isNew, err := r.Resolve(ctx, Input{
		Email:      "alice@example.com",
		Provider:   models.SourceJira,
		ExternalID: "acct-123",
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, again)
	assert.Len(t, store.persons, 1)
}

func TestResolverEmailNormalization(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	id1, _, err := r.Resolve(ctx, Input{Email: "Bob@Example.COM "})
	require.NoError(t, err)
	id2, isNew, err := r.Resolve(ctx, Input{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id1, id2)
	assert.Equal(t, "person_bob@example.com", id1)
}

func TestResolverExistingEmailWinsOverCanonicalID(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	// A person created before the email was known holds a provider-derived id.
	require.NoError(t, store.MergePerson(ctx, models.Person{
		ID:    "person_github_carol",
		Email: "carol@example.com",
	}))

	id, isNew, err := NewResolver(store).Resolve(ctx, Input{Email: "carol@example.com"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "person_github_carol", id)
}

func TestResolverProviderFallback(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	id, isNew, err := r.Resolve(ctx, Input{Provider: models.SourceGitHub, ExternalID: "dave"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "person_github_dave", id)
	assert.Zero(t, store.emailLookups)
}

func TestResolverMissingIdentifier(t *testing.T) {
	store := newFakeStore()
	_, _, err := NewResolver(store).Resolve(context.Background(), Input{Name: "Ghost"})
	assert.ErrorIs(t, err, ErrMissingIdentifier)
	assert.Empty(t, store.persons)
}

func TestCacheMemoizesByEmail(t *testing.T) {
	store := newFakeStore()
	cache := NewPersonCache(store, testLog())
	ctx := context.Background()

	in := Input{Email: "alice@example.com", Name: "Alice"}
	id1, isNew, err := cache.Resolve(ctx, in)
	require.NoError(t, err)
	assert.True(t, isNew)

	id2, isNew, err := cache.Resolve(ctx, in)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id1, id2)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.StoreQueries)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1, store.emailLookups)
}

func TestCacheMemoizesByProviderWhenEmailAbsent(t *testing.T) {
	store := newFakeStore()
	cache := NewPersonCache(store, testLog())
	ctx := context.Background()

	in := Input{Provider: models.SourceGitHub, ExternalID: "dave"}
	id1, _, err := cache.Resolve(ctx, in)
	require.NoError(t, err)
	id2, isNew, err := cache.Resolve(ctx, in)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, cache.Stats().Hits)
}

func TestCacheCrossKeyHit(t *testing.T) {
	store := newFakeStore()
	cache := NewPersonCache(store, testLog())
	ctx := context.Background()

	// First sighting carries both keys; a later email-less sighting of the
	// same provider login must hit.
	id1, _, err := cache.Resolve(ctx, Input{
		Email:      "erin@example.com",
		Provider:   models.SourceGitHub,
		ExternalID: "erin",
	})
	require.NoError(t, err)

	id2, _, err := cache.Resolve(ctx, Input{Provider: models.SourceGitHub, ExternalID: "erin"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, cache.Stats().Hits)
	assert.Equal(t, 1, store.emailLookups)
}

func TestCacheMatchesResolver(t *testing.T) {
	ctx := context.Background()
	inputs := []Input{
		{Email: "alice@example.com", Name: "Alice"},
		{Provider: models.SourceGitHub, ExternalID: "dave"},
		{Email: "Carol@Example.com", Provider: models.SourceJira, ExternalID: "acct-1"},
	}
	for _, in := range inputs {
		plain, _, err := NewResolver(newFakeStore()).Resolve(ctx, in)
		require.NoError(t, err)
		cached, _, err := NewPersonCache(newFakeStore(), testLog()).Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, plain, cached)
	}
}

func TestQueueIdentityLinkIdempotent(t *testing.T) {
	cache := NewPersonCache(newFakeStore(), testLog())
	ts := time.Now().UTC()

	cache.QueueIdentityLink("person_a", "identity_github_a", "GitHub", "a", "", ts)
	cache.QueueIdentityLink("person_a", "identity_github_a", "GitHub", "a", "", ts)
	assert.Equal(t, 1, cache.Stats().Pending)
}

func TestFlushBatchesAndClearsQueue(t *testing.T) {
	store := newFakeStore()
	cache := NewPersonCache(store, testLog())
	ctx := context.Background()
	ts := time.Now().UTC()

	cache.QueueIdentityLink("person_a", "identity_github_a", "GitHub", "a", "a@example.com", ts)
	cache.QueueIdentityLink("person_b", "identity_jira_b", "Jira", "b", "", ts)
	require.NoError(t, cache.Flush(ctx))

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)
	assert.Zero(t, cache.Stats().Pending)

	// A flushed identity id stays settled across flush cycles.
	cache.QueueIdentityLink("person_a", "identity_github_a", "GitHub", "a", "", ts)
	assert.Zero(t, cache.Stats().Pending)

	// A new identity id for an already-flushed person still queues.
	cache.QueueIdentityLink("person_a", "identity_jira_a", "Jira", "a", "", ts)
	assert.Equal(t, 1, cache.Stats().Pending)

	require.NoError(t, cache.Flush(ctx))
	require.Len(t, store.batches, 2)
	assert.Equal(t, "identity_jira_a", store.batches[1][0].Identity.ID)
}
