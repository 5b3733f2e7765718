package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/models"
	"github.com/sirupsen/logrus"
)

// CacheStore extends Store with the batched identity-link write the flush
// path uses.
type CacheStore interface {
	Store
	MergeIdentityBatch(ctx context.Context, links []graph.IdentityLink) error
}

// PersonCache memoizes identity resolution for the duration of one
// repository/project run and batches IdentityMapping writes until Flush.
//
// The same handful of humans recur across hundreds of commits, PRs, and
// issues; caching collapses resolution into O(distinct people) store round
// trips per run. A fresh cache is constructed per run and discarded after its
// final flush — cache hits are only valid because no Person is deleted or
// merged away by another process within a run.
type PersonCache struct {
	store CacheStore
	log   *logrus.Entry

	byEmail    map[string]string
	byProvider map[providerKey]string

	pending map[string]graph.IdentityLink
	flushed map[string]struct{}

	hits         int
	misses       int
	storeQueries int
}

type providerKey struct {
	provider   string
	externalID string
}

// NewPersonCache creates an empty per-run cache.
func NewPersonCache(store CacheStore, log *logrus.Entry) *PersonCache {
	return &PersonCache{
		store:      store,
		log:        log,
		byEmail:    make(map[string]string),
		byProvider: make(map[providerKey]string),
		pending:    make(map[string]graph.IdentityLink),
		flushed:    make(map[string]struct{}),
	}
}

// Resolve behaves like Resolver.Resolve but consults the in-memory tables
// first and records every resolution for future hits.
func (c *PersonCache) Resolve(ctx context.Context, in Input) (personID string, isNew bool, err error) {
	in.Email = models.NormalizeEmail(in.Email)

	if in.Email != "" {
		if id, ok := c.byEmail[in.Email]; ok {
			c.hits++
			return id, false, nil
		}
	} else if in.Provider != "" && in.ExternalID != "" {
		if id, ok := c.byProvider[providerKey{in.Provider, in.ExternalID}]; ok {
			c.hits++
			return id, false, nil
		}
	}

	c.misses++

	personID, err = canonicalPersonID(in)
	if err != nil {
		return "", false, err
	}

	if in.Email != "" {
		c.storeQueries++
		existingID, found, err := c.store.FindPersonIDByEmail(ctx, in.Email)
		if err != nil {
			return "", false, fmt.Errorf("resolve %s: %w", in.Email, err)
		}
		if found {
			c.remember(in, existingID)
			return existingID, false, nil
		}
	}

	person := models.Person{
		ID:    personID,
		Name:  in.Name,
		Email: in.Email,
		URL:   in.URL,
	}
	if err := c.store.MergePerson(ctx, person); err != nil {
		return "", false, fmt.Errorf("create person %s: %w", personID, err)
	}

	c.remember(in, personID)
	return personID, true, nil
}

// remember populates both lookup tables whenever the corresponding keys are
// available, regardless of which path resolution actually took. Maximizes the
// hit rate for callers that sometimes see the email and sometimes only the
// provider login for the same human.
func (c *PersonCache) remember(in Input, personID string) {
	if in.Email != "" {
		c.byEmail[in.Email] = personID
	}
	if in.Provider != "" && in.ExternalID != "" {
		c.byProvider[providerKey{in.Provider, in.ExternalID}] = personID
	}
}

// QueueIdentityLink defers an IdentityMapping upsert and its MAPS_TO link
// until the next Flush. Idempotent per identity id within a run, including
// across flush cycles; a different identity id for an already-flushed person
// still queues, so a person can gain further provider identities later in the
// same run.
func (c *PersonCache) QueueIdentityLink(personID, identityID, provider, username, email string, lastUpdatedAt time.Time) {
	if _, ok := c.pending[identityID]; ok {
		return
	}
	if _, ok := c.flushed[identityID]; ok {
		return
	}

	c.pending[identityID] = graph.IdentityLink{
		Identity: models.IdentityMapping{
			ID:            identityID,
			Provider:      provider,
			Username:      username,
			Email:         email,
			LastUpdatedAt: lastUpdatedAt,
		},
		PersonID: personID,
	}
	c.log.WithField("person_id", personID).Debug("queued identity link")
}

// Flush writes all pending identity links as one batched idempotent upsert,
// marks the involved identity ids as flushed, and clears the queue. Safe to
// call repeatedly; a no-op when nothing is pending.
func (c *PersonCache) Flush(ctx context.Context) error {
	if len(c.pending) == 0 {
		c.log.Debug("no pending identity links to flush")
		return nil
	}

	links := make([]graph.IdentityLink, 0, len(c.pending))
	for _, link := range c.pending {
		links = append(links, link)
	}

	c.log.WithField("count", len(links)).Info("flushing identity links")
	if err := c.store.MergeIdentityBatch(ctx, links); err != nil {
		return fmt.Errorf("flush identity links: %w", err)
	}

	for _, link := range links {
		c.flushed[link.Identity.ID] = struct{}{}
	}
	c.pending = make(map[string]graph.IdentityLink)
	return nil
}

// Stats describes cache effectiveness for one run.
type Stats struct {
	Hits         int
	Misses       int
	StoreQueries int
	HitRate      float64 // hits / (hits + misses); 0 when no calls were made
	Pending      int
}

// Stats returns a snapshot of the cache counters.
func (c *PersonCache) Stats() Stats {
	s := Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		StoreQueries: c.storeQueries,
		Pending:      len(c.pending),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
