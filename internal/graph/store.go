package graph

import (
	"context"
	"fmt"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

// Store exposes the idempotent upsert surface both pipelines write through.
//
// Two upsert variants exist on purpose. CreateNodeIfAbsent sets properties
// only on first creation and is used for cross-pipeline stubs; MergeNode
// overwrites unconditionally and is used for authoritative writes. Both are
// keyed by the same canonical-id derivation (internal/models/ids.go), so a
// stub and the authoritative record for the same natural key always converge
// on one node regardless of pipeline order.
type Store struct {
	client *Client
}

// NewStore creates a store over an established client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Client returns the underlying Neo4j client.
func (s *Store) Client() *Client {
	return s.client
}

// MergeNode upserts a node by id, overwriting the given properties whether or
// not the node already existed. Re-issuable without duplication.
func (s *Store) MergeNode(ctx context.Context, label, id string, props map[string]any) error {
	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		SET n += $props
		RETURN n.id AS id`, label)

	if _, err := s.client.run(ctx, query, map[string]any{"id": id, "props": props}); err != nil {
		return fmt.Errorf("merge %s %s: %w", label, id, err)
	}
	return nil
}

// CreateNodeIfAbsent upserts a node by id, setting properties only when the
// node is first created. Existing nodes, stub or enriched, are left intact.
// Returns whether this call created the node.
func (s *Store) CreateNodeIfAbsent(ctx context.Context, label, id string, props map[string]any) (bool, error) {
	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n += $props, n.__created = true
		WITH n, coalesce(n.__created, false) AS created
		REMOVE n.__created
		RETURN created`, label)

	result, err := s.client.run(ctx, query, map[string]any{"id": id, "props": props})
	if err != nil {
		return false, fmt.Errorf("create-if-absent %s %s: %w", label, id, err)
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	created, ok := result.Records[0].Get("created")
	if !ok {
		return false, nil
	}
	flag, _ := created.(bool)
	return flag, nil
}

// MergeRelationship creates a directed, typed relationship between two
// existing node ids. A no-op when either endpoint is missing; re-issuable
// without producing duplicate edges.
func (s *Store) MergeRelationship(ctx context.Context, rel models.Relationship) error {
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $fromID})
		MATCH (b:%s {id: $toID})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
		RETURN type(r) AS t`, rel.FromType, rel.ToType, rel.Type)

	props := rel.Props
	if props == nil {
		props = map[string]any{}
	}

	params := map[string]any{
		"fromID": rel.FromID,
		"toID":   rel.ToID,
		"props":  props,
	}
	if _, err := s.client.run(ctx, query, params); err != nil {
		return fmt.Errorf("merge relationship %s %s->%s: %w", rel.Type, rel.FromID, rel.ToID, err)
	}
	return nil
}

// MergeIdentityBatch writes a batch of identity mappings and their MAPS_TO
// links in a single UNWIND statement. Used by the person cache flush to
// collapse many small writes into one round trip.
func (s *Store) MergeIdentityBatch(ctx context.Context, links []IdentityLink) error {
	if len(links) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(links))
	for i, l := range links {
		rows[i] = map[string]any{
			"props":    l.Identity.Props(),
			"personID": l.PersonID,
		}
	}

	query := `
		UNWIND $rows AS row
		MERGE (i:IdentityMapping {id: row.props.id})
		SET i += row.props
		WITH i, row
		MATCH (p:Person {id: row.personID})
		MERGE (i)-[:MAPS_TO]->(p)
		RETURN count(i) AS merged`

	if _, err := s.client.run(ctx, query, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("merge identity batch (%d links): %w", len(links), err)
	}
	return nil
}

// IdentityLink pairs an identity mapping with the person it resolves to.
type IdentityLink struct {
	Identity models.IdentityMapping
	PersonID string
}
