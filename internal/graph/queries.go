package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

// Domain read queries. All timestamps are stored as RFC3339 UTC strings, so
// range comparisons in Cypher reduce to lexicographic string comparison.

// MergePerson upserts a Person node authoritatively.
func (s *Store) MergePerson(ctx context.Context, p models.Person) error {
	return s.MergeNode(ctx, models.LabelPerson, p.ID, p.Props())
}

// FindPersonIDByEmail looks up an existing Person by normalized email.
// Returns the node id and whether a match was found.
func (s *Store) FindPersonIDByEmail(ctx context.Context, email string) (string, bool, error) {
	query := `
		MATCH (p:Person)
		WHERE p.email = $email AND p.email IS NOT NULL
		RETURN p.id AS id
		LIMIT 1`

	result, err := s.client.read(ctx, query, map[string]any{"email": email})
	if err != nil {
		return "", false, fmt.Errorf("person lookup by email: %w", err)
	}
	if len(result.Records) == 0 {
		return "", false, nil
	}
	id, ok := result.Records[0].Get("id")
	if !ok {
		return "", false, nil
	}
	idStr, ok := id.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected type for person id: %T", id)
	}
	return idStr, true, nil
}

// RootLastSyncedAt reads the last_synced_at marker from a sync root
// (Repository or Project) node. Absent when the root was never fully synced.
func (s *Store) RootLastSyncedAt(ctx context.Context, rootID string) (time.Time, bool, error) {
	query := `
		MATCH (r)
		WHERE r.id = $rootID AND (r:Repository OR r:Project)
		RETURN r.last_synced_at AS last_synced_at`

	result, err := s.client.read(ctx, query, map[string]any{"rootID": rootID})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last_synced_at lookup for %s: %w", rootID, err)
	}
	if len(result.Records) == 0 {
		return time.Time{}, false, nil
	}
	raw, ok := result.Records[0].Get("last_synced_at")
	if !ok || raw == nil {
		return time.Time{}, false, nil
	}
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, false, fmt.Errorf("unexpected type for last_synced_at: %T", raw)
	}
	ts, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed last_synced_at %q: %w", str, err)
	}
	return ts, true, nil
}

// SetRootLastSyncedAt writes the last_synced_at marker on a sync root.
func (s *Store) SetRootLastSyncedAt(ctx context.Context, rootID string, ts time.Time) error {
	query := `
		MATCH (r)
		WHERE r.id = $rootID AND (r:Repository OR r:Project)
		SET r.last_synced_at = $ts
		RETURN r.id AS id`

	params := map[string]any{
		"rootID": rootID,
		"ts":     ts.UTC().Format(time.RFC3339),
	}
	if _, err := s.client.run(ctx, query, params); err != nil {
		return fmt.Errorf("set last_synced_at for %s: %w", rootID, err)
	}
	return nil
}

// FullySyncedCommitSHAs returns the SHAs of commits under the repository's
// branches that completed all dependent file writes in a prior run.
func (s *Store) FullySyncedCommitSHAs(ctx context.Context, repoID string) (map[string]struct{}, error) {
	query := `
		MATCH (c:Commit)-[:PART_OF]->(:Branch)-[:BRANCH_OF]->(r:Repository {id: $repoID})
		WHERE c.fully_synced = true
		RETURN collect(DISTINCT c.sha) AS shas`

	result, err := s.client.read(ctx, query, map[string]any{"repoID": repoID})
	if err != nil {
		return nil, fmt.Errorf("fully-synced commit lookup for %s: %w", repoID, err)
	}

	shas := make(map[string]struct{})
	if len(result.Records) == 0 {
		return shas, nil
	}
	raw, ok := result.Records[0].Get("shas")
	if !ok || raw == nil {
		return shas, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type for shas: %T", raw)
	}
	for _, v := range list {
		if sha, ok := v.(string); ok {
			shas[sha] = struct{}{}
		}
	}
	return shas, nil
}

// MarkCommitFullySynced flips the fully_synced marker. Called only after all
// of the commit's file-modification relationships have been written.
func (s *Store) MarkCommitFullySynced(ctx context.Context, commitID string) error {
	query := `
		MATCH (c:Commit {id: $commitID})
		SET c.fully_synced = true
		RETURN c.id AS id`

	if _, err := s.client.run(ctx, query, map[string]any{"commitID": commitID}); err != nil {
		return fmt.Errorf("mark commit fully synced %s: %w", commitID, err)
	}
	return nil
}

// TerminalPullRequestNumbers returns the numbers of PRs recorded in a
// terminal state (merged or closed). Terminal states are immutable, so these
// PRs are candidates for skipping.
func (s *Store) TerminalPullRequestNumbers(ctx context.Context, repoID string) (map[int]struct{}, error) {
	query := `
		MATCH (pr:PullRequest)-[:TARGETS]->(:Branch)-[:BRANCH_OF]->(r:Repository {id: $repoID})
		WHERE pr.state IN ['merged', 'closed']
		RETURN collect(pr.number) AS numbers`

	result, err := s.client.read(ctx, query, map[string]any{"repoID": repoID})
	if err != nil {
		return nil, fmt.Errorf("terminal PR lookup for %s: %w", repoID, err)
	}

	numbers := make(map[int]struct{})
	if len(result.Records) == 0 {
		return numbers, nil
	}
	raw, ok := result.Records[0].Get("numbers")
	if !ok || raw == nil {
		return numbers, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type for PR numbers: %T", raw)
	}
	for _, v := range list {
		if n, ok := v.(int64); ok {
			numbers[int(n)] = struct{}{}
		}
	}
	return numbers, nil
}

// BranchMetadata returns per-branch change-detection metadata for a
// repository: last-known head SHA and the deleted flag.
func (s *Store) BranchMetadata(ctx context.Context, repoID string) (map[string]models.BranchMeta, error) {
	query := `
		MATCH (b:Branch)-[:BRANCH_OF]->(r:Repository {id: $repoID})
		RETURN b.name AS name,
		       b.last_commit_sha AS last_commit_sha,
		       b.is_deleted AS is_deleted`

	result, err := s.client.read(ctx, query, map[string]any{"repoID": repoID})
	if err != nil {
		return nil, fmt.Errorf("branch metadata lookup for %s: %w", repoID, err)
	}

	meta := make(map[string]models.BranchMeta)
	for _, record := range result.Records {
		name, ok := record.Get("name")
		if !ok {
			continue
		}
		nameStr, ok := name.(string)
		if !ok {
			continue
		}
		var m models.BranchMeta
		if sha, ok := record.Get("last_commit_sha"); ok && sha != nil {
			m.LastCommitSHA, _ = sha.(string)
		}
		if deleted, ok := record.Get("is_deleted"); ok && deleted != nil {
			m.IsDeleted, _ = deleted.(bool)
		}
		meta[nameStr] = m
	}
	return meta, nil
}

// FreshIdentityUsernames returns the subset of usernames whose
// IdentityMapping was refreshed within the freshness window. One batched
// query regardless of batch size.
func (s *Store) FreshIdentityUsernames(ctx context.Context, provider string, usernames []string, window time.Duration) (map[string]struct{}, error) {
	fresh := make(map[string]struct{})
	if len(usernames) == 0 {
		return fresh, nil
	}

	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)
	query := `
		UNWIND $usernames AS username
		MATCH (i:IdentityMapping {provider: $provider, username: username})
		WHERE i.last_updated_at IS NOT NULL AND i.last_updated_at >= $cutoff
		RETURN collect(i.username) AS recent`

	params := map[string]any{
		"usernames": usernames,
		"provider":  provider,
		"cutoff":    cutoff,
	}
	result, err := s.client.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("identity freshness lookup: %w", err)
	}
	if len(result.Records) == 0 {
		return fresh, nil
	}
	raw, ok := result.Records[0].Get("recent")
	if !ok || raw == nil {
		return fresh, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type for recent usernames: %T", raw)
	}
	for _, v := range list {
		if name, ok := v.(string); ok {
			fresh[name] = struct{}{}
		}
	}
	return fresh, nil
}

// NodeCounts reports node counts per label across the whole graph.
// Read-only diagnostic for the stats command.
func (s *Store) NodeCounts(ctx context.Context) (map[string]int, error) {
	query := `
		MATCH (n)
		RETURN labels(n)[0] AS label, count(n) AS count
		ORDER BY label`

	result, err := s.client.read(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("node count query: %w", err)
	}

	counts := make(map[string]int)
	for _, record := range result.Records {
		label, ok := record.Get("label")
		if !ok {
			continue
		}
		count, ok := record.Get("count")
		if !ok {
			continue
		}
		labelStr, _ := label.(string)
		countInt, _ := count.(int64)
		if labelStr != "" {
			counts[labelStr] = int(countInt)
		}
	}
	return counts, nil
}

// StubCounts reports how many Issue and Team nodes are still unenriched
// cross-pipeline references. Read-only diagnostic for the stats command.
func (s *Store) StubCounts(ctx context.Context) (map[string]int, error) {
	query := `
		MATCH (n)
		WHERE n.source ENDS WITH '_reference'
		RETURN labels(n)[0] AS label, count(n) AS count`

	result, err := s.client.read(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("stub count query: %w", err)
	}

	counts := make(map[string]int)
	for _, record := range result.Records {
		label, ok := record.Get("label")
		if !ok {
			continue
		}
		count, ok := record.Get("count")
		if !ok {
			continue
		}
		labelStr, _ := label.(string)
		countInt, _ := count.(int64)
		if labelStr != "" {
			counts[labelStr] = int(countInt)
		}
	}
	return counts, nil
}
