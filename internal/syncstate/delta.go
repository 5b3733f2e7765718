package syncstate

import (
	"context"
	"fmt"
	"time"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

// DeltaStore is the slice of the graph store the delta filter reads.
type DeltaStore interface {
	FullySyncedCommitSHAs(ctx context.Context, repoID string) (map[string]struct{}, error)
	TerminalPullRequestNumbers(ctx context.Context, repoID string) (map[int]struct{}, error)
	BranchMetadata(ctx context.Context, repoID string) (map[string]models.BranchMeta, error)
	FreshIdentityUsernames(ctx context.Context, provider string, usernames []string, window time.Duration) (map[string]struct{}, error)
}

// DefaultIdentityRefreshDays bounds repeated profile writes for accounts
// whose identity data was refreshed recently.
const DefaultIdentityRefreshDays = 7

// DeltaFilter decides, per entity kind, which fetched remote records are
// already durably and completely represented and can be skipped.
type DeltaFilter struct {
	store DeltaStore
}

// NewDeltaFilter creates a filter over the given store.
func NewDeltaFilter(store DeltaStore) *DeltaFilter {
	return &DeltaFilter{store: store}
}

// SyncedCommits returns the set of commit SHAs under the repository that are
// marked fully synced. Commits are immutable units: membership in this set
// means every dependent file-modification write completed, so the commit is
// skipped entirely — no detail fetch, no handler invocation.
func (f *DeltaFilter) SyncedCommits(ctx context.Context, repoID string) (map[string]struct{}, error) {
	shas, err := f.store.FullySyncedCommitSHAs(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("commit delta for %s: %w", repoID, err)
	}
	return shas, nil
}

// ShouldSkipCommit reports whether a fetched commit is already fully synced.
func ShouldSkipCommit(synced map[string]struct{}, sha string) bool {
	_, ok := synced[sha]
	return ok
}

// TerminalPullRequests returns the PR numbers recorded in a terminal
// (merged/closed) state.
func (f *DeltaFilter) TerminalPullRequests(ctx context.Context, repoID string) (map[int]struct{}, error) {
	numbers, err := f.store.TerminalPullRequestNumbers(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("pull request delta for %s: %w", repoID, err)
	}
	return numbers, nil
}

// ShouldSkipPullRequest reports whether a fetched PR can be skipped: it must
// be in the recorded terminal set and its current remote state must not be
// open. A reopened PR re-enters processing even though it was once terminal,
// because open PRs can still gain commits, reviews, and label changes.
func ShouldSkipPullRequest(terminal map[int]struct{}, number int, remoteState string) bool {
	if remoteState == "open" {
		return false
	}
	_, ok := terminal[number]
	return ok
}

// Branches returns the recorded change-detection metadata for the
// repository's branches.
func (f *DeltaFilter) Branches(ctx context.Context, repoID string) (map[string]models.BranchMeta, error) {
	meta, err := f.store.BranchMetadata(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("branch delta for %s: %w", repoID, err)
	}
	return meta, nil
}

// BranchNeedsSync reports whether a branch must be reprocessed: unknown,
// head moved, or previously marked deleted (resurrection).
func BranchNeedsSync(recorded map[string]models.BranchMeta, name, headSHA string) bool {
	meta, ok := recorded[name]
	if !ok {
		return true
	}
	return meta.LastCommitSHA != headSHA || meta.IsDeleted
}

// StaleIdentities filters usernames to those whose IdentityMapping is older
// than the freshness window (or missing) and therefore needs identity-refresh
// work. Returns the usernames to process and the number skipped. Callers
// still create any missing relationships for skipped users unconditionally;
// only the profile-field refresh is bounded here.
func (f *DeltaFilter) StaleIdentities(ctx context.Context, provider string, usernames []string, refreshDays int) (stale []string, skipped int, err error) {
	if len(usernames) == 0 {
		return nil, 0, nil
	}
	if refreshDays <= 0 {
		refreshDays = DefaultIdentityRefreshDays
	}

	window := time.Duration(refreshDays) * 24 * time.Hour
	fresh, err := f.store.FreshIdentityUsernames(ctx, provider, usernames, window)
	if err != nil {
		return nil, 0, fmt.Errorf("identity freshness delta: %w", err)
	}

	for _, name := range usernames {
		if _, ok := fresh[name]; ok {
			skipped++
			continue
		}
		stale = append(stale, name)
	}
	return stale, skipped, nil
}
