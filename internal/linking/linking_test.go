package linking

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestExtractIssueKeys(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"bare key", "PROJ-123 fix login", []string{"PROJ-123"}},
		{"bracketed", "[PROJ-123] fix login", []string{"PROJ-123"}},
		{"colon suffix", "PROJ-123: fix login", []string{"PROJ-123"}},
		{"parenthesized", "fix login (PROJ-123)", []string{"PROJ-123"}},
		{"multiple distinct", "PROJ-1 and CORE-22 touched", []string{"PROJ-1", "CORE-22"}},
		{"duplicates collapse", "PROJ-9 then PROJ-9 again", []string{"PROJ-9"}},
		{"single-letter project rejected", "A-123 is not a key", nil},
		{"lowercase rejected", "proj-123 is not a key", nil},
		{"embedded in word rejected", "XPROJ-123x", nil},
		{"no keys", "refactor config loader", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIssueKeys(tt.message))
		})
	}
}

func TestExtractIssueKeysFromBranch(t *testing.T) {
	tests := []struct {
		name   string
		branch string
		want   []string
	}{
		{"feature prefix", "feature/PROJ-123-login-fix", []string{"PROJ-123"}},
		{"bugfix prefix", "bugfix/CORE-7", []string{"CORE-7"}},
		{"hotfix prefix", "hotfix/OPS-1-rollback", []string{"OPS-1"}},
		{"direct key prefix", "PROJ-55-cleanup", []string{"PROJ-55"}},
		{"plain branch", "main", nil},
		{"key not at start", "cleanup-PROJ-55", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIssueKeysFromBranch(tt.branch, nil, testLog()))
		})
	}
}

func TestExtractIssueKeysFromBranchCustomPatterns(t *testing.T) {
	custom := []string{`^work/([A-Z]+-\d+)`}

	// Custom patterns replace the defaults entirely.
	assert.Equal(t, []string{"PROJ-9"},
		ExtractIssueKeysFromBranch("work/PROJ-9-thing", custom, testLog()))
	assert.Nil(t, ExtractIssueKeysFromBranch("feature/PROJ-9-thing", custom, testLog()))
}

func TestExtractIssueKeysFromBranchInvalidPatternSkipped(t *testing.T) {
	custom := []string{`([unclosed`, `^ok/([A-Z]+-\d+)`}
	assert.Equal(t, []string{"AB-1"},
		ExtractIssueKeysFromBranch("ok/AB-1", custom, testLog()))
}

// fakeStubStore records CreateNodeIfAbsent calls and reports created=true only
// for ids it has not seen.
type fakeStubStore struct {
	nodes map[string]map[string]any
}

func (f *fakeStubStore) CreateNodeIfAbsent(ctx context.Context, label, id string, props map[string]any) (bool, error) {
	if f.nodes == nil {
		f.nodes = make(map[string]map[string]any)
	}
	if _, ok := f.nodes[id]; ok {
		return false, nil
	}
	f.nodes[id] = props
	return true, nil
}

func TestEnsureIssueStub(t *testing.T) {
	store := &fakeStubStore{}
	r := NewStubResolver(store, testLog())
	ctx := context.Background()

	id, err := r.EnsureIssueStub(ctx, "PROJ-123")
	require.NoError(t, err)
	assert.Equal(t, models.IssueID("PROJ-123"), id)
	assert.Equal(t, models.SourceGitHubRef, store.nodes[id]["source"])

	// Second call is a no-op against the same node.
	again, err := r.EnsureIssueStub(ctx, "PROJ-123")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, store.nodes, 1)
}

func TestEnsureTeamStubConvergesWithAuthoritativeID(t *testing.T) {
	store := &fakeStubStore{}
	r := NewStubResolver(store, testLog())

	id, err := r.EnsureTeamStub(context.Background(), "Platform Team")
	require.NoError(t, err)

	// The stub lands on the exact id the authoritative team upsert uses, so
	// enrichment happens in place on one node.
	assert.Equal(t, models.TeamID("Platform Team"), id)
	assert.Equal(t, "team_platform_team", id)
	assert.Equal(t, models.SourceJiraRef, store.nodes[id]["source"])
}
