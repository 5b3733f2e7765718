package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail(" Alice@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestIDDerivation(t *testing.T) {
	assert.Equal(t, "person_alice@example.com", PersonIDFromEmail("alice@example.com"))
	assert.Equal(t, "person_github_octocat", PersonIDFromProvider("github", "octocat"))
	assert.Equal(t, "identity_github_Octocat", IdentityID("GitHub", "Octocat"))
	assert.Equal(t, "repo_acme_api", RepositoryID("acme", "api"))
	assert.Equal(t, "commit_abc123", CommitID("abc123"))
	assert.Equal(t, "pr_api_42", PullRequestID("api", 42))
	assert.Equal(t, "issue_PROJ-123", IssueID("PROJ-123"))
	assert.Equal(t, "project_jira_PLAT", ProjectID("PLAT"))
	assert.Equal(t, "initiative_jira_10000", InitiativeID("10000"))
	assert.Equal(t, "epic_jira_10001", EpicID("10001"))
	assert.Equal(t, "sprint_jira_7", SprintID(7))
}

func TestBranchIDFlattensSeparators(t *testing.T) {
	assert.Equal(t, "branch_api_feature_PROJ_12_login", BranchID("api", "feature/PROJ-12-login"))
	assert.Equal(t, "branch_api_main", BranchID("api", "main"))
}

func TestFileIDFlattensPath(t *testing.T) {
	assert.Equal(t, "file_api_internal_auth_token.go", FileID("api", "internal/auth/token.go"))
}

func TestTeamIDConvergesAcrossSpellings(t *testing.T) {
	// The code-host handler and tracker references both derive ids here;
	// spelling variants of one team must land on one node.
	assert.Equal(t, TeamID("Platform Team"), TeamID("platform-team"))
	assert.Equal(t, "team_platform_team", TeamID("Platform Team"))
}

func TestPersonPropsOmitsEmptyEmail(t *testing.T) {
	withEmail := Person{ID: "person_a@example.com", Name: "A", Email: "a@example.com"}
	assert.Equal(t, "a@example.com", withEmail.Props()["email"])

	// The Person email uniqueness constraint tolerates absent properties but
	// not duplicated empty strings.
	noEmail := Person{ID: "person_github_b", Name: "B"}
	_, ok := noEmail.Props()["email"]
	assert.False(t, ok)
}
