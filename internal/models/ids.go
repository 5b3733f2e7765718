package models

import (
	"fmt"
	"strings"
)

// Canonical id derivation. Both pipelines derive node ids with these
// functions and nothing else, so that cross-pipeline references converge on
// the same node through idempotent upserts rather than coordination.

// PersonIDFromEmail derives the canonical Person id for a known email.
// The email must already be normalized (lower-cased, non-empty).
func PersonIDFromEmail(email string) string {
	return "person_" + email
}

// PersonIDFromProvider derives the fallback Person id for users without an
// email. Not guaranteed unique across providers for the same human.
func PersonIDFromProvider(provider, externalID string) string {
	return fmt.Sprintf("person_%s_%s", provider, externalID)
}

// NormalizeEmail lower-cases an email and maps empty/whitespace to absent.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityID derives the IdentityMapping node id for a provider login.
func IdentityID(provider, username string) string {
	return fmt.Sprintf("identity_%s_%s", strings.ToLower(provider), username)
}

// RepositoryID derives the Repository node id from owner and name.
func RepositoryID(owner, name string) string {
	return fmt.Sprintf("repo_%s_%s", owner, name)
}

// BranchID derives the Branch node id. Branch names routinely contain
// slashes and hyphens (feature/PROJ-12-thing), which are flattened so the id
// stays a single token.
func BranchID(repoName, branchName string) string {
	flat := strings.NewReplacer("/", "_", "-", "_").Replace(branchName)
	return fmt.Sprintf("branch_%s_%s", repoName, flat)
}

// CommitID derives the Commit node id from its SHA.
func CommitID(sha string) string {
	return "commit_" + sha
}

// FileID derives the File node id from repository name and path.
func FileID(repoName, path string) string {
	return fmt.Sprintf("file_%s_%s", repoName, strings.ReplaceAll(path, "/", "_"))
}

// PullRequestID derives the PullRequest node id.
func PullRequestID(repoName string, number int) string {
	return fmt.Sprintf("pr_%s_%d", repoName, number)
}

// TeamID derives the Team node id from a display name. The same derivation
// is used by the GitHub pipeline (authoritative) and by Jira team references
// (stubs), which is what lets a stub and the real team land on one node.
func TeamID(name string) string {
	flat := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(name))
	return "team_" + flat
}

// IssueID derives the Issue node id from an issue key such as PROJ-123.
func IssueID(key string) string {
	return "issue_" + key
}

// ProjectID derives the Project node id from the tracker's project key.
func ProjectID(key string) string {
	return "project_jira_" + key
}

// InitiativeID derives the Initiative node id from the tracker's internal
// issue id.
func InitiativeID(issueID string) string {
	return "initiative_jira_" + issueID
}

// EpicID derives the Epic node id from the tracker's internal issue id.
func EpicID(issueID string) string {
	return "epic_jira_" + issueID
}

// SprintID derives the Sprint node id.
func SprintID(sprintID int) string {
	return fmt.Sprintf("sprint_jira_%d", sprintID)
}
