package models

import "time"

// Node labels used across both ingestion pipelines.
const (
	LabelPerson          = "Person"
	LabelIdentityMapping = "IdentityMapping"
	LabelRepository      = "Repository"
	LabelBranch          = "Branch"
	LabelCommit          = "Commit"
	LabelFile            = "File"
	LabelPullRequest     = "PullRequest"
	LabelTeam            = "Team"
	LabelProject         = "Project"
	LabelInitiative      = "Initiative"
	LabelEpic            = "Epic"
	LabelSprint          = "Sprint"
	LabelIssue           = "Issue"
)

// Relationship types.
const (
	RelMapsTo          = "MAPS_TO"
	RelAuthored        = "AUTHORED"
	RelCommitted       = "COMMITTED"
	RelModifies        = "MODIFIES"
	RelPartOf          = "PART_OF"
	RelBranchOf        = "BRANCH_OF"
	RelTargets         = "TARGETS"
	RelReviewed        = "REVIEWED"
	RelReviewRequested = "REVIEW_REQUESTED"
	RelReferences      = "REFERENCES"
	RelMemberOf        = "MEMBER_OF"
	RelCollaboratesOn  = "COLLABORATES_ON"
	RelAssignedTo      = "ASSIGNED_TO"
	RelReportedBy      = "REPORTED_BY"
	RelBelongsTo       = "BELONGS_TO"
	RelInSprint        = "IN_SPRINT"
	RelOwnedBy         = "OWNED_BY"
	RelProjectOf       = "PROJECT_OF"
)

// Stub provenance markers. A node carrying one of these in its `source`
// property was created as a cross-pipeline placeholder and is expected to be
// overwritten in place by the authoritative pipeline.
const (
	SourceGitHub    = "github"
	SourceJira      = "jira"
	SourceGitHubRef = "github_reference"
	SourceJiraRef   = "jira_reference"
)

// Person is the canonical human entity. At most one Person exists per
// non-null email; Persons without email are keyed by (provider, external id)
// and are not guaranteed unique across providers.
type Person struct {
	ID        string
	Name      string
	Email     string // lower-cased; empty means absent
	Title     string
	Role      string
	Seniority string
	HireDate  string
	IsManager bool
	URL       string
}

// Props returns the property set written on upsert. Unspecified profile
// fields default to empty rather than being omitted, so later reads see a
// stable shape. Email is omitted entirely when absent so the uniqueness
// constraint on Person.email tolerates any number of email-less persons.
func (p Person) Props() map[string]any {
	props := map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"title":      p.Title,
		"role":       p.Role,
		"seniority":  p.Seniority,
		"hire_date":  p.HireDate,
		"is_manager": p.IsManager,
		"url":        p.URL,
	}
	if p.Email != "" {
		props["email"] = p.Email
	}
	return props
}

// IdentityMapping is a provider-specific identity record pointing to exactly
// one Person via a MAPS_TO relationship. One mapping per provider per person.
// Created or refreshed by identity resolution; never deleted.
type IdentityMapping struct {
	ID            string
	Provider      string
	Username      string
	Email         string
	LastUpdatedAt time.Time
}

func (im IdentityMapping) Props() map[string]any {
	return map[string]any{
		"id":              im.ID,
		"provider":        im.Provider,
		"username":        im.Username,
		"email":           im.Email,
		"last_updated_at": im.LastUpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Relationship is a directed, typed edge between two existing node ids.
type Relationship struct {
	Type     string
	FromID   string
	ToID     string
	FromType string
	ToType   string
	Props    map[string]any
}

// BranchMeta is the change-detection metadata recorded on Branch nodes,
// consumed by the delta filter to decide whether a branch needs reprocessing.
type BranchMeta struct {
	LastCommitSHA string
	IsDeleted     bool
}
