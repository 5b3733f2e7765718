package jira

import (
	"testing"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/stretchr/testify/assert"
	"github.com/trivago/tgo/tcontainer"
)

func TestCustomFieldString(t *testing.T) {
	tests := []struct {
		name   string
		fields *jira.IssueFields
		key    string
		want   string
	}{
		{"nil fields", nil, "customfield_10001", ""},
		{"empty key", &jira.IssueFields{}, "", ""},
		{"missing field", &jira.IssueFields{Unknowns: tcontainer.MarshalMap{}}, "customfield_10001", ""},
		{
			"plain string value",
			&jira.IssueFields{Unknowns: tcontainer.MarshalMap{"customfield_10001": "Platform Team"}},
			"customfield_10001",
			"Platform Team",
		},
		{
			"option object with value",
			&jira.IssueFields{Unknowns: tcontainer.MarshalMap{
				"customfield_10001": map[string]any{"id": "1", "value": "Platform Team"},
			}},
			"customfield_10001",
			"Platform Team",
		},
		{
			"option object with name",
			&jira.IssueFields{Unknowns: tcontainer.MarshalMap{
				"customfield_10001": map[string]any{"name": "Platform Team"},
			}},
			"customfield_10001",
			"Platform Team",
		},
		{
			"unusable shape",
			&jira.IssueFields{Unknowns: tcontainer.MarshalMap{"customfield_10001": 42}},
			"customfield_10001",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, customFieldString(tt.fields, tt.key))
		})
	}
}

func TestIssueTypeIsEpic(t *testing.T) {
	assert.True(t, issueTypeIsEpic(&jira.IssueFields{Type: jira.IssueType{Name: "Epic"}}))
	assert.True(t, issueTypeIsEpic(&jira.IssueFields{Type: jira.IssueType{Name: "epic"}}))
	assert.False(t, issueTypeIsEpic(&jira.IssueFields{Type: jira.IssueType{Name: "Story"}}))
	assert.False(t, issueTypeIsEpic(nil))
}

func TestDateClause(t *testing.T) {
	ts := time.Date(2026, 3, 5, 23, 45, 0, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "2026-03-06", dateClause(ts))
}
