package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapPermissionsToGeneral(t *testing.T) {
	tests := []struct {
		name        string
		permissions map[string]bool
		want        string
	}{
		{"admin", map[string]bool{"admin": true, "pull": true}, "WRITE"},
		{"maintain", map[string]bool{"maintain": true}, "WRITE"},
		{"push", map[string]bool{"push": true, "triage": true}, "WRITE"},
		{"triage only", map[string]bool{"triage": true, "pull": true}, "READ"},
		{"pull only", map[string]bool{"pull": true}, "READ"},
		{"write flags present but false", map[string]bool{"admin": false, "push": false, "pull": true}, "READ"},
		{"empty", map[string]bool{}, "READ"},
		{"nil", nil, "READ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapPermissionsToGeneral(tt.permissions))
		})
	}
}
