// Package linking resolves forward references between the two ingestion
// pipelines: issue keys mentioned by commits and branches, and team names
// mentioned by work items.
package linking

import (
	"regexp"

	"github.com/sirupsen/logrus"
)

// issueKeyPattern matches tracker keys like PROJ-123 anywhere in free text:
// [PROJ-123], PROJ-123:, (PROJ-123), or bare at a word boundary.
var issueKeyPattern = regexp.MustCompile(`\b([A-Z]{2,}-\d+)\b`)

// defaultBranchPatterns cover Git Flow prefixes and a direct key prefix.
var defaultBranchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:feature|bugfix|hotfix|release)/([A-Z]{2,}-\d+)`),
	regexp.MustCompile(`^([A-Z]{2,}-\d+)`),
}

// ExtractIssueKeys returns the unique issue keys found in a commit message.
func ExtractIssueKeys(message string) []string {
	matches := issueKeyPattern.FindAllStringSubmatch(message, -1)
	return dedupe(matches)
}

// ExtractIssueKeysFromBranch returns the unique issue keys found in a branch
// name. Custom patterns (each with one capture group) override the defaults;
// patterns that fail to compile are skipped with a warning.
func ExtractIssueKeysFromBranch(branchName string, customPatterns []string, log *logrus.Entry) []string {
	patterns := defaultBranchPatterns
	if len(customPatterns) > 0 {
		patterns = nil
		for _, raw := range customPatterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				if log != nil {
					log.WithError(err).WithField("pattern", raw).Warn("invalid branch issue-key pattern")
				}
				continue
			}
			patterns = append(patterns, re)
		}
	}

	var all [][]string
	for _, re := range patterns {
		all = append(all, re.FindAllStringSubmatch(branchName, -1)...)
	}
	return dedupe(all)
}

func dedupe(matches [][]string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		keys = append(keys, m[1])
	}
	return keys
}
