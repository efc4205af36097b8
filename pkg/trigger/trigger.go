package trigger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/greboid/actrun/pkg/workflow"
)

// Event is the subset of a repository event needed to decide whether a workflow runs.
type Event struct {
	Name string `json:"name"`
	// Action is the pull_request activity type, e.g. "opened" or "synchronize".
	Action string `json:"action,omitempty"`
	// Branch is the pushed branch, or the base branch of a pull request.
	Branch string `json:"branch,omitempty"`
	// Tag is set instead of Branch for tag pushes.
	Tag string `json:"tag,omitempty"`
	// HeadBranch is the source branch of a pull request.
	HeadBranch string `json:"head_branch,omitempty"`
	Number     int    `json:"number,omitempty"`
	SHA        string `json:"sha,omitempty"`
	Repository string `json:"repository,omitempty"`
	Actor      string `json:"actor,omitempty"`
	// ChangedFiles is nil when unknown, in which case paths filters are not applied.
	ChangedFiles []string `json:"changed_files,omitempty"`
	// Deleted marks a push that removed the ref; such pushes never start a run.
	Deleted bool `json:"deleted,omitempty"`
}

var defaultPullRequestTypes = []string{"opened", "synchronize", "reopened"}

// Ref returns the git ref GitHub would report for the event.
func (e Event) Ref() string {
	switch {
	case e.Name == workflow.EventPullRequest && e.Number > 0:
		return fmt.Sprintf("refs/pull/%d/merge", e.Number)
	case e.Tag != "":
		return "refs/tags/" + e.Tag
	case e.Branch != "":
		return "refs/heads/" + e.Branch
	default:
		return ""
	}
}

func (e Event) String() string {
	switch {
	case e.Tag != "":
		return fmt.Sprintf("%s (tag %s)", e.Name, e.Tag)
	case e.Branch != "":
		return fmt.Sprintf("%s (%s)", e.Name, e.Branch)
	default:
		return e.Name
	}
}

// Evaluate reports whether event instantiates wf. Events that do not match are not an error.
func Evaluate(wf *workflow.Workflow, event Event) bool {
	filter, ok := wf.On[event.Name]
	if !ok || event.Deleted {
		return false
	}

	switch event.Name {
	case workflow.EventPush:
		return matchPush(filter, event)
	case workflow.EventPullRequest:
		return matchPullRequest(filter, event)
	case workflow.EventWorkflowDispatch:
		return true
	default:
		return false
	}
}

func matchPush(filter *workflow.EventFilter, event Event) bool {
	if filter == nil {
		return true
	}

	hasBranchFilter := len(filter.Branches) > 0 || len(filter.BranchesIgnore) > 0
	hasTagFilter := len(filter.Tags) > 0 || len(filter.TagsIgnore) > 0

	switch {
	case event.Tag != "":
		if hasBranchFilter && !hasTagFilter {
			return false
		}
		if !matchRef(filter.Tags, filter.TagsIgnore, event.Tag) {
			return false
		}
	case event.Branch != "":
		if hasTagFilter && !hasBranchFilter {
			return false
		}
		if !matchRef(filter.Branches, filter.BranchesIgnore, event.Branch) {
			return false
		}
	default:
		if hasBranchFilter || hasTagFilter {
			return false
		}
	}

	return matchPaths(filter, event.ChangedFiles)
}

func matchPullRequest(filter *workflow.EventFilter, event Event) bool {
	types := defaultPullRequestTypes
	if filter != nil && len(filter.Types) > 0 {
		types = filter.Types
	}
	if event.Action != "" && !slices.Contains(types, event.Action) {
		return false
	}

	if filter == nil {
		return true
	}

	if len(filter.Branches) > 0 || len(filter.BranchesIgnore) > 0 {
		if event.Branch == "" || !matchRef(filter.Branches, filter.BranchesIgnore, event.Branch) {
			return false
		}
	}

	return matchPaths(filter, event.ChangedFiles)
}

// matchRef applies an include list (with "!" negations, last match wins) or an ignore list.
func matchRef(include, ignore []string, value string) bool {
	if len(include) > 0 {
		return matchPatternList(include, value)
	}
	if len(ignore) > 0 {
		return !MatchAny(ignore, value)
	}
	return true
}

func matchPaths(filter *workflow.EventFilter, files []string) bool {
	if files == nil {
		return true
	}
	if len(filter.Paths) > 0 {
		for _, file := range files {
			if matchPatternList(filter.Paths, file) {
				return true
			}
		}
		return false
	}
	if len(filter.PathsIgnore) > 0 {
		for _, file := range files {
			if !MatchAny(filter.PathsIgnore, file) {
				return true
			}
		}
		return false
	}
	return true
}

func matchPatternList(patterns []string, value string) bool {
	matched := false
	for _, pattern := range patterns {
		if negated, ok := strings.CutPrefix(pattern, "!"); ok {
			if Match(negated, value) {
				matched = false
			}
			continue
		}
		if Match(pattern, value) {
			matched = true
		}
	}
	return matched
}

func MatchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if Match(pattern, value) {
			return true
		}
	}
	return false
}

// Match reports whether value matches a filter pattern. Globs follow doublestar: "*"
// stays within a path segment, "**" crosses segments, "?" matches one character and
// "[...]" is a character class. A "+" repeats the preceding character or class one or
// more times. Patterns doublestar rejects only match themselves.
func Match(pattern, value string) bool {
	prefix, atom, rest, ok := splitRepeat(pattern)
	if !ok {
		matched, err := doublestar.Match(pattern, value)
		if err != nil {
			return pattern == value
		}
		return matched
	}

	switch atom {
	case "*":
		return Match(prefix+"*"+rest, value)
	case "+":
		atom = `\+`
	}
	for n := 1; n <= len(value); n++ {
		if Match(prefix+strings.Repeat(atom, n)+rest, value) {
			return true
		}
	}
	return false
}

// splitRepeat finds the first unescaped "+" and the atom it repeats: a character, an
// escaped character or a character class.
func splitRepeat(pattern string) (prefix, atom, rest string, ok bool) {
	start := -1
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			start = i
			i++
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return "", "", "", false
			}
			start = i
			i += end + 1
		case '+':
			if start < 0 {
				start = i
				continue
			}
			return pattern[:start], pattern[start:i], pattern[i+1:], true
		default:
			start = i
		}
	}
	return "", "", "", false
}
