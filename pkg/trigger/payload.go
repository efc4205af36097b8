package trigger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/greboid/actrun/pkg/workflow"
)

type repositoryPayload struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

type userPayload struct {
	Login string `json:"login"`
}

type commitPayload struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

type pushPayload struct {
	Ref        string            `json:"ref"`
	After      string            `json:"after"`
	Deleted    bool              `json:"deleted"`
	Commits    []commitPayload   `json:"commits"`
	Repository repositoryPayload `json:"repository"`
	Sender     userPayload       `json:"sender"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository repositoryPayload `json:"repository"`
	Sender     userPayload       `json:"sender"`
}

// ParsePayload builds an Event from a GitHub webhook body. name is the X-GitHub-Event header.
func ParsePayload(name string, body []byte) (Event, error) {
	switch name {
	case workflow.EventPush:
		var payload pushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return Event{}, fmt.Errorf("decoding push payload: %w", err)
		}
		if payload.Ref == "" {
			return Event{}, fmt.Errorf("push payload has no ref")
		}
		event := Event{
			Name:         name,
			SHA:          payload.After,
			Repository:   payload.Repository.FullName,
			Actor:        payload.Sender.Login,
			Deleted:      payload.Deleted,
			ChangedFiles: changedFiles(payload.Commits),
		}
		event.Branch, event.Tag = SplitRef(payload.Ref)
		return event, nil

	case workflow.EventPullRequest:
		var payload pullRequestPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return Event{}, fmt.Errorf("decoding pull_request payload: %w", err)
		}
		if payload.PullRequest.Base.Ref == "" {
			return Event{}, fmt.Errorf("pull_request payload has no base ref")
		}
		return Event{
			Name:       name,
			Action:     payload.Action,
			Branch:     payload.PullRequest.Base.Ref,
			HeadBranch: payload.PullRequest.Head.Ref,
			Number:     payload.Number,
			SHA:        payload.PullRequest.Head.SHA,
			Repository: payload.Repository.FullName,
			Actor:      payload.Sender.Login,
		}, nil

	default:
		return Event{}, fmt.Errorf("unsupported event %q", name)
	}
}

// SplitRef turns refs/heads/x into a branch and refs/tags/x into a tag.
// Any other value is treated as a bare branch name.
func SplitRef(ref string) (branch, tag string) {
	if t, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
		return "", t
	}
	return strings.TrimPrefix(ref, "refs/heads/"), ""
}

func changedFiles(commits []commitPayload) []string {
	if len(commits) == 0 {
		return nil
	}
	var files []string
	for _, commit := range commits {
		for _, group := range [][]string{commit.Added, commit.Modified, commit.Removed} {
			for _, file := range group {
				if !slices.Contains(files, file) {
					files = append(files, file)
				}
			}
		}
	}
	slices.Sort(files)
	return files
}
