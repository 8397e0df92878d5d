package testutil

import (
	"time"

	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/identity"
)

// Defaults shared by the event builders.
const (
	RepoURL     = "https://github.com/acme/widget"
	ForkURL     = "https://github.com/forker/widget"
	Sender      = "octocat"
	DefaultSHA  = "0123456789abcdef0123456789abcdef01234567"
	ReleaseSHA  = "fedcba9876543210fedcba9876543210fedcba98"
	ReferenceAt = "2024-05-01T10:00:00.000Z"
)

// PushEvent builds a push event for ref at sha, with a payload shaped like
// a GitHub webhook body.
func PushEvent(ref, sha string) *event.Event {
	return &event.Event{
		Kind:          event.KindPush,
		Ref:           ref,
		After:         sha,
		RepositoryURL: RepoURL,
		Sender:        Sender,
		Payload: map[string]any{
			"ref":        ref,
			"after":      sha,
			"repository": map[string]any{"html_url": RepoURL},
			"sender":     map[string]any{"login": Sender},
		},
	}
}

// PullRequestEvent builds a pull request event from a fork.
func PullRequestEvent(action, headRef, headSHA string) *event.Event {
	return &event.Event{
		Kind:          event.KindPullRequest,
		RepositoryURL: RepoURL,
		Sender:        Sender,
		PullRequest: &event.PullRequest{
			Action:      action,
			Number:      42,
			HeadRef:     headRef,
			HeadSHA:     headSHA,
			HeadRepoURL: ForkURL,
			BaseRef:     "main",
			BaseRepoURL: RepoURL,
		},
		Payload: map[string]any{
			"action":     action,
			"number":     42,
			"repository": map[string]any{"html_url": RepoURL},
			"sender":     map[string]any{"login": Sender},
			"pull_request": map[string]any{
				"head": map[string]any{"ref": headRef, "sha": headSHA, "repo": map[string]any{"html_url": ForkURL}},
				"base": map[string]any{"ref": "main", "repo": map[string]any{"html_url": RepoURL}},
			},
		},
	}
}

// ReleaseEvent builds a published release event.
func ReleaseEvent(tag, target string) *event.Event {
	return &event.Event{
		Kind:          event.KindRelease,
		RepositoryURL: RepoURL,
		Sender:        Sender,
		Release:       &event.Release{TagName: tag, TargetCommitish: target},
		Payload: map[string]any{
			"action":     "published",
			"repository": map[string]any{"html_url": RepoURL},
			"sender":     map[string]any{"login": Sender},
			"release":    map[string]any{"tag_name": tag, "target_commitish": target},
		},
	}
}

// FixedClock returns a clock frozen at ReferenceAt.
func FixedClock() clock.Clock {
	t, err := clock.Parse(ReferenceAt)
	if err != nil {
		panic(err)
	}
	return clock.Fixed(t)
}

// ClockAt returns a clock frozen at t.
func ClockAt(t time.Time) clock.Clock {
	return clock.Fixed(t)
}

// SequenceIDs returns a deterministic identity generator.
func SequenceIDs() identity.Generator {
	return identity.Sequence("task-")
}
