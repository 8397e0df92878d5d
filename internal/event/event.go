// Package event models the inbound repository events that trigger an
// evaluation and decodes them from GitHub webhook payloads.
package event

import (
	"encoding/json"
	"fmt"
)

// Kind is the event family as reported by the webhook layer.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
	KindRelease     Kind = "release"
)

// Classification is the `tasks_for` tag describing how an event arrived.
type Classification string

const (
	TasksForPush        Classification = "github-push"
	TasksForPullRequest Classification = "github-pull-request"
	TasksForRelease     Classification = "github-release"
)

// Known reports whether the classification is one the evaluator targets.
func (c Classification) Known() bool {
	switch c {
	case TasksForPush, TasksForPullRequest, TasksForRelease:
		return true
	}
	return false
}

// ClassifyGitHubEvent maps an X-GitHub-Event header value to a classification.
// Unrecognised names still produce a `github-` tag so the evaluator can
// report them as unknown instead of rejecting the request.
func ClassifyGitHubEvent(name string) Classification {
	switch Kind(name) {
	case KindPush:
		return TasksForPush
	case KindPullRequest:
		return TasksForPullRequest
	case KindRelease:
		return TasksForRelease
	default:
		return Classification("github-" + name)
	}
}

// KindFor returns the event kind carried by a classification.
func KindFor(c Classification) Kind {
	switch c {
	case TasksForPush:
		return KindPush
	case TasksForPullRequest:
		return KindPullRequest
	case TasksForRelease:
		return KindRelease
	default:
		return Kind(c)
	}
}

// AdmittedActions are the pull request actions that produce tasks.
var AdmittedActions = []string{"opened", "reopened", "synchronize"}

// IsAdmittedAction reports whether a pull request action produces tasks.
func IsAdmittedAction(action string) bool {
	for _, a := range AdmittedActions {
		if a == action {
			return true
		}
	}
	return false
}

// PullRequest holds the pull-request specific fields of an event.
type PullRequest struct {
	Action      string
	Number      int
	HeadRef     string
	HeadSHA     string
	HeadRepoURL string
	BaseRef     string
	BaseRepoURL string
}

// Release holds the release specific fields of an event.
type Release struct {
	TagName         string
	TargetCommitish string
}

// Event is one immutable trigger. Payload is the raw decoded webhook body and
// is exposed to templates as the `event` variable.
type Event struct {
	Kind          Kind
	Ref           string
	After         string
	RepositoryURL string
	Sender        string
	PullRequest   *PullRequest
	Release       *Release
	Payload       map[string]any
}

// githubPayload is the subset of a GitHub webhook body the evaluator reads.
type githubPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Action     string `json:"action"`
	Number     int    `json:"number"`
	Repository *struct {
		HTMLURL string `json:"html_url"`
	} `json:"repository"`
	Sender *struct {
		Login string `json:"login"`
	} `json:"sender"`
	PullRequest *struct {
		Number int           `json:"number"`
		Head   githubPRPoint `json:"head"`
		Base   githubPRPoint `json:"base"`
	} `json:"pull_request"`
	Release *struct {
		TagName         string `json:"tag_name"`
		TargetCommitish string `json:"target_commitish"`
	} `json:"release"`
}

type githubPRPoint struct {
	Ref  string `json:"ref"`
	SHA  string `json:"sha"`
	Repo *struct {
		HTMLURL string `json:"html_url"`
	} `json:"repo"`
}

// Decode builds an Event of the given kind from a GitHub webhook body.
func Decode(kind Kind, body []byte) (*Event, error) {
	var typed githubPayload
	if err := json.Unmarshal(body, &typed); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s payload must be a JSON object", kind)
	}

	ev := &Event{
		Kind:    kind,
		Ref:     typed.Ref,
		After:   typed.After,
		Payload: raw,
	}
	if typed.Repository != nil {
		ev.RepositoryURL = typed.Repository.HTMLURL
	}
	if typed.Sender != nil {
		ev.Sender = typed.Sender.Login
	}

	if pr := typed.PullRequest; pr != nil {
		number := pr.Number
		if number == 0 {
			number = typed.Number
		}
		ev.PullRequest = &PullRequest{
			Action:  typed.Action,
			Number:  number,
			HeadRef: pr.Head.Ref,
			HeadSHA: pr.Head.SHA,
			BaseRef: pr.Base.Ref,
		}
		if pr.Head.Repo != nil {
			ev.PullRequest.HeadRepoURL = pr.Head.Repo.HTMLURL
		}
		if pr.Base.Repo != nil {
			ev.PullRequest.BaseRepoURL = pr.Base.Repo.HTMLURL
		}
	}

	if rel := typed.Release; rel != nil {
		ev.Release = &Release{
			TagName:         rel.TagName,
			TargetCommitish: rel.TargetCommitish,
		}
	}

	return ev, nil
}
