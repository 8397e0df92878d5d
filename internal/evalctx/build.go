package evalctx

import (
	"fmt"

	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/refs"
	"github.com/zclconf/go-cty/cty"
)

// Build derives the environment for one event. Events the evaluator does
// not target still yield an environment, carrying only tasks_for, event,
// user and repository, that is not admitted and whose Reason is an
// ErrUnknownClassification.
func Build(tasksFor event.Classification, ev *event.Event) (*Environment, error) {
	if ev == nil {
		ev = &event.Event{}
	}

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	eventVal, err := cgexpr.ToCty(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to convert event payload: %w", err)
	}

	base := map[string]cty.Value{
		VarTasksFor:   cty.StringVal(string(tasksFor)),
		VarEvent:      eventVal,
		VarUser:       cty.StringVal(ev.Sender),
		VarRepository: cty.StringVal(ev.RepositoryURL),
	}

	head, reason := resolveHead(tasksFor, ev)
	if reason != nil {
		env := New(base)
		env.admitted = false
		env.reason = reason
		return env, nil
	}

	base[VarHeadBranch] = cty.StringVal(head.branch)
	base[VarHeadRev] = cty.StringVal(head.rev)
	base[VarRepository] = cty.StringVal(head.repository)
	base[VarHeadRefKind] = cty.StringVal(head.refKind.String())
	return New(base), nil
}

type headInfo struct {
	branch     string
	rev        string
	repository string
	refKind    refs.Kind
}

func resolveHead(tasksFor event.Classification, ev *event.Event) (headInfo, error) {
	switch tasksFor {
	case event.TasksForPush:
		return headInfo{
			branch:     ev.Ref,
			rev:        ev.After,
			repository: ev.RepositoryURL,
			refKind:    refs.Parse(ev.Ref).Kind,
		}, nil

	case event.TasksForPullRequest:
		pr := ev.PullRequest
		if pr == nil {
			return headInfo{}, evalerr.New(evalerr.ErrUnknownClassification, VarTasksFor, "%s event carries no pull_request section", tasksFor)
		}
		if !event.IsAdmittedAction(pr.Action) {
			return headInfo{}, evalerr.New(evalerr.ErrUnknownClassification, VarTasksFor, "pull request action %q produces no tasks", pr.Action)
		}
		repo := pr.HeadRepoURL
		if repo == "" {
			repo = ev.RepositoryURL
		}
		return headInfo{
			branch:     pr.HeadRef,
			rev:        pr.HeadSHA,
			repository: repo,
			refKind:    refs.KindPull,
		}, nil

	case event.TasksForRelease:
		rel := ev.Release
		if rel == nil {
			return headInfo{}, evalerr.New(evalerr.ErrUnknownClassification, VarTasksFor, "%s event carries no release section", tasksFor)
		}
		return headInfo{
			branch:     rel.TargetCommitish,
			rev:        rel.TagName,
			repository: ev.RepositoryURL,
			refKind:    refs.KindTag,
		}, nil
	}

	return headInfo{}, evalerr.New(evalerr.ErrUnknownClassification, VarTasksFor, "unrecognised classification %q", tasksFor)
}
