package evalctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cigraph/internal/evalctx"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestBuild_Push(t *testing.T) {
	ev := testutil.PushEvent("refs/heads/main", testutil.DefaultSHA)

	env, err := evalctx.Build(event.TasksForPush, ev)
	require.NoError(t, err)

	require.True(t, env.Admitted())
	assert.NoError(t, env.Reason())
	assert.Equal(t, "github-push", env.String(evalctx.VarTasksFor))
	assert.Equal(t, "refs/heads/main", env.String(evalctx.VarHeadBranch))
	assert.Equal(t, ev.After, env.String(evalctx.VarHeadRev), "head_rev must be the after field verbatim")
	assert.Equal(t, testutil.RepoURL, env.String(evalctx.VarRepository))
	assert.Equal(t, testutil.Sender, env.String(evalctx.VarUser))
	assert.Equal(t, "branch", env.String(evalctx.VarHeadRefKind))

	evVal, ok := env.Lookup(evalctx.VarEvent)
	require.True(t, ok)
	assert.Equal(t, testutil.DefaultSHA, evVal.GetAttr("after").AsString())
}

func TestBuild_PushTag(t *testing.T) {
	env, err := evalctx.Build(event.TasksForPush, testutil.PushEvent("refs/tags/v2.0.0", testutil.DefaultSHA))
	require.NoError(t, err)
	assert.Equal(t, "tag", env.String(evalctx.VarHeadRefKind))
}

func TestBuild_PullRequest(t *testing.T) {
	for _, action := range event.AdmittedActions {
		t.Run(action, func(t *testing.T) {
			env, err := evalctx.Build(event.TasksForPullRequest, testutil.PullRequestEvent(action, "fix-bug", "f00d"))
			require.NoError(t, err)
			require.True(t, env.Admitted())
			assert.Equal(t, "fix-bug", env.String(evalctx.VarHeadBranch))
			assert.Equal(t, "f00d", env.String(evalctx.VarHeadRev))
			assert.Equal(t, testutil.ForkURL, env.String(evalctx.VarRepository), "pull requests build from the head repository")
			assert.Equal(t, "pull", env.String(evalctx.VarHeadRefKind))
		})
	}
}

func TestBuild_Release(t *testing.T) {
	env, err := evalctx.Build(event.TasksForRelease, testutil.ReleaseEvent("v1.4.0", "master"))
	require.NoError(t, err)
	require.True(t, env.Admitted())
	assert.Equal(t, "master", env.String(evalctx.VarHeadBranch))
	assert.Equal(t, "v1.4.0", env.String(evalctx.VarHeadRev))
	assert.Equal(t, testutil.RepoURL, env.String(evalctx.VarRepository))
	assert.Equal(t, "tag", env.String(evalctx.VarHeadRefKind))
}

func TestBuild_NotAdmitted(t *testing.T) {
	testCases := []struct {
		name     string
		tasksFor event.Classification
		ev       *event.Event
	}{
		{"closed pull request", event.TasksForPullRequest, testutil.PullRequestEvent("closed", "fix", "f00d")},
		{"pull request without section", event.TasksForPullRequest, testutil.PushEvent("refs/heads/main", "abc")},
		{"release without section", event.TasksForRelease, testutil.PushEvent("refs/heads/main", "abc")},
		{"unknown classification", "github-issue-comment", testutil.PushEvent("refs/heads/main", "abc")},
		{"nil event", "cron", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := evalctx.Build(tc.tasksFor, tc.ev)
			require.NoError(t, err)

			assert.False(t, env.Admitted())
			require.ErrorIs(t, env.Reason(), evalerr.ErrUnknownClassification)
			assert.True(t, evalerr.IsSoft(env.Reason()))

			assert.Equal(t, []string{"event", "repository", "tasks_for", "user"}, env.Names())
			_, ok := env.Lookup(evalctx.VarHeadRev)
			assert.False(t, ok)
		})
	}
}

func TestEnvironment_WithShadows(t *testing.T) {
	root := evalctx.New(map[string]cty.Value{
		"a": cty.StringVal("root-a"),
		"b": cty.StringVal("root-b"),
	})
	child := root.With(map[string]cty.Value{"a": cty.StringVal("child-a")})

	assert.Equal(t, "child-a", child.String("a"))
	assert.Equal(t, "root-b", child.String("b"))
	assert.Equal(t, "root-a", root.String("a"), "parent must be unchanged")

	vars := child.Variables()
	assert.Equal(t, "child-a", vars["a"].AsString())
	assert.Len(t, vars, 2)

	assert.Same(t, root, root.With(nil))
}
