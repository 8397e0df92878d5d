package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Push(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"after": "abc123",
		"repository": {"html_url": "https://github.com/acme/widget"},
		"sender": {"login": "octocat"}
	}`)

	ev, err := Decode(KindPush, body)
	require.NoError(t, err)

	assert.Equal(t, KindPush, ev.Kind)
	assert.Equal(t, "refs/heads/main", ev.Ref)
	assert.Equal(t, "abc123", ev.After)
	assert.Equal(t, "https://github.com/acme/widget", ev.RepositoryURL)
	assert.Equal(t, "octocat", ev.Sender)
	assert.Nil(t, ev.PullRequest)
	assert.Nil(t, ev.Release)
	assert.Equal(t, "abc123", ev.Payload["after"])
}

func TestDecode_PullRequest(t *testing.T) {
	body := []byte(`{
		"action": "synchronize",
		"number": 12,
		"repository": {"html_url": "https://github.com/acme/widget"},
		"sender": {"login": "forker"},
		"pull_request": {
			"head": {"ref": "fix", "sha": "f00", "repo": {"html_url": "https://github.com/forker/widget"}},
			"base": {"ref": "main", "sha": "b44", "repo": {"html_url": "https://github.com/acme/widget"}}
		}
	}`)

	ev, err := Decode(KindPullRequest, body)
	require.NoError(t, err)
	require.NotNil(t, ev.PullRequest)

	pr := ev.PullRequest
	assert.Equal(t, "synchronize", pr.Action)
	assert.Equal(t, 12, pr.Number)
	assert.Equal(t, "fix", pr.HeadRef)
	assert.Equal(t, "f00", pr.HeadSHA)
	assert.Equal(t, "https://github.com/forker/widget", pr.HeadRepoURL)
	assert.Equal(t, "main", pr.BaseRef)
	assert.Equal(t, "https://github.com/acme/widget", pr.BaseRepoURL)
}

func TestDecode_Release(t *testing.T) {
	body := []byte(`{
		"action": "published",
		"release": {"tag_name": "v1.2.0", "target_commitish": "master"},
		"repository": {"html_url": "https://github.com/acme/widget"}
	}`)

	ev, err := Decode(KindRelease, body)
	require.NoError(t, err)
	require.NotNil(t, ev.Release)
	assert.Equal(t, "v1.2.0", ev.Release.TagName)
	assert.Equal(t, "master", ev.Release.TargetCommitish)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(KindPush, []byte(`{not json`))
	require.Error(t, err)

	_, err = Decode(KindPush, []byte(`null`))
	require.ErrorContains(t, err, "must be a JSON object")
}

func TestClassification(t *testing.T) {
	assert.Equal(t, TasksForPush, ClassifyGitHubEvent("push"))
	assert.Equal(t, TasksForPullRequest, ClassifyGitHubEvent("pull_request"))
	assert.Equal(t, TasksForRelease, ClassifyGitHubEvent("release"))
	assert.Equal(t, Classification("github-issues"), ClassifyGitHubEvent("issues"))

	assert.True(t, TasksForRelease.Known())
	assert.False(t, Classification("github-issues").Known())
	assert.Equal(t, KindPullRequest, KindFor(TasksForPullRequest))
}

func TestIsAdmittedAction(t *testing.T) {
	for _, action := range []string{"opened", "reopened", "synchronize"} {
		assert.True(t, IsAdmittedAction(action), action)
	}
	for _, action := range []string{"closed", "edited", "labeled", ""} {
		assert.False(t, IsAdmittedAction(action), action)
	}
}
