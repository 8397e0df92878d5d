package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/testutil"
)

func runApp(t *testing.T, cfg Config, opts ...Option) (string, *testutil.SafeBuffer, error) {
	t.Helper()
	cfg.LogFormat = "text"
	cfg.LogLevel = "debug"
	conf, err := NewConfig(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	opts = append([]Option{WithClock(testutil.FixedClock()), WithIDs(testutil.SequenceIDs())}, opts...)
	a, err := NewApp(out, logs, conf, opts...)
	if err != nil {
		return "", logs, err
	}
	err = a.Run(context.Background())
	return out.String(), logs, err
}

func TestRun_EvaluateFromFile(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"event.json": tagPushBody})

	out, logs, err := runApp(t, Config{EventPath: root + "/event.json", TasksFor: "github-push"})
	require.NoError(t, err)

	var graph struct {
		Tasks []map[string]any `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	require.Len(t, graph.Tasks, 5)
	assert.Equal(t, "release", graph.Tasks[4]["label"])
	testutil.AssertLogged(t, logs, "Task graph evaluated.")
}

func TestRun_EvaluateFromInput(t *testing.T) {
	out, logs, err := runApp(t,
		Config{EventPath: "-", TasksFor: "github-pull-request"},
		WithInput(strings.NewReader(closedPRBody)),
	)
	require.NoError(t, err)
	assert.Contains(t, out, `"tasks": []`)
	testutil.AssertLogged(t, logs, "No tasks produced.")
}

func TestRun_EvaluatePublishes(t *testing.T) {
	pub := &recordingPublisher{}
	out, _, err := runApp(t,
		Config{EventPath: "-", TasksFor: "github-push"},
		WithInput(strings.NewReader(branchPushBody)),
		WithPublisher(pub),
	)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, pub.graphs, 1)
	assert.Len(t, pub.graphs[0].Tasks, 4)
	assert.True(t, pub.closed)
}

func TestRun_EvaluateErrors(t *testing.T) {
	t.Run("missing event file", func(t *testing.T) {
		_, _, err := runApp(t, Config{EventPath: "/does/not/exist.json", TasksFor: "github-push"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open event")
	})

	t.Run("fatal evaluation", func(t *testing.T) {
		root := testutil.WriteTree(t, map[string]string{
			"pipeline.yml": "tasks:\n  - {label: a, task: {payload: {image: '${nope}'}}}\n",
		})
		_, _, err := runApp(t,
			Config{TemplatePath: root, EventPath: "-", TasksFor: "github-push"},
			WithInput(strings.NewReader(branchPushBody)),
		)
		testutil.RequireKind(t, err, evalerr.ErrUndeclaredVariable)
	})
}

func TestRun_Validate(t *testing.T) {
	out, _, err := runApp(t, Config{Mode: ModeValidate})
	require.NoError(t, err)

	var report struct {
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"lint", "packaging-test", "version-check", "tests", "release"}, report.Labels)
}

func TestRun_ValidateRejects(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.yml": "tasks:\n  - {label: deploy, gate: tag-release, task: {payload: {image: x}}}\n",
	})
	_, _, err := runApp(t, Config{Mode: ModeValidate, TemplatePath: root})
	testutil.RequireKind(t, err, evalerr.ErrUngatedDeployment)
}

func TestNewApp_RejectsInvalidTemplate(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.yml": "tasks:\n  - {label: x, task: {}}\n  - {label: x, task: {}}\n",
	})
	_, _, err := runApp(t, Config{Mode: ModeServe, TemplatePath: root})
	testutil.RequireKind(t, err, evalerr.ErrDuplicateLabel)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	conf := &Config{Mode: ModeServe, Listen: "127.0.0.1:0", LogFormat: "text", LogLevel: "info"}
	a, err := NewApp(&bytes.Buffer{}, &testutil.SafeBuffer{}, conf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Serve(a.Context(ctx), &recordingPublisher{}))
}
