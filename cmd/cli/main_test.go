package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/cigraph/internal/cli"
)

func TestRun_Evaluate(t *testing.T) {
	event := `{"ref":"refs/tags/v1.0.0","after":"def456","repository":{"html_url":"https://github.com/acme/widget"}}`
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	err := run(context.Background(), strings.NewReader(event), out, errOut,
		[]string{"-event", "-", "-tasks-for", "github-push", "-log-format", "text"})
	require.NoError(t, err, errOut.String())

	var graph struct {
		Tasks []struct {
			Label        string   `json:"label"`
			Dependencies []string `json:"dependencies"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &graph))
	require.Len(t, graph.Tasks, 5)
	assert.Equal(t, "release", graph.Tasks[4].Label)
	assert.Len(t, graph.Tasks[4].Dependencies, 4)
}

func TestRun_InvalidTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - label: x\n    task: [\n"), 0o600))

	err := run(context.Background(), strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-validate", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load template")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), strings.NewReader(""), out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}
