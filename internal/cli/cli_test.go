package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/cigraph/internal/app"
)

func envFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		args         []string
		env          map[string]string
		expectedExit bool
		expectedErr  string
		check        func(t *testing.T, cfg *app.Config)
	}{
		{
			name: "evaluate with positional template",
			args: []string{"-event", "push.json", "pipeline.yml"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.ModeEvaluate, cfg.Mode)
				assert.Equal(t, "pipeline.yml", cfg.TemplatePath)
				assert.Equal(t, "push.json", cfg.EventPath)
				assert.Equal(t, "github-push", cfg.TasksFor)
				assert.Equal(t, "json", cfg.LogFormat)
				assert.Empty(t, cfg.Listen)
			},
		},
		{
			name: "shorthand template wins over positional",
			args: []string{"-t", "a.yml", "-event", "-", "b.yml"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "a.yml", cfg.TemplatePath)
			},
		},
		{
			name: "validate needs no event",
			args: []string{"-validate"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.ModeValidate, cfg.Mode)
				assert.Empty(t, cfg.TemplatePath)
			},
		},
		{
			name: "serve",
			args: []string{"-serve", "-listen", "127.0.0.1:9000", "-webhook-secret", "s", "-log-format", "TEXT"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.ModeServe, cfg.Mode)
				assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
				assert.Equal(t, "s", cfg.WebhookSecret)
				assert.Equal(t, "text", cfg.LogFormat)
			},
		},
		{
			name: "environment supplies defaults",
			args: []string{"-serve"},
			env: map[string]string{
				"CIGRAPH_LOG_LEVEL":        "debug",
				"CIGRAPH_WORKERS":          "3",
				"CIGRAPH_DEFAULT_DEADLINE": "2h",
				"CIGRAPH_PUBLISH_URL":      "http://scheduler:3000/socket.io/",
				"CIGRAPH_TEMPLATE":         "ci",
			},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, 3, cfg.Workers)
				assert.Equal(t, 2*time.Hour, cfg.DefaultDeadline)
				assert.Equal(t, "http://scheduler:3000/socket.io/", cfg.PublishURL)
				assert.Equal(t, "ci", cfg.TemplatePath)
				assert.Equal(t, app.DefaultListen, cfg.Listen)
			},
		},
		{
			name: "flags beat environment",
			args: []string{"-serve", "-workers", "5", "-log-level", "warn"},
			env:  map[string]string{"CIGRAPH_WORKERS": "3", "CIGRAPH_LOG_LEVEL": "debug"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, 5, cfg.Workers)
				assert.Equal(t, "warn", cfg.LogLevel)
			},
		},
		{
			name:         "no event prints usage",
			args:         []string{},
			expectedExit: true,
		},
		{
			name:         "help",
			args:         []string{"-h"},
			expectedExit: true,
		},
		{
			name:        "unknown flag",
			args:        []string{"-nope"},
			expectedErr: "flag provided but not defined: -nope",
		},
		{
			name:        "conflicting modes",
			args:        []string{"-serve", "-validate"},
			expectedErr: "mutually exclusive",
		},
		{
			name:        "bad log format",
			args:        []string{"-validate", "-log-format", "xml"},
			expectedErr: "invalid log-format",
		},
		{
			name:        "bad log level",
			args:        []string{"-validate", "-log-level", "loud"},
			expectedErr: "invalid log-level",
		},
		{
			name:        "bad workers in environment",
			args:        []string{"-validate"},
			env:         map[string]string{"CIGRAPH_WORKERS": "many"},
			expectedErr: "invalid CIGRAPH_WORKERS",
		},
		{
			name:        "config validation",
			args:        []string{"-serve", "-publish-url", "not a url"},
			expectedErr: "PublishURL failed 'url'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cfg, exit, err := ParseWithEnv(tc.args, out, envFrom(tc.env))

			if tc.expectedErr != "" {
				require.Error(t, err)
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, 2, exitErr.Code)
				assert.Contains(t, exitErr.Message, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedExit, exit)
			if tc.expectedExit {
				assert.Nil(t, cfg)
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			require.NotNil(t, cfg)
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}
