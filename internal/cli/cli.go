package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vk/cigraph/internal/app"
	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/publish"
)

// EnvPrefix prefixes every environment variable that supplies a flag default.
const EnvPrefix = "CIGRAPH_"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Parse processes command-line arguments with defaults taken from the
// process environment. It returns a populated Config, a boolean indicating if
// the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	return ParseWithEnv(args, output, os.LookupEnv)
}

// ParseWithEnv is Parse with an explicit environment.
func ParseWithEnv(args []string, output io.Writer, lookup LookupFunc) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	env := envDefaults{lookup: lookup}
	flagSet := flag.NewFlagSet("cigraph", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
cigraph - Evaluate a CI pipeline template against a repository event.

Usage:
  cigraph [options] -event EVENT_JSON [TEMPLATE]
  cigraph -validate [TEMPLATE]
  cigraph -serve [options] [TEMPLATE]

Arguments:
  TEMPLATE
    Path to a .yml/.yaml/.json template or a directory of them. The embedded
    reference pipeline is used when omitted.

Every option can also be set through an environment variable named
`+EnvPrefix+`<OPTION>, e.g. `+EnvPrefix+`LOG_LEVEL=debug. A .env file in the
working directory is loaded first.

Options:
`)
		flagSet.PrintDefaults()
	}

	templateFlag := flagSet.String("template", env.str("TEMPLATE", ""), "Path to the template file or directory.")
	tFlag := flagSet.String("t", "", "Path to the template file or directory (shorthand).")
	eventFlag := flagSet.String("event", env.str("EVENT", ""), "Path to a webhook body in JSON, or '-' for stdin.")
	tasksForFlag := flagSet.String("tasks-for", env.str("TASKS_FOR", string(event.TasksForPush)), "Event classification, e.g. 'github-push', 'github-pull-request', 'github-release'.")
	validateFlag := flagSet.Bool("validate", false, "Only validate the template and print a report.")
	serveFlag := flagSet.Bool("serve", false, "Run the webhook server.")
	listenFlag := flagSet.String("listen", env.str("LISTEN", app.DefaultListen), "Server listen address.")
	secretFlag := flagSet.String("webhook-secret", env.str("WEBHOOK_SECRET", ""), "Secret used to verify X-Hub-Signature-256. Empty disables verification.")
	logFormatFlag := flagSet.String("log-format", env.str("LOG_FORMAT", "json"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", env.str("LOG_LEVEL", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of task entries evaluated concurrently. 0 uses one per CPU.")
	deadlineFlag := flagSet.Duration("deadline", 0, "Deadline for tasks that set none, relative to their creation. 0 uses one hour.")
	publishURLFlag := flagSet.String("publish-url", env.str("PUBLISH_URL", ""), "socket.io URL of the scheduler. Empty writes graphs to stdout.")
	publishNamespaceFlag := flagSet.String("publish-namespace", env.str("PUBLISH_NAMESPACE", "/"), "socket.io namespace of the scheduler.")
	publishEventFlag := flagSet.String("publish-event", env.str("PUBLISH_EVENT", publish.DefaultEvent), "Event name graphs are emitted under.")
	publishAckFlag := flagSet.String("publish-ack-event", env.str("PUBLISH_ACK_EVENT", ""), "Event the scheduler replies with. Empty does not wait.")
	insecureFlag := flagSet.Bool("insecure-skip-verify", false, "Skip TLS verification when connecting to the scheduler.")

	if v, ok := env.intValue("WORKERS"); ok {
		*workersFlag = v
	}
	if v, ok := env.durationValue("DEFAULT_DEADLINE"); ok {
		*deadlineFlag = v
	}
	if err := env.err(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *templateFlag
	if *tFlag != "" {
		path = *tFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Template path determined.", "path", path)

	mode := app.ModeEvaluate
	switch {
	case *validateFlag && *serveFlag:
		return nil, false, &ExitError{Code: 2, Message: "-validate and -serve are mutually exclusive"}
	case *validateFlag:
		mode = app.ModeValidate
	case *serveFlag:
		mode = app.ModeServe
	}

	if mode == app.ModeEvaluate && *eventFlag == "" {
		slog.Debug("No event provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg := app.Config{
		Mode:               mode,
		TemplatePath:       path,
		EventPath:          *eventFlag,
		TasksFor:           *tasksForFlag,
		WebhookSecret:      *secretFlag,
		LogFormat:          logFormat,
		LogLevel:           logLevel,
		Workers:            *workersFlag,
		DefaultDeadline:    *deadlineFlag,
		PublishURL:         *publishURLFlag,
		PublishNamespace:   *publishNamespaceFlag,
		PublishEvent:       *publishEventFlag,
		PublishAckEvent:    *publishAckFlag,
		InsecureSkipVerify: *insecureFlag,
	}
	if mode == app.ModeServe {
		cfg.Listen = *listenFlag
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "mode", config.Mode)
	return config, false, nil
}

// envDefaults reads prefixed environment variables and remembers the first
// malformed one.
type envDefaults struct {
	lookup LookupFunc
	bad    error
}

func (e *envDefaults) str(name, fallback string) string {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		return v
	}
	return fallback
}

func (e *envDefaults) intValue(name string) (int, bool) {
	raw, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil && e.bad == nil {
		e.bad = fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return v, err == nil
}

func (e *envDefaults) durationValue(name string) (time.Duration, bool) {
	raw, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil && e.bad == nil {
		e.bad = fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return v, err == nil
}

func (e *envDefaults) err() error { return e.bad }
