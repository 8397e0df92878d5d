package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mode selects what Run does.
type Mode string

const (
	ModeEvaluate Mode = "evaluate"
	ModeValidate Mode = "validate"
	ModeServe    Mode = "serve"
)

// DefaultListen is the server address used when none is configured.
const DefaultListen = ":8080"

var validate = validator.New()

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Mode Mode `validate:"oneof=evaluate validate serve"`

	// TemplatePath is a template file or directory. Empty selects the
	// embedded reference pipeline.
	TemplatePath string
	// EventPath is a webhook body on disk, or "-" for the app's input.
	EventPath string `validate:"required_if=Mode evaluate"`
	TasksFor  string `validate:"required_if=Mode evaluate"`

	Listen        string `validate:"omitempty,hostname_port"`
	WebhookSecret string

	LogFormat       string `validate:"oneof=text json"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	Workers         int    `validate:"gte=0"`
	DefaultDeadline time.Duration

	PublishURL         string `validate:"omitempty,url"`
	PublishNamespace   string
	PublishEvent       string
	PublishAckEvent    string
	InsecureSkipVerify bool
}

// NewConfig fills defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeEvaluate
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Mode == ModeServe && cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.DefaultDeadline < 0 {
		return nil, errors.New("invalid configuration: DefaultDeadline must not be negative")
	}

	if err := validate.Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
			}
		}
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return &cfg, nil
}
