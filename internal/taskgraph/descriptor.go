package taskgraph

import (
	"encoding/json"
	"time"

	"github.com/vk/cigraph/internal/clock"
)

// Body keys owned by the assembler or decoded into typed fields.
const (
	keyTaskID       = "taskId"
	keyDependencies = "dependencies"
	keyCreated      = "created"
	keyDeadline     = "deadline"
	keyPayload      = "payload"
	keyMetadata     = "metadata"
	keyLabel        = "label"
	keyGate         = "gate"
)

// reservedKeys may not appear in an evaluated task body.
var reservedKeys = []string{keyTaskID, keyDependencies}

// Descriptor is one concrete, executable task.
type Descriptor struct {
	Label        string
	TaskID       string    `validate:"required"`
	Gate         string
	Created      time.Time `validate:"required"`
	Deadline     time.Time `validate:"required,gtfield=Created"`
	Dependencies []string
	Payload      Payload
	Metadata     Metadata

	// Extra holds pass-through scheduler fields such as provisionerId,
	// workerType, scopes and routes.
	Extra map[string]any
}

// Payload is what the worker runs.
type Payload struct {
	Image      string              `json:"image" validate:"required"`
	Command    []string            `json:"command,omitempty"`
	MaxRunTime int                 `json:"maxRunTime,omitempty" validate:"gte=0"`
	Env        map[string]string   `json:"env,omitempty"`
	Features   map[string]bool     `json:"features,omitempty"`
	Artifacts  map[string]Artifact `json:"artifacts,omitempty" validate:"dive"`

	Extra map[string]any `json:"-"`
}

// Artifact is a file or directory the worker uploads after the run.
type Artifact struct {
	Type    string `json:"type" validate:"required,oneof=file directory"`
	Path    string `json:"path" validate:"required"`
	Expires string `json:"expires,omitempty"`
}

// Metadata describes a task to humans.
type Metadata struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty" validate:"omitempty,contains=@"`
	Source      string `json:"source,omitempty" validate:"omitempty,url"`
}

// MarshalJSON renders the descriptor in scheduler form, with pass-through
// fields at the top level.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+8)
	for k, v := range d.Extra {
		out[k] = v
	}
	deps := d.Dependencies
	if deps == nil {
		deps = []string{}
	}
	out[keyTaskID] = d.TaskID
	out[keyLabel] = d.Label
	out[keyCreated] = clock.Format(d.Created)
	out[keyDeadline] = clock.Format(d.Deadline)
	out[keyDependencies] = deps
	out[keyPayload] = &d.Payload
	out[keyMetadata] = d.Metadata
	if d.Gate != "" {
		out[keyGate] = d.Gate
	}
	return json.Marshal(out)
}

// MarshalJSON merges the typed payload fields over Extra.
func (p *Payload) MarshalJSON() ([]byte, error) {
	type plain Payload
	typed, err := json.Marshal((*plain)(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return typed, nil
	}

	out := make(map[string]any, len(p.Extra)+6)
	for k, v := range p.Extra {
		out[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}
