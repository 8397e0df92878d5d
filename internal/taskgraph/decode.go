package taskgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/evalerr"
)

var payloadFields = []string{"image", "command", "maxRunTime", "env", "features", "artifacts"}

// decodeDescriptor splits an evaluated, merged task body into typed fields
// and pass-through extras. Missing timestamps default to now and
// now+deadline.
func decodeDescriptor(body map[string]any, now func() time.Time, deadline time.Duration, path string) (*Descriptor, error) {
	for _, key := range reservedKeys {
		if _, ok := body[key]; ok {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "%q is assigned by the evaluator and may not be set", key)
		}
	}

	d := &Descriptor{Extra: make(map[string]any)}
	for k, v := range body {
		switch k {
		case keyCreated, keyDeadline, keyPayload, keyMetadata:
		default:
			d.Extra[k] = v
		}
	}

	var err error
	if d.Created, err = timestamp(body, keyCreated, path); err != nil {
		return nil, err
	}
	if d.Created.IsZero() {
		d.Created = now()
	}
	if d.Deadline, err = timestamp(body, keyDeadline, path); err != nil {
		return nil, err
	}
	if d.Deadline.IsZero() {
		d.Deadline = d.Created.Add(deadline)
	}

	if raw, ok := body[keyPayload]; ok {
		if err := decodePayload(raw, &d.Payload, path+"."+keyPayload); err != nil {
			return nil, err
		}
	}
	if raw, ok := body[keyMetadata]; ok {
		if err := decodeStrict(raw, &d.Metadata); err != nil {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+"."+keyMetadata, "%v", err)
		}
	}
	return d, nil
}

func timestamp(body map[string]any, key, path string) (time.Time, error) {
	raw, ok := body[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, evalerr.New(evalerr.ErrInvalidTemplate, path+"."+key, "expected a timestamp string, got %T", raw)
	}
	t, err := clock.Parse(s)
	if err != nil {
		return time.Time{}, evalerr.New(evalerr.ErrInvalidTemplate, path+"."+key, "%v", err)
	}
	return t, nil
}

func decodePayload(raw any, p *Payload, path string) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return evalerr.New(evalerr.ErrInvalidTemplate, path, "payload must be a mapping, got %T", raw)
	}

	typed := make(map[string]any, len(payloadFields))
	p.Extra = nil
	for k, v := range m {
		if contains(payloadFields, k) {
			typed[k] = v
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}
	if err := decodeStrict(typed, p); err != nil {
		return evalerr.New(evalerr.ErrInvalidTemplate, path, "%v", err)
	}
	return nil
}

// decodeStrict maps a plain value onto a struct through its JSON tags,
// rejecting unknown fields.
func decodeStrict(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// validationError flattens validator failures into one taxonomy error.
func validationError(err error, path string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return evalerr.New(evalerr.ErrInvalidTemplate, path, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Descriptor.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", field, fe.Tag()))
		}
	}
	return evalerr.New(evalerr.ErrInvalidTemplate, path, "invalid descriptor:\n  - %s", strings.Join(msgs, "\n  - "))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
