// Package evalerr defines the error taxonomy shared by every evaluation stage.
//
// Each failure carries a sentinel Kind so callers can branch with errors.Is,
// plus the template path that produced it. Only ErrUnknownClassification is
// soft: it turns an evaluation into a no-op instead of aborting it.
package evalerr

import (
	"errors"
	"fmt"
)

var (
	ErrUndeclaredVariable    = errors.New("undeclared variable")
	ErrDanglingDependency    = errors.New("dangling dependency")
	ErrUngatedDeployment     = errors.New("ungated deployment")
	ErrUnknownClassification = errors.New("unknown classification")
	ErrDuplicateLabel        = errors.New("duplicate label")
	ErrInvalidTemplate       = errors.New("invalid template")
	ErrExpression            = errors.New("expression error")
)

// Error wraps a taxonomy kind with the location and detail of one failure.
type Error struct {
	Kind error
	Path string
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Path)
	}
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds an *Error of the given kind.
func New(kind error, path, format string, args ...any) error {
	return &Error{Kind: kind, Path: path, Msg: fmt.Sprintf(format, args...)}
}

// IsSoft reports whether err only short-circuits evaluation to an empty graph.
func IsSoft(err error) bool {
	return errors.Is(err, ErrUnknownClassification)
}

// KindName returns a stable, machine-readable name for the error's kind, or
// "internal" when err is not part of the taxonomy.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrUndeclaredVariable):
		return "undeclared_variable"
	case errors.Is(err, ErrDanglingDependency):
		return "dangling_dependency"
	case errors.Is(err, ErrUngatedDeployment):
		return "ungated_deployment"
	case errors.Is(err, ErrUnknownClassification):
		return "unknown_classification"
	case errors.Is(err, ErrDuplicateLabel):
		return "duplicate_label"
	case errors.Is(err, ErrInvalidTemplate):
		return "invalid_template"
	case errors.Is(err, ErrExpression):
		return "expression"
	default:
		return "internal"
	}
}
