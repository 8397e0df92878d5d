package cgexpr

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Diagnostic summaries hcl reports when an expression reads a name or
// attribute the evaluation context does not provide.
var undeclaredSummaries = map[string]struct{}{
	"Unknown variable":      {},
	"Unsupported attribute": {},
	"Missing map element":   {},
	"Variables not allowed": {},
}

var unknownFunctionSummaries = map[string]struct{}{
	"Call to unknown function":   {},
	"Function calls not allowed": {},
}

// Expression is a parsed HCL expression or string template.
type Expression struct {
	Source string
	Path   string

	expr     hcl.Expression
	template bool
}

// HCL exposes the underlying syntax tree.
func (e *Expression) HCL() hcl.Expression { return e.expr }

// IsTemplate reports whether the expression was parsed as a string template.
func (e *Expression) IsTemplate() bool { return e.template }

// HasInterpolation reports whether s must be parsed as a template.
func HasInterpolation(s string) bool {
	return strings.Contains(s, "${")
}

// ParseExpression parses src as an HCL native-syntax expression. path names
// the template location for error messages.
func ParseExpression(src, path string) (*Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "cannot parse expression %q: %s", src, firstError(diags))
	}
	return &Expression{Source: src, Path: path, expr: expr}, nil
}

// ParseTemplate parses src as an interpolated string. Only `${...}`
// sequences are special; `$${` yields a literal `${`.
func ParseTemplate(src, path string) (*Expression, error) {
	escaped := strings.ReplaceAll(src, "%{", "%%{")
	expr, diags := hclsyntax.ParseTemplate([]byte(escaped), path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, path, "cannot parse template %q: %s", src, firstError(diags))
	}
	return &Expression{Source: src, Path: path, expr: expr, template: true}, nil
}

// Evaluate computes the expression's value. Templates always yield a string.
func Evaluate(e *Expression, vars map[string]cty.Value, funcs map[string]function.Function) (cty.Value, error) {
	ectx := &hcl.EvalContext{Variables: vars, Functions: funcs}
	val, diags := e.expr.Value(ectx)
	if diags.HasErrors() {
		return cty.NilVal, classify(diags, e.Path)
	}
	if !val.IsWhollyKnown() {
		return cty.NilVal, evalerr.New(evalerr.ErrExpression, e.Path, "%q produced an unknown value", e.Source)
	}
	if !e.template {
		return val, nil
	}

	if val.IsNull() {
		return cty.NilVal, evalerr.New(evalerr.ErrExpression, e.Path, "%q interpolated a null value", e.Source)
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return cty.NilVal, evalerr.New(evalerr.ErrExpression, e.Path, "cannot interpolate %s into a string", val.Type().FriendlyName())
	}
	return str, nil
}

// EvaluateBool evaluates a condition and requires a boolean result.
func EvaluateBool(e *Expression, vars map[string]cty.Value, funcs map[string]function.Function) (bool, error) {
	val, err := Evaluate(e, vars, funcs)
	if err != nil {
		return false, err
	}
	if val.IsNull() {
		return false, evalerr.New(evalerr.ErrExpression, e.Path, "condition %q is null", e.Source)
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, evalerr.New(evalerr.ErrExpression, e.Path, "condition %q must be a bool, got %s", e.Source, val.Type().FriendlyName())
	}
	return b.True(), nil
}

func classify(diags hcl.Diagnostics, path string) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		if _, ok := undeclaredSummaries[d.Summary]; ok {
			return evalerr.New(evalerr.ErrUndeclaredVariable, path, "%s", describe(d))
		}
		if _, ok := unknownFunctionSummaries[d.Summary]; ok {
			return evalerr.New(evalerr.ErrInvalidTemplate, path, "%s", describe(d))
		}
		return evalerr.New(evalerr.ErrExpression, path, "%s", describe(d))
	}
	return evalerr.New(evalerr.ErrExpression, path, "%s", diags.Error())
}

func firstError(diags hcl.Diagnostics) string {
	for _, d := range diags {
		if d.Severity == hcl.DiagError {
			return describe(d)
		}
	}
	return diags.Error()
}

func describe(d *hcl.Diagnostic) string {
	if d.Detail == "" {
		return d.Summary
	}
	return d.Summary + "; " + d.Detail
}
