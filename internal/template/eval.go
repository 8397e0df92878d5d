package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/zclconf/go-cty/cty"
)

// Operator keys.
const (
	opIf      = "$if"
	opLet     = "$let"
	opEval    = "$eval"
	opFromNow = "$fromNow"
	opJSON    = "$json"
)

// companions lists the sibling keys each operator accepts.
var companions = map[string][]string{
	opIf:      {"then", "else"},
	opLet:     {"in"},
	opEval:    nil,
	opFromNow: {"from"},
	opJSON:    nil,
}

// Eval evaluates node in scope. The boolean result is false when the node
// is absent, as produced by an `$if` without the chosen branch; absent
// values are dropped from the enclosing mapping or sequence.
func Eval(node any, s Scope) (any, bool, error) {
	switch v := node.(type) {
	case nil:
		return nil, true, nil
	case string:
		out, err := evalString(v, s)
		return out, err == nil, err
	case []any:
		return evalSequence(v, s)
	case map[string]any:
		op, err := operatorOf(v, s.Path)
		if err != nil {
			return nil, false, err
		}
		if op != "" {
			return evalOperator(op, v, s)
		}
		return evalMapping(v, s)
	default:
		return v, true, nil
	}
}

// EvalExpression evaluates an HCL expression in scope.
func EvalExpression(src string, s Scope) (cty.Value, error) {
	expr, err := cgexpr.ParseExpression(src, s.Path)
	if err != nil {
		return cty.NilVal, err
	}
	return cgexpr.Evaluate(expr, s.Env.Variables(), s.Funcs)
}

// EvalCondition evaluates an HCL expression that must yield a bool.
func EvalCondition(src string, s Scope) (bool, error) {
	expr, err := cgexpr.ParseExpression(src, s.Path)
	if err != nil {
		return false, err
	}
	return cgexpr.EvaluateBool(expr, s.Env.Variables(), s.Funcs)
}

func evalString(v string, s Scope) (string, error) {
	if !cgexpr.HasInterpolation(v) {
		return v, nil
	}
	expr, err := cgexpr.ParseTemplate(v, s.Path)
	if err != nil {
		return "", err
	}
	val, err := cgexpr.Evaluate(expr, s.Env.Variables(), s.Funcs)
	if err != nil {
		return "", err
	}
	return val.AsString(), nil
}

func evalSequence(items []any, s Scope) (any, bool, error) {
	out := make([]any, 0, len(items))
	for i, item := range items {
		val, present, err := Eval(item, s.Index(i))
		if err != nil {
			return nil, false, err
		}
		if present {
			out = append(out, val)
		}
	}
	return out, true, nil
}

func evalMapping(m map[string]any, s Scope) (any, bool, error) {
	out := make(map[string]any, len(m))
	for _, key := range sortedKeys(m) {
		child := s.At(key)
		val, present, err := Eval(m[key], child)
		if err != nil {
			return nil, false, err
		}
		if !present {
			continue
		}

		outKey := key
		if strings.HasPrefix(key, "$$") {
			outKey = key[1:]
		} else if cgexpr.HasInterpolation(key) {
			if outKey, err = evalString(key, child); err != nil {
				return nil, false, err
			}
		}
		if _, dup := out[outKey]; dup {
			return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, child.Path, "key %q produced twice", outKey)
		}
		out[outKey] = val
	}
	return out, true, nil
}

// operatorOf returns the operator key of m, or "" for a plain mapping.
func operatorOf(m map[string]any, path string) (string, error) {
	var op string
	for key := range m {
		if !strings.HasPrefix(key, "$") || strings.HasPrefix(key, "$$") || strings.HasPrefix(key, "${") {
			continue
		}
		if _, known := companions[key]; !known {
			return "", evalerr.New(evalerr.ErrInvalidTemplate, path, "unknown operator %q", key)
		}
		if op != "" {
			return "", evalerr.New(evalerr.ErrInvalidTemplate, path, "operators %q and %q cannot share a mapping", op, key)
		}
		op = key
	}
	if op == "" {
		return "", nil
	}

	allowed := companions[op]
	for key := range m {
		if key == op || contains(allowed, key) {
			continue
		}
		return "", evalerr.New(evalerr.ErrInvalidTemplate, path, "unexpected key %q next to %s", key, op)
	}
	return op, nil
}

func evalOperator(op string, m map[string]any, s Scope) (any, bool, error) {
	s = s.At(op)
	switch op {
	case opIf:
		return evalIf(m, s)
	case opLet:
		return evalLet(m, s)
	case opEval:
		return evalEval(m[opEval], s)
	case opFromNow:
		return evalFromNow(m, s)
	case opJSON:
		return evalJSON(m[opJSON], s)
	}
	return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "unknown operator %q", op)
}

func evalIf(m map[string]any, s Scope) (any, bool, error) {
	cond, err := condition(m[opIf], s)
	if err != nil {
		return nil, false, err
	}
	branch := "else"
	if cond {
		branch = "then"
	}
	node, ok := m[branch]
	if !ok {
		return nil, false, nil
	}
	return Eval(node, s.At(branch))
}

func condition(node any, s Scope) (bool, error) {
	switch c := node.(type) {
	case bool:
		return c, nil
	case string:
		return EvalCondition(c, s)
	default:
		return false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "condition must be an expression string, got %T", node)
	}
}

func evalLet(m map[string]any, s Scope) (any, bool, error) {
	bindings, ok := m[opLet].(map[string]any)
	if !ok {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "bindings must be a mapping")
	}
	body, ok := m["in"]
	if !ok {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "missing \"in\"")
	}

	vars, err := Bind(bindings, s)
	if err != nil {
		return nil, false, err
	}
	inner := s.At("in")
	inner.Env = s.Env.With(vars)
	return Eval(body, inner)
}

// Bind evaluates let-style bindings in s and converts them to cty values.
// Absent bindings are left undeclared.
func Bind(bindings map[string]any, s Scope) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(bindings))
	for _, name := range sortedKeys(bindings) {
		child := s.At(name)
		if !hclsyntax.ValidIdentifier(name) {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, child.Path, "%q is not a valid variable name", name)
		}
		val, present, err := Eval(bindings[name], child)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		ctyVal, err := cgexpr.ToCty(val)
		if err != nil {
			return nil, evalerr.New(evalerr.ErrExpression, child.Path, "%v", err)
		}
		vars[name] = ctyVal
	}
	return vars, nil
}

func evalEval(node any, s Scope) (any, bool, error) {
	src, ok := node.(string)
	if !ok {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "expression must be a string, got %T", node)
	}
	val, err := EvalExpression(src, s)
	if err != nil {
		return nil, false, err
	}
	out, err := cgexpr.FromCty(val)
	if err != nil {
		return nil, false, evalerr.New(evalerr.ErrExpression, s.Path, "%v", err)
	}
	return out, true, nil
}

func evalFromNow(m map[string]any, s Scope) (any, bool, error) {
	offset, err := stringNode(m[opFromNow], s)
	if err != nil {
		return nil, false, err
	}

	var ref string
	if from, ok := m["from"]; ok {
		if ref, err = stringNode(from, s.At("from")); err != nil {
			return nil, false, err
		}
	}

	if s.Now == nil && ref == "" {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "no clock available")
	}
	base, err := reference(ref, s)
	if err != nil {
		return nil, false, err
	}
	out, err := clock.FromNow(offset, base)
	if err != nil {
		return nil, false, evalerr.New(evalerr.ErrExpression, s.Path, "%v", err)
	}
	return out, true, nil
}

func reference(ref string, s Scope) (t time.Time, err error) {
	if ref == "" {
		return s.Now(), nil
	}
	t, err = clock.Parse(ref)
	if err != nil {
		return t, evalerr.New(evalerr.ErrExpression, s.Path, "%v", err)
	}
	return t, nil
}

func stringNode(node any, s Scope) (string, error) {
	val, present, err := Eval(node, s)
	if err != nil {
		return "", err
	}
	if !present || val == nil {
		return "", nil
	}
	str, ok := val.(string)
	if !ok {
		return "", evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "expected a string, got %T", val)
	}
	return str, nil
}

func evalJSON(node any, s Scope) (any, bool, error) {
	val, present, err := Eval(node, s)
	if err != nil {
		return nil, false, err
	}
	if !present {
		return nil, false, evalerr.New(evalerr.ErrInvalidTemplate, s.Path, "cannot encode an absent value")
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, false, evalerr.New(evalerr.ErrExpression, s.Path, "%v", err)
	}
	return string(data), true, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Describe renders a node for log output.
func Describe(node any) string {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Sprintf("%v", node)
	}
	return string(data)
}
