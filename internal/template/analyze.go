package template

import (
	"fmt"
	"strings"

	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/evalerr"
)

// Analyze walks node without evaluating it, checking operator shapes and
// parsing every expression into c.
func Analyze(node any, path string, c *cgexpr.Container) error {
	switch v := node.(type) {
	case string:
		return analyzeString(v, path, c)
	case []any:
		for i, item := range v {
			if err := Analyze(item, fmt.Sprintf("%s[%d]", path, i), c); err != nil {
				return err
			}
		}
	case map[string]any:
		op, err := operatorOf(v, path)
		if err != nil {
			return err
		}
		if op != "" {
			return analyzeOperator(op, v, join(path, op), c)
		}
		for _, key := range sortedKeys(v) {
			child := join(path, key)
			if !strings.HasPrefix(key, "$$") {
				if err := analyzeString(key, child, c); err != nil {
					return err
				}
			}
			if err := Analyze(v[key], child, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnalyzeExpression parses a bare expression into c.
func AnalyzeExpression(src, path string, c *cgexpr.Container) error {
	expr, err := cgexpr.ParseExpression(src, path)
	if err != nil {
		return err
	}
	c.Add(expr)
	return nil
}

func analyzeString(s, path string, c *cgexpr.Container) error {
	if !cgexpr.HasInterpolation(s) {
		return nil
	}
	expr, err := cgexpr.ParseTemplate(s, path)
	if err != nil {
		return err
	}
	c.Add(expr)
	return nil
}

func analyzeOperator(op string, m map[string]any, path string, c *cgexpr.Container) error {
	switch op {
	case opIf:
		switch cond := m[opIf].(type) {
		case bool:
		case string:
			if err := AnalyzeExpression(cond, path, c); err != nil {
				return err
			}
		default:
			return evalerr.New(evalerr.ErrInvalidTemplate, path, "condition must be an expression string, got %T", cond)
		}
		for _, branch := range []string{"then", "else"} {
			if node, ok := m[branch]; ok {
				if err := Analyze(node, join(path, branch), c); err != nil {
					return err
				}
			}
		}
	case opLet:
		bindings, ok := m[opLet].(map[string]any)
		if !ok {
			return evalerr.New(evalerr.ErrInvalidTemplate, path, "bindings must be a mapping")
		}
		if _, ok := m["in"]; !ok {
			return evalerr.New(evalerr.ErrInvalidTemplate, path, "missing \"in\"")
		}
		for _, name := range sortedKeys(bindings) {
			if err := Analyze(bindings[name], join(path, name), c); err != nil {
				return err
			}
		}
		return Analyze(m["in"], join(path, "in"), c)
	case opEval:
		src, ok := m[opEval].(string)
		if !ok {
			return evalerr.New(evalerr.ErrInvalidTemplate, path, "expression must be a string, got %T", m[opEval])
		}
		return AnalyzeExpression(src, path, c)
	case opFromNow:
		if err := Analyze(m[opFromNow], path, c); err != nil {
			return err
		}
		if from, ok := m["from"]; ok {
			return Analyze(from, join(path, "from"), c)
		}
	case opJSON:
		return Analyze(m[opJSON], path, c)
	}
	return nil
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}
