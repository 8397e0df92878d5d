package cgexpr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

func testVars() map[string]cty.Value {
	return map[string]cty.Value{
		"tasks_for":   cty.StringVal("github-push"),
		"head_branch": cty.StringVal("refs/tags/v1.0.0"),
		"event": cty.ObjectVal(map[string]cty.Value{
			"after":  cty.StringVal("abc123"),
			"number": cty.NumberIntVal(7),
		}),
	}
}

func evalString(t *testing.T, src string) (cty.Value, error) {
	t.Helper()
	expr, err := ParseExpression(src, "test")
	require.NoError(t, err)
	return Evaluate(expr, testVars(), Functions(nil))
}

func TestEvaluate_Expressions(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want cty.Value
	}{
		{"equality", `tasks_for == "github-push"`, cty.True},
		{"attribute", `event.after`, cty.StringVal("abc123")},
		{"stdlib", `upper(substr(event.after, 0, 3))`, cty.StringVal("ABC")},
		{"startswith", `startswith(head_branch, "refs/tags/")`, cty.True},
		{"endswith", `endswith(head_branch, ".0")`, cty.True},
		{"ref_kind", `ref_kind(head_branch)`, cty.StringVal("tag")},
		{"ref_name", `ref_name(head_branch)`, cty.StringVal("v1.0.0")},
		{"try fallback", `try(event.action, "none")`, cty.StringVal("none")},
		{"can", `can(event.action)`, cty.False},
		{"contains", `contains(["a", "b"], "b")`, cty.True},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evalString(t, tc.src)
			require.NoError(t, err)
			assert.True(t, tc.want.RawEquals(got), "want %#v, got %#v", tc.want, got)
		})
	}
}

func TestEvaluate_ErrorTaxonomy(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		kind error
	}{
		{"unknown root variable", `missing`, evalerr.ErrUndeclaredVariable},
		{"unknown attribute", `event.action`, evalerr.ErrUndeclaredVariable},
		{"unknown function", `nope(1)`, evalerr.ErrInvalidTemplate},
		{"type error", `1 + "a"`, evalerr.ErrExpression},
		{"index out of range", `["a", "b"][5]`, evalerr.ErrExpression},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := evalString(t, tc.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestParseExpression_Invalid(t *testing.T) {
	_, err := ParseExpression(`tasks_for ==`, "tasks[0].if")
	require.ErrorIs(t, err, evalerr.ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "tasks[0].if")
}

func TestEvaluate_Template(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{"plain interpolation", `rev ${event.after}`, "rev abc123"},
		{"single interpolation coerces", `${event.number}`, "7"},
		{"escaped dollar", `$${literal}`, "${literal}"},
		{"percent is literal", `100%{x} ${tasks_for}`, "100%{x} github-push"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := ParseTemplate(tc.src, "test")
			require.NoError(t, err)
			got, err := Evaluate(expr, testVars(), Functions(nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.AsString())
		})
	}
}

func TestEvaluate_TemplateUndeclared(t *testing.T) {
	expr, err := ParseTemplate(`${nothing_here}`, "task.name")
	require.NoError(t, err)
	_, err = Evaluate(expr, testVars(), Functions(nil))
	require.ErrorIs(t, err, evalerr.ErrUndeclaredVariable)
}

func TestEvaluateBool(t *testing.T) {
	expr, err := ParseExpression(`"true"`, "test")
	require.NoError(t, err)
	ok, err := EvaluateBool(expr, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	expr, err = ParseExpression(`event`, "test")
	require.NoError(t, err)
	_, err = EvaluateBool(expr, testVars(), nil)
	require.ErrorIs(t, err, evalerr.ErrExpression)
}

func TestStringFunc(t *testing.T) {
	funcs := Functions(map[string]function.Function{
		"shout": StringFunc("s", func(s string) (string, error) { return s + "!", nil }),
	})
	expr, err := ParseExpression(`shout("hi")`, "test")
	require.NoError(t, err)
	got, err := Evaluate(expr, nil, funcs)
	require.NoError(t, err)
	assert.Equal(t, "hi!", got.AsString())
}
