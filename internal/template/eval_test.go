package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cigraph/internal/cgexpr"
	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/evalctx"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testScope() Scope {
	env := evalctx.New(map[string]cty.Value{
		"tasks_for":   cty.StringVal("github-push"),
		"head_branch": cty.StringVal("refs/heads/main"),
		"head_rev":    cty.StringVal("abc123"),
		"repository":  cty.StringVal("https://github.com/acme/widget"),
	})
	return Scope{
		Env:   env,
		Funcs: cgexpr.Functions(nil),
		Now:   LazyNow(clock.Fixed(testNow)),
		Path:  "task",
	}
}

// node decodes a YAML snippet into an evaluator node.
func node(t *testing.T, src string) any {
	t.Helper()
	var out any
	require.NoError(t, yaml.Unmarshal([]byte(src), &out))
	n, err := normalize(out)
	require.NoError(t, err)
	return n
}

func TestEval(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want any
	}{
		{
			name: "literals pass through",
			src:  `{a: 1, b: true, c: [x, 2.5], d: null}`,
			want: map[string]any{"a": 1, "b": true, "c": []any{"x", 2.5}, "d": nil},
		},
		{
			name: "interpolation",
			src:  `{source: "${repository}/raw/${head_rev}/.ci.yml"}`,
			want: map[string]any{"source": "https://github.com/acme/widget/raw/abc123/.ci.yml"},
		},
		{
			name: "interpolated key",
			src:  `{"${head_rev}-key": v}`,
			want: map[string]any{"abc123-key": "v"},
		},
		{
			name: "dollar key escape",
			src:  `{"$$if": literal}`,
			want: map[string]any{"$if": "literal"},
		},
		{
			name: "if then",
			src:  `{x: {$if: 'tasks_for == "github-push"', then: yes, else: no}}`,
			want: map[string]any{"x": "yes"},
		},
		{
			name: "if else",
			src:  `{x: {$if: 'tasks_for == "github-release"', then: yes, else: no}}`,
			want: map[string]any{"x": "no"},
		},
		{
			name: "if without branch is absent in mapping",
			src:  `{keep: 1, drop: {$if: 'false', then: 2}}`,
			want: map[string]any{"keep": 1},
		},
		{
			name: "if without branch is absent in sequence",
			src:  `[a, {$if: 'false', then: b}, c]`,
			want: []any{"a", "c"},
		},
		{
			name: "let shadows",
			src:  `{$let: {head_rev: override, n: 3}, in: {rev: "${head_rev}", n: {$eval: n}}}`,
			want: map[string]any{"rev": "override", "n": int64(3)},
		},
		{
			name: "eval returns structured value",
			src:  `{$eval: '[upper("a"), 1 + 1]'}`,
			want: []any{"A", int64(2)},
		},
		{
			name: "fromNow",
			src:  `{$fromNow: 1 hour}`,
			want: "2024-05-01T11:00:00.000Z",
		},
		{
			name: "fromNow empty",
			src:  `{$fromNow: ''}`,
			want: "2024-05-01T10:00:00.000Z",
		},
		{
			name: "fromNow from",
			src:  `{$fromNow: 2 days, from: "2020-01-01T00:00:00.000Z"}`,
			want: "2020-01-03T00:00:00.000Z",
		},
		{
			name: "json",
			src:  `{$json: {b: "${head_rev}", a: [1]}}`,
			want: `{"a":[1],"b":"abc123"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, present, err := Eval(node(t, tc.src), testScope())
			require.NoError(t, err)
			require.True(t, present)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEval_AbsentTopLevel(t *testing.T) {
	got, present, err := Eval(node(t, `{$if: 'false', then: x}`), testScope())
	require.NoError(t, err)
	assert.False(t, present)
	assert.Nil(t, got)
}

func TestEval_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		kind error
		path string
	}{
		{"undeclared in interpolation", `{name: "${nope}"}`, evalerr.ErrUndeclaredVariable, "task.name"},
		{"undeclared in condition", `{$if: 'nope == 1', then: x}`, evalerr.ErrUndeclaredVariable, "task.$if"},
		{"unknown operator", `{$map: [1]}`, evalerr.ErrInvalidTemplate, "task"},
		{"extra key", `{$eval: '1', extra: 2}`, evalerr.ErrInvalidTemplate, "task"},
		{"two operators", `{$eval: '1', $json: 2}`, evalerr.ErrInvalidTemplate, "task"},
		{"non bool condition", `{$if: '"x"', then: 1}`, evalerr.ErrExpression, "task.$if"},
		{"let without in", `{$let: {a: 1}}`, evalerr.ErrInvalidTemplate, "task.$let"},
		{"let invalid name", `{$let: {"9lives": 1}, in: 1}`, evalerr.ErrInvalidTemplate, "task.$let.9lives"},
		{"bad offset", `{$fromNow: soon}`, evalerr.ErrExpression, "task.$fromNow"},
		{"duplicate keys after substitution", `{"${head_rev}": 1, abc123: 2}`, evalerr.ErrInvalidTemplate, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Eval(node(t, tc.src), testScope())
			require.ErrorIs(t, err, tc.kind)
			if tc.path != "" {
				assert.Contains(t, err.Error(), "at "+tc.path)
			}
		})
	}
}

func TestEval_DoesNotMutateNode(t *testing.T) {
	n := node(t, `{a: "${head_rev}", b: [{$if: 'false', then: 1}], "$$c": 1}`)
	before := Describe(n)

	_, _, err := Eval(n, testScope())
	require.NoError(t, err)
	assert.Equal(t, before, Describe(n))
}

func TestLazyNow_ReadsOnce(t *testing.T) {
	calls := 0
	now := LazyNow(clockFunc(func() time.Time {
		calls++
		return testNow.Add(time.Duration(calls) * time.Second)
	}))

	first := now()
	second := now()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }
