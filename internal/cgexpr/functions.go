package cgexpr

import (
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/vk/cigraph/internal/refs"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the function table available to every expression,
// extended with extra. Entries in extra override built-ins of the same name.
func Functions(extra map[string]function.Function) map[string]function.Function {
	funcs := map[string]function.Function{
		"upper":      stdlib.UpperFunc,
		"lower":      stdlib.LowerFunc,
		"substr":     stdlib.SubstrFunc,
		"length":     stdlib.LengthFunc,
		"contains":   stdlib.ContainsFunc,
		"join":       stdlib.JoinFunc,
		"split":      stdlib.SplitFunc,
		"replace":    stdlib.ReplaceFunc,
		"trimprefix": stdlib.TrimPrefixFunc,
		"trimsuffix": stdlib.TrimSuffixFunc,
		"format":     stdlib.FormatFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"try":        tryfunc.TryFunc,
		"can":        tryfunc.CanFunc,
		"startswith": StartsWithFunc,
		"endswith":   EndsWithFunc,
		"ref_kind":   RefKindFunc,
		"ref_name":   RefNameFunc,
	}
	for name, fn := range extra {
		funcs[name] = fn
	}
	return funcs
}

// FunctionNames lists the names in a function table in sorted order.
func FunctionNames(funcs map[string]function.Function) []string {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var StartsWithFunc = stringPredicate("prefix", strings.HasPrefix)

var EndsWithFunc = stringPredicate("suffix", strings.HasSuffix)

func stringPredicate(argName string, fn func(s, arg string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
			{Name: argName, Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.BoolVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

// RefKindFunc classifies a git ref as branch, tag, pull or unknown.
var RefKindFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "ref", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(refs.Parse(args[0].AsString()).Kind.String()), nil
	},
})

// RefNameFunc strips the well-known prefix from a git ref.
var RefNameFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "ref", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(refs.Parse(args[0].AsString()).Name), nil
	},
})

// StringFunc adapts a fallible string-to-string Go function, such as an
// identity allocator, into a cty function of one argument.
func StringFunc(param string, fn func(string) (string, error)) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: param, Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			out, err := fn(args[0].AsString())
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(out), nil
		},
	})
}
