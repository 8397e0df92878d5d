package cgexpr

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts a plain Go value, as produced by JSON or YAML decoding, into
// its cty counterpart. Maps become objects and slices become tuples.
func ToCty(data any) (cty.Value, error) {
	if data == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	switch v := data.(type) {
	case cty.Value:
		return v, nil
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case uint64:
		return cty.NumberUIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(v))
		for key, val := range v {
			ctyVal, err := ToCty(val)
			if err != nil {
				return cty.NilVal, fmt.Errorf("at key %q: %w", key, err)
			}
			attrs[key] = ctyVal
		}
		return cty.ObjectVal(attrs), nil
	case map[string]string:
		attrs := make(map[string]cty.Value, len(v))
		for key, val := range v {
			attrs[key] = cty.StringVal(val)
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		elems := make([]cty.Value, 0, len(v))
		for i, val := range v {
			ctyVal, err := ToCty(val)
			if err != nil {
				return cty.NilVal, fmt.Errorf("at index %d: %w", i, err)
			}
			elems = append(elems, ctyVal)
		}
		return cty.TupleVal(elems), nil
	case []string:
		elems := make([]cty.Value, 0, len(v))
		for _, val := range v {
			elems = append(elems, cty.StringVal(val))
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported type for conversion to cty.Value: %T", v)
	}
}

// MustToCty is ToCty for values known to be convertible.
func MustToCty(data any) cty.Value {
	v, err := ToCty(data)
	if err != nil {
		panic(err)
	}
	return v
}

// FromCty converts a cty value back into a plain Go value. Whole numbers
// become int64, other numbers float64.
func FromCty(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("cannot convert unknown value of type %s", val.Type().FriendlyName())
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		return numberToNative(val.AsBigFloat()), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			native, err := FromCty(v)
			if err != nil {
				return nil, fmt.Errorf("at key %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = native
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			native, err := FromCty(v)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

func numberToNative(bf *big.Float) any {
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return i
		}
	}
	f, _ := bf.Float64()
	return f
}

// ObjectKeys returns the attribute names of an object value in sorted order.
func ObjectKeys(val cty.Value) []string {
	if val.IsNull() || !val.IsKnown() || !val.Type().IsObjectType() {
		return nil
	}
	keys := make([]string, 0, len(val.Type().AttributeTypes()))
	for k := range val.Type().AttributeTypes() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
