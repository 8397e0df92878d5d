// Package cgexpr is the expression core of the evaluator. It parses HCL
// native-syntax expressions and string templates, evaluates them over cty
// values, converts between cty and plain Go values, and provides static
// analysis of the variables and functions an expression refers to.
package cgexpr
