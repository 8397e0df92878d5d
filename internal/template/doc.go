// Package template loads pipeline template documents and evaluates their
// nodes against an environment.
//
// A node is plain YAML data: scalars, mappings and sequences. Strings that
// contain `${` are interpolated, and mappings whose only special key starts
// with a single `$` are operators:
//
//	$if / then / else   conditional inclusion; a missing branch is absent
//	$let / in           evaluate `in` with extra bindings in scope
//	$eval               evaluate an expression to a value
//	$fromNow / from     timestamp relative to the task's instant
//	$json               JSON-encode the evaluated node
//
// A key beginning with `$$` is emitted with one `$` removed.
package template
