// Package gate holds the named policies that decide whether a gated task is
// included in a graph.
//
// A gate only ever removes a task. When its predicate holds, the gated task
// must still depend on at least one other task, plus any labels the policy
// requires, so that nothing deploys without the checks that guard it.
package gate
