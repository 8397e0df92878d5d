// Package taskgraph turns a template document and an environment into an
// ordered, validated graph of task descriptors.
//
// Entries are evaluated concurrently, each with its own lazily captured
// instant, and then linked in declaration order. A dependency label may name
// any included entry of the document; labels of skipped or undeclared
// entries are dangling. Any fatal error aborts assembly without returning a
// partial graph.
package taskgraph
