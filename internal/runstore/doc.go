// Package runstore keeps the outcome of recent evaluations so webhook
// deliveries can be inspected after they were acknowledged.
//
// # Lifecycle
//
// The server records one Run per accepted delivery, successful or not, and
// serves it back from GET /v1/runs/{id}. Records live only as long as the
// process; the scheduler that consumes the graphs owns durable history.
//
// # Concurrency Model
//
// Memory stores runs in a sync.Map keyed by run id, so lookups never contend
// with each other. A separate mutex guards the insertion order used to evict
// the oldest run once the capacity is reached.
package runstore
