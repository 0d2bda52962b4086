// Package batch schedules many requests onto an executor and returns their
// results in submission order.
//
// The runner drives an injected Executor (implemented by pkg/client) with a
// goroutine per request under a weighted-semaphore concurrency ceiling.
// Results land in slots indexed by submission position, so the caller sees
// results[i] answer reqs[i] no matter how completions interleave.
//
// Two failure disciplines:
//
//   - Isolate (default): one failure never affects its siblings; Run always
//     returns one result per request, mixing successes and failures.
//   - Fail-fast: the first failure stops admissions, cancels in-flight
//     requests, and aborts the batch with an *AbortError naming the failing
//     index and class.
//
// Optional longtail cancellation cuts off stragglers: once a configured
// fraction of the batch has finished, the runner waits a grace period and
// then cancels whatever is still running. Cancelled entries keep their
// request IDs and report the cancelled error class.
package batch
