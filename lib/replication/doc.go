// Package replication schedules the pushes of dirty sessions to the distributed store.
//
// The IntervalScheduler decouples replication from request latency: requests only
// enqueue their session, one background goroutine pushes the pending sessions every
// interval. A failed push is logged and the session is retried on the next tick, the
// rest of the batch is not affected. The InstantScheduler pushes synchronously and is
// meant for setups that prefer durability over latency.
package replication
