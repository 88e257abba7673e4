// Package syncer orchestrates remote reads and writes against the
// normalized store and reconciles optimistic local edits with the remote
// source of truth.
//
// ARCHITECTURE:
//
// Single Logical Owner:
// The store and the query registry are mutated only by the Coordinator
// and by direct local-edit calls. Remote operations run asynchronously
// and may be in flight concurrently across distinct identifiers, but
// their results are applied through the store's single mutation path, so
// there are never two writers racing on one record.
//
// Per-Operation State Machine:
// Every remote write runs a small machine, IDLE -> IN_FLIGHT ->
// {COMMITTED | FAILED}. At most one operation may be in flight per
// identifier: a second attempt while one is outstanding is rejected with
// OPERATION_IN_PROGRESS rather than queued or silently dropped. Settled
// operations stay inspectable via LastOperation, which matters for
// failed creates whose record was rolled back to absent.
//
// No Locks Across Remote Calls:
// The coordinator holds no lock while a remote call is suspended; other
// queries and edits proceed against the store meanwhile. In-flight
// writes cannot be cancelled - a result that arrives after every
// observer unsubscribed is still applied (commit or rollback), so the
// local and remote views never silently diverge.
//
// Nothing here retries. A failed operation is rolled back, its error
// retained; retry policy belongs to the caller, who re-issues the same
// operation.
package syncer
