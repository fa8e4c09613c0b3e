// Package sync contains the Synchronization bounded context.
// This context owns server-side sync jobs: their lifecycle state machine,
// per-entity results, detected conflicts, progress snapshots and the
// persisted priority queue they are dispatched from.
//
// Key concepts:
//   - SyncJob: a unit of work reconciling entity types against one integration
//   - SyncResult: immutable per-job outcome with per-entity breakdown
//   - SyncConflict: a field-level divergence with an optional resolution
//   - SyncProgress: latest-only snapshot published while a job runs
//   - QueueEntry: persisted priority queue row a job waits in before execution
package sync
