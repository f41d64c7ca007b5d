/*
Package ports defines the driven ports (interfaces) for the Active Data engine.

These interfaces decouple the document model and the execution engine from external
implementations, allowing documents to be persisted in various storage backends and
execution passes to be observed or cancelled by the host.

# Key Interfaces

  - DocumentStore: Responsible for persisting and loading document Snapshots.
  - DistributedLocker: Provides distributed locking for concurrent document access.
  - Progress: Cooperative cancellation and per-function progress reporting.
*/
package ports
