/*
Package session serialises access to stored documents.

A Manager owns the load, convert, hydrate, commit and save cycle of every document in a
DocumentStore. Callers on the same process are ordered by a per-document mutex; replicas
sharing a store are ordered by an optional DistributedLocker.
*/
package session
