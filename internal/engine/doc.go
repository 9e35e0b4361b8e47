// Package engine implements the graphcache store: the identity map owner,
// the record state machine and the relationship reconciliation engine.
//
// ARCHITECTURE:
//
// Single Lock, Synchronous Batches:
// Every operation that touches records or relationships runs under one
// store mutex, start to finish. Payload ingestion, a mutator call and a
// read are each one batch. This ensures:
// - No caller observes a half-disconnected edge
// - The hasOne invariant holds between batches
// - Adapter latency never blocks readers (adapter calls run unlocked)
//
// Payload Ingestion Flow:
// 1. The whole payload is validated against the schema
// 2. With reloadDirty off, any dirty record named fails the push, except
//    one whose only changes are edges to the record being saved
// 3. meta.deletedRecords are removed with their edges
// 4. Per record: queue drain, then attributes, then relationships
//
// Relationship States:
// An edge is server (both sides agree), client (created locally) or
// deleted (the server has it, the client removed it). A record is dirty
// while any client or deleted edge touches it. Rollback deletes client
// edges and restores deleted ones.
//
// CRITICAL PATTERNS:
//
// Queue drain precedes loadData:
// A record that becomes resident first connects the edges waiting for it,
// so the merge that follows sees the full graph and computes dirty state
// correctly.
//
// Edge endpoints are immutable:
// The only rewrite is updateRelationshipsWithNewID, once per record, when
// a temporary id becomes permanent.
package engine
