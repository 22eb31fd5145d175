// Package resq implements the execution core of a Redis-backed background
// job library: the job payload contract, the perform lifecycle
// (queued -> reserved -> executing -> completed/cancelled/failed), a
// synchronous event bus used to instrument and interrupt execution, a
// pluggable handler factory, and the failure/requeue protocol.
//
// The durable queue, per-job status tracking, failure records and counters
// are external collaborators reached through the QueueStore, StatusStore,
// FailureRecorder and Counters interfaces. The redisstore subpackage
// implements all four contracts on a single Redis client.
//
// Key components:
//   - Client: binds the collaborators together, creates and reserves jobs
//   - Job: one reserved unit of work with its Perform/Fail lifecycle
//   - Bus: ordered synchronous listener registry (beforePerform, afterPerform, onFailure, ...)
//   - Registry: the default class-name to constructor handler factory
//   - Worker/Pool: host loops that reserve jobs and drive them to completion
package resq
