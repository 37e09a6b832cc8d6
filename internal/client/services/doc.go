// Package services contains application services for the bulletin client.
//
// SyncService moves bulletins between the local store and a server:
// single uploads, background outbox processing and batch retrieval.
// ServerService covers the small request/response commands: ping, server
// information, upload rights and sealed bulletin listings.
//
// Long-running operations return a *Task. When a ProgressSink is supplied
// the work runs in its own goroutine and the call returns immediately;
// without a sink the work runs on the caller's goroutine and the returned
// task is already finished.
package services
