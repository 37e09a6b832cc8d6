// Package client contains the client-side transport and local database
// bootstrap.
//
// # Overview
//
// The package provides:
//  1. A transport contract (see the Client interface): a transfer.Caller
//     that can be closed.
//  2. A concrete gRPC implementation (see GRPCClient) that sends signed
//     commands to the bulletin or mirroring service, applies a default call
//     timeout through an interceptor and maps gRPC status codes to sentinel
//     errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations,
//     NewRepositories) wiring an SQLite database and applying embedded goose
//     migrations.
//
// # Error Handling
//
// Transport conditions are exposed as sentinel errors that callers can
// match with errors.Is: ErrUnavailable, ErrUnauthorized. Answers from the
// server, including failure codes, are never errors.
package client
