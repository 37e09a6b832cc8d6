// Package services implements the server side of the client command
// protocol: upload rights, chunked bulletin upload and download, sealed
// bulletin listings and the signed server information.
//
// BulletinService is a transfer.Caller: the gRPC handler decodes a request
// and hands it over, and tests can call it directly.
package services
