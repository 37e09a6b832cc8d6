// Package packets holds the server's packet database backends: a
// PostgreSQL table and an S3 bucket. Both implement packetdb.Database.
package packets
