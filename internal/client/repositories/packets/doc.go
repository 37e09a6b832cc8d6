// Package packets stores signed packet documents in the client SQLite
// database. It implements packetdb.Database.
package packets
