// Package mirroring replicates sealed bulletins between servers.
//
// A Supplier answers the mirroring commands of pre-authorized peers; a
// Puller is the other side, periodically copying what its sources hold
// into the local packet database.
package mirroring
