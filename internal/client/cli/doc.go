// Package cli provides the bulletin client command line.
//
// The root command unlocks the account key pair, opens the local store and
// starts an interactive REPL. The subcommands (keygen, upload, retrieve,
// folders, search, export) run a single step non-interactively. A background watcher pings the server and,
// while it is reachable, drains the outboxes one bulletin per tick.
//
// Configuration flags are read by the config package; the passphrase is
// prompted for on the terminal unless BULLETIN_CLIENT_PASSPHRASE is set.
package cli
