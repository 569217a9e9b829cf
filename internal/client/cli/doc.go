// Package cli provides the interactive tipbot operator console.
//
// It connects to the server over gRPC, mints access tokens from the shared
// secret, watches server reachability in the background and runs a REPL with
// one command per TipService method: init, register, link, tip, balance,
// deposit, withdraw and reconcile. Missing command arguments are prompted for.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
