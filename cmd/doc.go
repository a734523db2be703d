// Package cmd implements the command-line interface of dSess. It provides
// commands for running the shard servers that hold replicated sessions, for
// running application nodes and for inspecting sessions.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a shard server (session store and lock manager shards)
//   - node: Starts an application node that serves sessions over HTTP
//   - session: Reads or deletes replicated sessions on a shard server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dsess -help for a list of all commands.
package cmd
