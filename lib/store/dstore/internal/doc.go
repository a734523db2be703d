// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It is intended for internal use by dstore only.
//
// The package consists of two main components:
//
//   - Command System: Write operations (Set, SetE, SetEIfUnset, Delete) that are
//     serialized and proposed to the RAFT cluster, then executed by every replica's
//     state machine.
//
//   - Query System: Read operations (Get, Has) executed locally on the state machine.
//     Queries are passed as values and never serialized.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: Now, the proposer's clock in unix ms (uint64, big endian)
//	- 8 bytes: TTL in ms, 0 = none (uint64, big endian)
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data
//	- M bytes: Value data (optional)
//
// Carrying the proposer's clock in the command is what makes ttl decisions
// deterministic: a replica that applies the entry minutes later (for example while
// catching up from a snapshot) still evaluates the ttl relative to the original write.
package internal
