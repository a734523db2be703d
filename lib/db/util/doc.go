// Package util provides small helpers shared by database implementations
// that satisfy the db.KVDB interface: seed generation, the FNV-1a string hash
// used for shard selection and replica ids, and time conversion to the
// millisecond timestamps every KVDB operation expects.
package util
