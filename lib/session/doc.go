// Package session contains the in-memory representation of a clustered web session.
//
// A Record holds the attributes and metadata of one session together with the
// bookkeeping needed to replicate it: separate dirty flags for metadata and
// attributes, a version that grows with every push and a full replication window
// that forces complete pushes after an ownership handoff.
//
// Dirty tracking:
//
//	Writes (Set, Remove and the metadata mutators) always mark the record dirty.
//	Whether reads do is decided by the DirtyTracker, normally one of the Trigger
//	policies OnSetOnly, OnSetAndGet or OnSetAndNonPrimitiveGet.
//
// Replicability:
//
//	Attribute values are encoded with encoding/gob behind an interface. Set rejects
//	values that cannot be encoded with a *NonReplicableAttributeError before touching
//	the record. Named and composite types have to be registered with
//	RegisterAttributeType on every node.
//
// Replication:
//
//	Replicate snapshots the record, pushes the payload to a Store and increments the
//	version. A payload carries the attributes when they are dirty or when the record
//	is inside its full replication window. Changes made while a push is in flight
//	keep the record dirty, a failed push changes nothing.
package session
