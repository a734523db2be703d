// Package sessionstore stores session payloads in a store.IStore.
//
// Every session uses two keys:
//
//	sess/<realId>/attr   gob encoded attribute map, written only when a payload carries attributes
//	sess/<realId>/meta   gob encoded version, timestamp and metadata
//
// The attribute key is written before the metadata key. Both keys expire after twice
// the max inactive interval of the session, sessions that never expire are stored
// without ttl.
//
// A near cache keeps the encoded attributes this node wrote or read last, so metadata
// only pushes and reads of unchanged attributes do not transfer the attribute map.
package sessionstore
