// Package transport defines how serialized rpc messages travel between the
// clients (dsess nodes) and the shard server. The http subpackage implements it.
package transport
