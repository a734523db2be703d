// Package http carries rpc messages over HTTP.
//
// The server accepts POST /{shardId} with the serialized request as body and
// answers with the serialized response. The client picks servers round-robin and
// tries the next server when a request fails, up to the configured retry count.
// The client is safe for concurrent use after Connect.
package http
