// Package serializer encodes rpc messages for the transport.
//
// Two formats are available:
//
//   - json: human readable, the message type is written as its name. The default,
//     handy when debugging a cluster with curl.
//   - gob: Go's binary format, smaller for large session payloads.
//
// Client and server must use the same serializer. Serializers are stateless and
// safe for concurrent use.
//
//	s, err := serializer.New("gob")
//	data, err := s.Serialize(msg)
package serializer
