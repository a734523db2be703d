package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is used for requests and responses. Which fields are set depends on the type.
type Message struct {
	MsgType MessageType `json:"msg_type"`

	Key   string `json:"key,omitempty"`   // every store and lock operation
	TTL   uint64 `json:"ttl,omitempty"`   // ms, setE, setEIfUnset and acquire (0 = none)
	Value []byte `json:"value,omitempty"` // set requests, get responses
	Owner []byte `json:"owner,omitempty"` // acquire and release requests, holder in acquire responses

	Ok  bool   `json:"ok,omitempty"`  // get, has, acquire and release responses
	Err string `json:"err,omitempty"` // empty on success
}

// TTLDuration returns the ttl of the message as a duration.
func (m *Message) TTLDuration() time.Duration {
	return time.Duration(m.TTL) * time.Millisecond
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

func NewSetRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTKVSet, Key: key, Value: value}
}

func NewSetERequest(key string, value []byte, ttl time.Duration) *Message {
	return &Message{MsgType: MsgTKVSetE, Key: key, Value: value, TTL: uint64(ttl.Milliseconds())}
}

func NewSetEIfUnsetRequest(key string, value []byte, ttl time.Duration) *Message {
	return &Message{MsgType: MsgTKVSetEIfUnset, Key: key, Value: value, TTL: uint64(ttl.Milliseconds())}
}

func NewDeleteRequest(key string) *Message {
	return &Message{MsgType: MsgTKVDelete, Key: key}
}

func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGet, Key: key}
}

func NewHasRequest(key string) *Message {
	return &Message{MsgType: MsgTKVHas, Key: key}
}

func NewAcquireRequest(key string, owner []byte, lease time.Duration) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: key, Owner: owner, TTL: uint64(lease.Milliseconds())}
}

func NewReleaseRequest(key string, owner []byte) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: key, Owner: owner}
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// NewResponse creates the response to a request of type t.
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewValueResponse creates a get or acquire response.
func NewValueResponse(t MessageType, value []byte, ok bool, err error) *Message {
	msg := NewResponse(t, err)
	msg.Ok = ok
	if t == MsgTLCKAcquire {
		msg.Owner = value
	} else {
		msg.Value = value
	}
	return msg
}

// NewOkResponse creates a has or release response.
func NewOkResponse(t MessageType, ok bool, err error) *Message {
	msg := NewResponse(t, err)
	msg.Ok = ok
	return msg
}

// NewErrorResponse creates a response for a request that could not be handled at all.
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota
	MsgTSuccess             // generic success
	MsgTError               // the request could not be handled

	// IStore operations

	MsgTKVSet
	MsgTKVSetE
	MsgTKVSetEIfUnset
	MsgTKVDelete
	MsgTKVGet
	MsgTKVHas

	// ILockManager operations

	MsgTLCKAcquire
	MsgTLCKRelease
)

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTKVSet:         "set",
	MsgTKVSetE:        "setE",
	MsgTKVSetEIfUnset: "setEIfUnset",
	MsgTKVDelete:      "delete",
	MsgTKVGet:         "get",
	MsgTKVHas:         "has",
	MsgTLCKAcquire:    "acquire",
	MsgTLCKRelease:    "release",
}

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseMessageType is the inverse of MessageType.String.
func ParseMessageType(s string) (MessageType, error) {
	for t, name := range messageTypeNames {
		if name == s {
			return t, nil
		}
	}
	return MsgTUnknown, fmt.Errorf("unknown message type: %s", s)
}

// MarshalJSON encodes the type as its name.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
