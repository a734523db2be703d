package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dSess/rpc/common"
	"strings"
)

// IRPCSerializer converts messages to and from their wire format.
type IRPCSerializer interface {
	Serialize(msg common.Message) ([]byte, error)
	Deserialize(b []byte, msg *common.Message) error
}

// New returns the serializer registered under name ("json" or "gob").
func New(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "json", "":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q, must be json or gob", name)
	}
}

// codec adapts a pair of encoding functions to IRPCSerializer
type codec struct {
	encode func(common.Message) ([]byte, error)
	decode func([]byte, *common.Message) error
}

func (c codec) Serialize(msg common.Message) ([]byte, error) { return c.encode(msg) }

func (c codec) Deserialize(b []byte, msg *common.Message) error { return c.decode(b, msg) }

// NewJSONSerializer encodes messages as json. Message types travel by name.
func NewJSONSerializer() IRPCSerializer {
	return codec{
		encode: func(msg common.Message) ([]byte, error) { return json.Marshal(msg) },
		decode: func(b []byte, msg *common.Message) error { return json.Unmarshal(b, msg) },
	}
}

// NewGOBSerializer encodes messages with encoding/gob. Every message gets a fresh
// encoder, so each payload carries its own type description.
func NewGOBSerializer() IRPCSerializer {
	return codec{
		encode: func(msg common.Message) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		decode: func(b []byte, msg *common.Message) error {
			return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
		},
	}
}
