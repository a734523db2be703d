package serializer

import (
	"bytes"
	"github.com/ValentinKolb/dSess/rpc/common"
	"reflect"
	"strings"
	"testing"
	"time"
)

var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
}

func testMessages() []common.Message {
	return []common.Message{
		{MsgType: common.MsgTSuccess},
		*common.NewSetERequest("sess/abc/meta", []byte{0, 1, 2, 255}, 3600*time.Second),
		*common.NewValueResponse(common.MsgTKVGet, []byte("payload"), true, nil),
		*common.NewAcquireRequest("lock/abc", []byte("owner-id"), 30*time.Second),
		*common.NewValueResponse(common.MsgTLCKAcquire, []byte("other-owner"), false, nil),
		*common.NewErrorResponse("shard 7 not found"),
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for i, msg := range testMessages() {
				data, err := s.Serialize(msg)
				if err != nil {
					t.Fatalf("Serialize message %d failed: %v", i, err)
				}
				var got common.Message
				if err := s.Deserialize(data, &got); err != nil {
					t.Fatalf("Deserialize message %d failed: %v", i, err)
				}
				// gob and json both decode empty byte slices as nil
				if !reflect.DeepEqual(got, msg) {
					t.Errorf("message %d: got %+v, want %+v", i, got, msg)
				}
			}
		})
	}
}

func TestJSONUsesTypeNames(t *testing.T) {
	data, err := NewJSONSerializer().Serialize(*common.NewHasRequest("k"))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"msg_type":"has"`)) {
		t.Errorf("json message %s does not name its type", data)
	}
}

func TestDeserializeGarbage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Message
			if err := factory().Deserialize([]byte("\x00garbage"), &msg); err == nil {
				t.Errorf("expected an error for invalid input")
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"json", "GOB", ""} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
		}
	}
	if _, err := New("binary"); err == nil || !strings.Contains(err.Error(), "binary") {
		t.Errorf("New(binary) error = %v", err)
	}
}
