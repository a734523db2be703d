package util

import (
	"github.com/ValentinKolb/dSess/rpc/common"
	"reflect"
	"strings"
	"testing"
)

func TestParseShards(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []common.ServerShard
		wantErr bool
	}{
		{
			name: "default",
			in:   "100=lstore,200=lockmgr(lstore)",
			want: []common.ServerShard{
				{ShardID: 100, Type: common.ShardTypeLocalStore},
				{ShardID: 200, Type: common.ShardTypeLocalLockManager},
			},
		},
		{
			name: "redis and raft",
			in:   "1=rstore, 2=lockmgr(dstore)",
			want: []common.ServerShard{
				{ShardID: 1, Type: common.ShardTypeRedisStore},
				{ShardID: 2, Type: common.ShardTypeRaftLockManager},
			},
		},
		{name: "missing type", in: "100", wantErr: true},
		{name: "invalid id", in: "x=lstore", wantErr: true},
		{name: "invalid type", in: "1=etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseShards(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShards(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseShards(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := ParseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	if err != nil {
		t.Fatalf("ParseClusterMembers failed: %v", err)
	}
	if members[ReplicaID("node-1")] != "localhost:63001" || members[ReplicaID("node-2")] != "localhost:63002" {
		t.Errorf("unexpected members %v", members)
	}
	if _, err := ParseClusterMembers("node-1"); err == nil {
		t.Errorf("expected error for member without address")
	}
}

func TestSplitList(t *testing.T) {
	if got := SplitList(" a, ,b,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("SplitList = %v", got)
	}
}

func TestWrapString(t *testing.T) {
	for _, line := range strings.Split(WrapString(strings.Repeat("word ", 40)), "\n") {
		if len(line) > Wrap {
			t.Errorf("line %q longer than %d", line, Wrap)
		}
	}
}
