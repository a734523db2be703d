package maple

import (
	"github.com/ValentinKolb/dSess/lib/db"
	dbtesting "github.com/ValentinKolb/dSess/lib/db/testing"
	"testing"
	"time"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestGarbageCollection(t *testing.T) {
	database := NewMapleDB(&DBOptions{NumShards: 4, GCInterval: 10 * time.Millisecond})
	defer database.Close()

	impl := database.(*mapleImpl)

	database.SetE("short", []byte("v"), 1000, 5)
	database.Set("long", []byte("v"), 1000)

	// advance the database clock past the ttl
	database.Has("long", 2000)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := impl.shard("short").Data.Load("short"); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := impl.shard("short").Data.Load("short"); ok {
		t.Errorf("Expected GC to remove expired entry")
	}
	if _, ok := impl.shard("long").Data.Load("long"); !ok {
		t.Errorf("GC removed an entry without ttl")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	database := NewMapleDB(nil)
	if err := database.Close(); err != nil {
		t.Fatal(err)
	}
	if err := database.Close(); err != nil {
		t.Fatal(err)
	}
}
