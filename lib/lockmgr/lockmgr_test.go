package lockmgr

import (
	"bytes"
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/lstore"
	"testing"
	"time"
)

func newTestManager(clock func() time.Time) (ILockManager, store.IStore) {
	s := lstore.NewLocalStoreWithClock(func() db.KVDB { return maple.NewMapleDB(nil) }, clock)
	return NewLockManager(s), s
}

func mustOwner(t *testing.T) []byte {
	t.Helper()
	id, err := NewOwnerID()
	if err != nil {
		t.Fatalf("NewOwnerID failed: %v", err)
	}
	return id
}

func TestAcquireRelease(t *testing.T) {
	mgr, _ := newTestManager(time.Now)
	a, b := mustOwner(t), mustOwner(t)

	ok, holder, err := mgr.AcquireLock("lock/x", a, time.Minute)
	if err != nil || !ok || !bytes.Equal(holder, a) {
		t.Fatalf("first acquire = (%v, %x, %v)", ok, holder, err)
	}

	ok, holder, err = mgr.AcquireLock("lock/x", b, time.Minute)
	if err != nil || ok {
		t.Fatalf("second owner acquired a held lock")
	}
	if !bytes.Equal(holder, a) {
		t.Errorf("holder = %x, want %x", holder, a)
	}

	if released, _ := mgr.ReleaseLock("lock/x", b); released {
		t.Errorf("non-holder released the lock")
	}
	if released, err := mgr.ReleaseLock("lock/x", a); !released || err != nil {
		t.Fatalf("holder could not release: (%v, %v)", released, err)
	}

	if ok, _, _ := mgr.AcquireLock("lock/x", b, time.Minute); !ok {
		t.Errorf("lock not free after release")
	}
}

func TestReleaseMissingLock(t *testing.T) {
	mgr, _ := newTestManager(time.Now)
	ok, err := mgr.ReleaseLock("lock/none", mustOwner(t))
	if !ok || err != nil {
		t.Errorf("ReleaseLock on missing key = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestLeaseExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	mgr, _ := newTestManager(func() time.Time { return now })
	a, b := mustOwner(t), mustOwner(t)

	if ok, _, _ := mgr.AcquireLock("lock/y", a, time.Second); !ok {
		t.Fatalf("acquire failed")
	}

	// acquiring again shortly before the lease ends succeeds without extending it
	now = now.Add(900 * time.Millisecond)
	if ok, _, _ := mgr.AcquireLock("lock/y", a, time.Second); !ok {
		t.Fatalf("re-acquire by the holder failed")
	}
	if ok, _, _ := mgr.AcquireLock("lock/y", b, time.Second); ok {
		t.Fatalf("lock taken over before the lease ended")
	}

	now = now.Add(200 * time.Millisecond)
	if ok, _, _ := mgr.AcquireLock("lock/y", b, time.Second); !ok {
		t.Errorf("expired lock could not be taken over")
	}
}

func TestReacquireDoesNotOverwriteNewHolder(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	mgr, kv := newTestManager(func() time.Time { return now })
	a, b := mustOwner(t), mustOwner(t)

	if ok, _, _ := mgr.AcquireLock("lock/z", a, time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	now = now.Add(2 * time.Second)
	if ok, _, _ := mgr.AcquireLock("lock/z", b, time.Second); !ok {
		t.Fatalf("takeover after expiry failed")
	}

	// the former holder retries late
	ok, holder, err := mgr.AcquireLock("lock/z", a, time.Second)
	if ok || err != nil || !bytes.Equal(holder, b) {
		t.Fatalf("late re-acquire = (%v, %x, %v), want (false, %x, nil)", ok, holder, err, b)
	}
	if v, _, _ := kv.Get("lock/z"); !bytes.Equal(v, b) {
		t.Errorf("lock value = %x, want the new holder %x", v, b)
	}
}
