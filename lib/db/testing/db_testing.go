package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dSess/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// base is the timestamp (unix ms) the tests start at
const base = uint64(1_700_000_000_000)

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, base)

	result, exists := database.Get(testKey, base)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, base+1)

	result, exists = database.Get(testKey, base+1)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key", base); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey, base+1)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey, base+1)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	testKey := "delete-test-key"
	database.Set(testKey, []byte("delete-test-value"), base)

	database.Delete(testKey, base+10)

	if _, exists := database.Get(testKey, base+10); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Has(testKey, base+10) {
		t.Errorf("Expected Has to return false after Delete")
	}

	// deleting a missing key is a no-op
	database.Delete("nonexistent-key", base)
	if database.Has("nonexistent-key", base) {
		t.Errorf("Delete must not create keys")
	}

	// the key can be written again after deletion
	database.Set(testKey, []byte("again"), base+20)
	if _, exists := database.Get(testKey, base+20); !exists {
		t.Errorf("Expected key %s to exist after re-Set", testKey)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureHas)

	testKey := "has-test-key"

	if database.Has(testKey, base) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.SetE(testKey, []byte("v"), base, 100)

	tests := []struct {
		name string
		now  uint64
		want bool
	}{
		{"at write time", base, true},
		{"before ttl", base + 99, true},
		{"at ttl", base + 100, false},
		{"after ttl", base + 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := database.Has(testKey, tt.now); got != tt.want {
				t.Errorf("Has(%d) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value")
	testValue2 := []byte("test-value2")

	database.SetEIfUnset(testKey, testValue1, base, 10)

	result, exists := database.Get(testKey, base)
	if !exists || !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s (exists=%v)", testValue1, result, exists)
	}

	database.SetEIfUnset(testKey, testValue2, base+5, 20)

	result, exists = database.Get(testKey, base+5)
	if !exists || !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s to be kept, got %s", testValue1, result)
	}

	if _, exists = database.Get(testKey, base+11); exists {
		t.Errorf("Expected key %s to not exist after ttl expired", testKey)
	}

	// an expired entry counts as unset
	database.SetEIfUnset(testKey, testValue2, base+12, 0)
	result, exists = database.Get(testKey, base+12)
	if !exists || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s after expiry, got %s", testValue2, result)
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet)

	numKeys := 500
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		database.SetE(key, []byte(key), base, uint64(i%100))
	}

	for offset := uint64(0); offset <= 100; offset += 10 {
		now := base + offset
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := uint64(i % 100)

			_, exists := database.Get(key, now)
			shouldExist := ttl == 0 || offset < ttl
			if exists != shouldExist {
				t.Errorf("Key %s at +%dms (ttl=%d): exists=%v, want %v", key, offset, ttl, exists, shouldExist)
			}
		}
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("k", []byte("new"), base+10)
	database.Set("k", []byte("old"), base+5)

	if v, _ := database.Get("k", base+10); !bytes.Equal(v, []byte("new")) {
		t.Errorf("stale write overwrote newer value, got %s", v)
	}

	database.Delete("k", base+20)
	database.Set("k", []byte("late"), base+15)

	if _, exists := database.Get("k", base+20); exists {
		t.Errorf("stale write resurrected deleted key")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 200
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("key-%d", i)
		ttl := uint64(0)
		if i%2 == 0 {
			ttl = 1000
		}
		database.SetE(key, []byte(fmt.Sprintf("value-%d", i)), base, ttl)
	}
	database.Delete("key-1", base)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("key-%d", i)
		value, exists := database2.Get(key, base)
		if i == 1 {
			if exists {
				t.Errorf("Deleted key %s was restored", key)
			}
			continue
		}
		if !exists || !bytes.Equal(value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Errorf("Key %s not restored correctly: %s (exists=%v)", key, value, exists)
		}
	}

	// ttl survives the snapshot
	if _, exists := database2.Get("key-0", base+1000); exists {
		t.Errorf("Expected restored key-0 to expire")
	}
	if _, exists := database2.Get("key-3", base+1000); !exists {
		t.Errorf("Expected restored key-3 without ttl to exist")
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load to fail on invalid input")
	}
}

func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset|db.FeatureGet)

	// exactly one of many concurrent SetEIfUnset calls may win
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			database.SetEIfUnset("lock", []byte(fmt.Sprintf("owner-%d", i)), base, 0)
		}(i)
	}
	wg.Wait()

	winner, exists := database.Get("lock", base)
	if !exists {
		t.Fatalf("Expected lock key to exist")
	}
	for i := 0; i < 50; i++ {
		database.SetEIfUnset("lock", []byte("late"), base+1, 0)
	}
	if again, _ := database.Get("lock", base+1); !bytes.Equal(again, winner) {
		t.Errorf("SetEIfUnset replaced owner %s with %s", winner, again)
	}
}
