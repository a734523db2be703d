// Package manager ties the session engine together for one node.
//
// A Manager keeps the sessions this node knows in memory, loads sessions created
// elsewhere from the distributed store, acquires ownership around every request
// and hands dirty sessions to the replication scheduler when a request ends.
// Idle sessions are expired by a background goroutine.
//
// Usage:
//
//	m := manager.New(cfg, sessionstore.New(kv), clusterLock, nil)
//	m.Open()
//	defer m.Close()
//
//	rec, _ := m.FindSession(id)
//	if _, err := m.Access(ctx, rec); err != nil {
//		return err
//	}
//	defer m.EndAccess(rec)
package manager
