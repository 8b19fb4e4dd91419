package service

import (
	"context"
	"sync"
)

// LockManager serializes state-mutating work per session. Entries are
// created on demand and evicted once nobody holds or waits on them.
type LockManager struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	slot chan struct{} // capacity 1; a filled slot means held
	refs int           // holders + waiters
}

// heldLock records the locks held by the current call chain so that nested
// WithLock calls for the same session do not deadlock.
type heldLock struct {
	sessionID int64
	next      *heldLock
}

type heldLockKey struct{}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{entries: make(map[int64]*lockEntry)}
}

func holds(ctx context.Context, sessionID int64) bool {
	for h, _ := ctx.Value(heldLockKey{}).(*heldLock); h != nil; h = h.next {
		if h.sessionID == sessionID {
			return true
		}
	}
	return false
}

// WithLock runs fn while holding the session's lock. The ctx passed to fn
// marks the lock as held, so fn may call WithLock for the same session again
// without blocking. Waiting for the lock honours ctx cancellation.
func (m *LockManager) WithLock(ctx context.Context, sessionID int64, fn func(ctx context.Context) error) error {
	if holds(ctx, sessionID) {
		return fn(ctx)
	}

	e := m.ref(sessionID)
	defer m.unref(sessionID, e)

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.slot }()

	prev, _ := ctx.Value(heldLockKey{}).(*heldLock)
	return fn(context.WithValue(ctx, heldLockKey{}, &heldLock{sessionID: sessionID, next: prev}))
}

func (m *LockManager) ref(sessionID int64) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		m.entries[sessionID] = e
	}
	e.refs++
	return e
}

func (m *LockManager) unref(sessionID int64, e *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, sessionID)
	}
}

// size reports the number of live lock entries.
func (m *LockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
