package chunkstore

import (
	"sync"

	"github.com/NebulousLabs/demotemutex"
)

// chunkLock is a reader/writer lock plus a count of threads waiting on it,
// so the entry can be garbage-collected from the table when nobody is left
// contending for it (adapted from contractmanager's sectorLock/lockedSectors).
// It uses a DemoteMutex rather than a plain sync.RWMutex for the same reason
// a contract manager's own sector lock does: a writer holding the lock can
// hand it off to waiting readers without a gap where a second writer could
// slip in.
type chunkLock struct {
	waiting int
	mu      demotemutex.DemoteMutex
}

// lockTable hands out a per-path reader/writer lock. Write, Truncate, and
// Flush take it exclusively to keep one writer's metadata update (file_size
// in particular) from racing another's when two requests touch the same
// chunk concurrently; Read takes it shared, so concurrent reads of the same
// chunk never block each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*chunkLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*chunkLock)}
}

func (lt *lockTable) entry(path string) *chunkLock {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	cl, exists := lt.locks[path]
	if exists {
		cl.waiting++
	} else {
		cl = &chunkLock{waiting: 1}
		lt.locks[path] = cl
	}
	return cl
}

func (lt *lockTable) release(path string, cl *chunkLock) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	cl.waiting--
	if cl.waiting == 0 {
		delete(lt.locks, path)
	}
}

func (lt *lockTable) lock(path string) {
	cl := lt.entry(path)
	cl.mu.Lock()
}

func (lt *lockTable) unlock(path string) {
	lt.mu.Lock()
	cl, exists := lt.locks[path]
	lt.mu.Unlock()
	if !exists {
		return
	}
	cl.mu.Unlock()
	lt.release(path, cl)
}

func (lt *lockTable) rlock(path string) {
	cl := lt.entry(path)
	cl.mu.RLock()
}

func (lt *lockTable) runlock(path string) {
	lt.mu.Lock()
	cl, exists := lt.locks[path]
	lt.mu.Unlock()
	if !exists {
		return
	}
	cl.mu.RUnlock()
	lt.release(path, cl)
}
