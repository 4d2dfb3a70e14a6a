package concurrency

import "sync"

// RequestLockManager serializes lifecycle operations per meeting request, so
// exactly one accept/decline/cancel wins when callers race. Locks are
// per-request, never global.
type RequestLockManager struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func NewRequestLockManager() *RequestLockManager {
	return &RequestLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *RequestLockManager) Lock(requestID string) {
	m.mu.Lock()
	lock, ok := m.locks[requestID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[requestID] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

func (m *RequestLockManager) Unlock(requestID string) {
	m.mu.Lock()
	lock, ok := m.locks[requestID]
	if ok {
		lock.Unlock()
	}
	m.mu.Unlock()
}
