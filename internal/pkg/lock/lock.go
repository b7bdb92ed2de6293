// Package lock provides keyed mutual exclusion with a bounded wait.
// Engines use it to serialize actions per session id so two concurrent
// actions against the same session can never interleave mid-mutation; a
// caller that cannot acquire the key in time fails with ErrLockTimeout
// instead of queueing indefinitely.
package lock

import (
	"context"
	"sync"
	"time"
)

// keyMutex wraps a mutex so instances can cycle through the pool.
type keyMutex struct {
	mu sync.Mutex
}

// KeyedLock provides per-key locking. Keys are arbitrary strings
// (session ids here); locks are created on demand.
type KeyedLock struct {
	locks sync.Map // map[string]*keyMutex
	pool  sync.Pool
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given key.
func (kl *KeyedLock) getLock(key string) *keyMutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*keyMutex)
	}

	newLock := kl.pool.Get().(*keyMutex)

	actual, loaded := kl.locks.LoadOrStore(key, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool.
		kl.pool.Put(newLock)
	}
	return actual.(*keyMutex)
}

// Unlock releases the lock for a key.
func (kl *KeyedLock) Unlock(key string) {
	if v, ok := kl.locks.Load(key); ok {
		v.(*keyMutex).mu.Unlock()
	}
}

// LockWithTimeout attempts to acquire the lock within the timeout.
// Returns true if the lock was acquired, false if the timeout elapsed.
func (kl *KeyedLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	lock := kl.getLock(key)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the lock;
		// release it immediately so no one is blocked forever.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLockContext executes fn while holding the key's lock, failing with
// ErrLockTimeout if the lock cannot be acquired in time.
func (kl *KeyedLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
