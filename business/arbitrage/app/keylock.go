package app

import (
	"sync"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

// KeyLock is a table of per-route locks. A busy key is reported, never
// waited on.
type KeyLock struct {
	mu     sync.Mutex
	owners map[domain.RouteKey]string
}

// NewKeyLock creates an empty table.
func NewKeyLock() *KeyLock {
	return &KeyLock{owners: make(map[domain.RouteKey]string)}
}

// TryLock takes key for owner, or reports false if another owner holds it.
func (l *KeyLock) TryLock(key domain.RouteKey, owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.owners[key]; busy {
		return false
	}
	l.owners[key] = owner
	return true
}

// Unlock frees key if owner holds it.
func (l *KeyLock) Unlock(key domain.RouteKey, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owners[key] == owner {
		delete(l.owners, key)
	}
}

// Holder returns the owner of key, if any.
func (l *KeyLock) Holder(key domain.RouteKey) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[key]
	return owner, ok
}

// Len returns the number of held keys.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owners)
}
