package chain

import "sync"

// siteLocks hands out one mutex per site id and forgets it once unused.
type siteLocks struct {
	mu    sync.Mutex
	locks map[string]*siteLock
}

type siteLock struct {
	mu   sync.Mutex
	refs int
}

func newSiteLocks() *siteLocks {
	return &siteLocks{locks: make(map[string]*siteLock)}
}

// lock blocks until siteID is free and returns the matching unlock.
func (l *siteLocks) lock(siteID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[siteID]
	if !ok {
		entry = &siteLock{}
		l.locks[siteID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, siteID)
		}
		l.mu.Unlock()
	}
}
