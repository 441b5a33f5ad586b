package services

import (
	"sort"
	"sync"
)

// WalletLocker serialises in-process writers per wallet. Lock acquires the
// given wallets in ascending id order, the same global order the ledger
// uses for row locks, so two units never wait on each other in a cycle.
type WalletLocker struct {
	mu    sync.Mutex
	locks map[string]*walletLock
}

type walletLock struct {
	mu   sync.Mutex
	refs int
}

func NewWalletLocker() *WalletLocker {
	return &WalletLocker{locks: make(map[string]*walletLock)}
}

// Lock blocks until every id is held and returns the matching unlock.
func (l *WalletLocker) Lock(ids ...string) (unlock func()) {
	ordered := sortedUnique(ids)

	held := make([]*walletLock, 0, len(ordered))
	for _, id := range ordered {
		wl := l.acquire(id)
		wl.mu.Lock()
		held = append(held, wl)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.release(ordered[i])
			}
		})
	}
}

func (l *WalletLocker) acquire(id string) *walletLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	wl, ok := l.locks[id]
	if !ok {
		wl = &walletLock{}
		l.locks[id] = wl
	}
	wl.refs++
	return wl
}

func (l *WalletLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wl := l.locks[id]
	wl.refs--
	if wl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *WalletLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
