package logstore

import "sync"

// userLocks hands out one mutex per user name. Entries are dropped once no
// caller holds or waits for them, so the map only grows with concurrency.
type userLocks struct {
	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{users: make(map[string]*userLock)}
}

func (l *userLocks) lock(user string) func() {
	l.mu.Lock()
	ul, ok := l.users[user]
	if !ok {
		ul = &userLock{}
		l.users[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ul.Unlock()
			l.mu.Lock()
			ul.refs--
			if ul.refs == 0 {
				delete(l.users, user)
			}
			l.mu.Unlock()
		})
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
