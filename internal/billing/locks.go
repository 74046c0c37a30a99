package billing

import "sync"

// LockTable hands out one mutex per entity name. Entries are created on
// first use and never removed; the set of billed entities is small and
// a lock must survive for the entity's lifetime to keep billing serial.
type LockTable struct {
	locks   sync.Map
	onFirst func(name string)
}

// NewLockTable creates the table. onFirst, if non-nil, runs once per
// entity when its lock is created.
func NewLockTable(onFirst func(name string)) *LockTable {
	return &LockTable{onFirst: onFirst}
}

// Acquire returns the entity's mutex, creating it atomically on first
// use. The caller locks and unlocks it.
func (t *LockTable) Acquire(name string) *sync.Mutex {
	if existing, ok := t.locks.Load(name); ok {
		return existing.(*sync.Mutex)
	}
	lock, loaded := t.locks.LoadOrStore(name, &sync.Mutex{})
	if !loaded && t.onFirst != nil {
		t.onFirst(name)
	}
	return lock.(*sync.Mutex)
}
