package minting

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// nameLock is the claim of one operation on a name.
type nameLock struct {
	token   uint64
	write   *PendingWrite
	claimed time.Time
}

// pendingSet allows one in-flight write per name and tracks what each
// operation is waiting on.
type pendingSet struct {
	locks     map[string]nameLock
	nextToken uint64
	mu        sync.RWMutex
}

// newPendingSet creates an empty pending set.
func newPendingSet() *pendingSet {
	return &pendingSet{
		locks: make(map[string]nameLock),
	}
}

// Acquire claims name. The returned token must be passed to Track and
// Release.
func (p *pendingSet) Acquire(name string, now time.Time) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.locks[name]; exists {
		return 0, ErrWriteInFlight
	}

	p.nextToken++
	p.locks[name] = nameLock{
		token:   p.nextToken,
		claimed: now,
	}

	return p.nextToken, nil
}

// Track records the write the claim is waiting on. It reports false if the
// claim was dropped by Reset.
func (p *pendingSet) Track(name string, token uint64, kind WriteKind,
	hash common.Hash, now time.Time) bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	lock, exists := p.locks[name]
	if !exists || lock.token != token {
		return false
	}

	lock.write = &PendingWrite{
		Name:        name,
		Kind:        kind,
		TxHash:      hash,
		SubmittedAt: now,
	}
	p.locks[name] = lock

	return true
}

// Settle forgets the tracked write once it is confirmed or failed. The claim
// itself is kept until Release.
func (p *pendingSet) Settle(name string, token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, exists := p.locks[name]
	if !exists || lock.token != token {
		return
	}

	lock.write = nil
	p.locks[name] = lock
}

// Release drops the claim. A claim replaced after Reset is left alone.
func (p *pendingSet) Release(name string, token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lock, exists := p.locks[name]; exists && lock.token == token {
		delete(p.locks, name)
	}
}

// IsClaimed reports whether a write for name is in flight.
func (p *pendingSet) IsClaimed(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, exists := p.locks[name]
	return exists
}

// Len returns the number of claimed names.
func (p *pendingSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.locks)
}

// Writes returns the tracked writes ordered by submission time.
func (p *pendingSet) Writes() []PendingWrite {
	p.mu.RLock()
	defer p.mu.RUnlock()

	writes := make([]PendingWrite, 0, len(p.locks))
	for _, lock := range p.locks {
		if lock.write != nil {
			writes = append(writes, *lock.write)
		}
	}

	sort.Slice(writes, func(i, j int) bool {
		return writes[i].SubmittedAt.Before(writes[j].SubmittedAt)
	})

	return writes
}

// Reset drops every claim and tracked write.
func (p *pendingSet) Reset() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.locks)
	p.locks = make(map[string]nameLock)

	return n
}
