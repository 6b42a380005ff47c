package checker

import (
	"context"
	"sync"
)

// HostLimiter ensures that only one check per host is running at any given time.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	sem  chan struct{}
	refs int
}

// NewHostLimiter creates a new HostLimiter.
func NewHostLimiter() *HostLimiter {
	return &HostLimiter{
		hosts: make(map[string]*hostSlot),
	}
}

// Acquire blocks until no other check holds host, or ctx is done.
func (hl *HostLimiter) Acquire(ctx context.Context, host string) error {
	hl.mu.Lock()
	slot, ok := hl.hosts[host]
	if !ok {
		slot = &hostSlot{sem: make(chan struct{}, 1)}
		hl.hosts[host] = slot
	}
	slot.refs++
	hl.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		hl.forget(host, slot)
		return ctx.Err()
	}
}

// Release frees host for the next waiter.
func (hl *HostLimiter) Release(host string) {
	hl.mu.Lock()
	slot, ok := hl.hosts[host]
	hl.mu.Unlock()
	if !ok {
		return
	}
	<-slot.sem
	hl.forget(host, slot)
}

// Active reports how many hosts are held or waited on.
func (hl *HostLimiter) Active() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.hosts)
}

func (hl *HostLimiter) forget(host string, slot *hostSlot) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(hl.hosts, host)
	}
}
