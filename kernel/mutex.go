package kernel

import "sync/atomic"

// Protocol selects how a mutex deals with priority inversion.
type Protocol uint8

const (
	// ProtocolNone is a plain lock: no priority bookkeeping at all.
	ProtocolNone Protocol = iota
	// ProtocolPriorityInheritance boosts the owner to the highest
	// effective priority among its waiters, transitively through any
	// chain of owners blocked on each other's mutexes.
	ProtocolPriorityInheritance
	// ProtocolPriorityCeiling (priority protection) refuses to lock
	// for a thread whose effective priority exceeds the mutex's
	// ceiling, and boosts the owner to that ceiling.
	ProtocolPriorityCeiling
)

// Mutex is a lock with three interchangeable priority-inversion
// protocols. Recursive locking is opt-in; a non-recursive mutex
// returns EDEADLK if its owner locks it again.
type Mutex struct {
	schedPtr atomic.Pointer[Scheduler]

	protocol  Protocol
	recursive bool
	ceiling   uint8

	recursion uint32
	owner     *TCB
	blocked   list

	// ownerNext/ownerPrev thread this mutex through its current
	// owner's "mutexes owned" intrusive list (TCB.ownedMutexesHead).
	ownerNext, ownerPrev *Mutex
}

// NewMutex creates an unlocked mutex. ceiling is only meaningful for
// ProtocolPriorityCeiling.
func NewMutex(protocol Protocol, recursive bool, ceiling uint8) *Mutex {
	m := &Mutex{protocol: protocol, recursive: recursive, ceiling: ceiling}
	m.blocked.tag = StateBlockedOnMutex
	return m
}

func (m *Mutex) bind(c *Context) {
	m.schedPtr.CompareAndSwap(nil, c.sched)
}

func (m *Mutex) sched() *Scheduler { return m.schedPtr.Load() }

// Protocol reports the mutex's configured priority-inversion protocol.
func (m *Mutex) Protocol() Protocol { return m.protocol }

// Owner returns the thread that currently owns the mutex, or nil.
func (m *Mutex) Owner() *TCB {
	s := m.sched()
	if s == nil {
		return m.owner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.owner
}

// Lock acquires the mutex, blocking if it is held by another thread.
func (m *Mutex) Lock(c *Context) Error {
	m.bind(c)
	s := m.sched()
	self := c.self

	s.mu.Lock()
	if m.protocol == ProtocolPriorityCeiling && m.ceiling < self.Effective() {
		s.mu.Unlock()
		return EINVAL
	}
	if err, done := m.lockFastPathLocked(self); done {
		if err == OK && m.protocol != ProtocolNone {
			s.updateBoostedPriorityLocked(self, 0)
		}
		s.mu.Unlock()
		return err
	}
	// ProtocolPriorityInheritance is handled via the afterEnqueue hook
	// below, once self is actually linked into m.blocked.
	s.mu.Unlock()

	// precheck re-attempts the fast-path acquire under the same lock
	// that enqueues the caller onto m.blocked, closing the window
	// between the checks above and blockImpl's own lock acquisition:
	// without it, an Unlock that finds m.blocked still empty would free
	// the mutex and never wake anyone, while self goes on to enqueue
	// and park forever.
	precheck := func() bool {
		_, done := m.lockFastPathLocked(self)
		if done && m.protocol != ProtocolNone {
			s.updateBoostedPriorityLocked(self, 0)
		}
		return done
	}

	var hook func()
	if m.protocol == ProtocolPriorityInheritance {
		hook = func() {
			self.blockingMutex = m
			s.propagateBoostLocked(m)
		}
	}
	c.blockImpl(&m.blocked, 0, false, nil, precheck, hook)
	return OK
}

// TryLock is the non-blocking form of Lock: it returns EAGAIN instead
// of waiting when the mutex is held by another thread.
func (m *Mutex) TryLock(c *Context) Error {
	m.bind(c)
	s := m.sched()
	self := c.self

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.protocol == ProtocolPriorityCeiling && m.ceiling < self.Effective() {
		return EINVAL
	}
	if err, done := m.lockFastPathLocked(self); done {
		if err == OK && m.protocol != ProtocolNone {
			s.updateBoostedPriorityLocked(self, 0)
		}
		return err
	}
	return EAGAIN
}

// lockFastPathLocked handles the unowned and recursive-reacquire cases
// that never need to block. Must be called with sched.mu held.
func (m *Mutex) lockFastPathLocked(self *TCB) (err Error, done bool) {
	if m.owner == nil {
		m.owner = self
		m.recursion = 1
		if m.protocol != ProtocolNone {
			self.addOwnedMutex(m)
		}
		return OK, true
	}
	if m.owner == self {
		if m.recursive {
			m.recursion++
			return OK, true
		}
		return EDEADLK, true
	}
	return OK, false
}

// Unlock releases one level of recursion. When recursion reaches zero
// it recomputes the former owner's boosted priority, then hands the
// mutex to the head waiter (if any), transferring ownership atomically
// with the wakeup.
func (m *Mutex) Unlock(c *Context) Error {
	s := m.sched()
	if s == nil {
		return EPERM
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.unlockLocked(s, c.self)
}

// unlockLocked is Unlock's implementation, callable with sched.mu
// already held. CondVar.Wait uses this to release the associated
// mutex in the same critical section that enqueues the waiter onto
// the condition variable, so no notify can be lost in between.
func (m *Mutex) unlockLocked(s *Scheduler, self *TCB) Error {
	if m.owner != self {
		return EPERM
	}
	m.recursion--
	if m.recursion > 0 {
		return OK
	}

	owner := m.owner
	m.owner = nil
	if m.protocol != ProtocolNone {
		owner.removeOwnedMutex(m)
		s.updateBoostedPriorityLocked(owner, 0)
	}

	next := m.blocked.front()
	if next == nil {
		return OK
	}
	// unblockLocked unlinks next from m.blocked itself; it must run while
	// next is still linked there, or it treats next as already woken.
	s.unblockLocked(next, UnblockReasonRequest)
	m.owner = next
	m.recursion = 1
	next.blockingMutex = nil
	if m.protocol != ProtocolNone {
		next.addOwnedMutex(m)
		// The new owner inherits any boost from this mutex's remaining
		// waiters immediately (spec.md §4.3).
		s.updateBoostedPriorityLocked(next, 0)
	}
	return OK
}

// propagateBoostLocked walks owner -> owner.blockingMutex -> ... ,
// recomputing each owner's boosted priority, and stops as soon as a
// hop produces no change or reaches a thread blocked on nothing. Must
// be called with sched.mu held, with the new waiter already linked
// into m.blocked so its priority is visible to maxWaiterPriority.
func (s *Scheduler) propagateBoostLocked(m *Mutex) {
	cur := m
	for cur != nil {
		owner := cur.owner
		if owner == nil {
			return
		}
		if !s.updateBoostedPriorityLocked(owner, 0) {
			return
		}
		cur = owner.blockingMutex
	}
}

// updateBoostedPriorityLocked is the sole writer of TCB.boostedPriority.
// It sets tcb.boosted = max(floor, the highest ceiling among tcb's
// owned ProtocolPriorityCeiling mutexes, max effective priority of
// waiters on every priority-participating mutex tcb owns),
// repositioning tcb on its current list if its effective priority
// actually changed. Must be called with sched.mu held. Returns whether
// boostedPriority changed.
func (s *Scheduler) updateBoostedPriorityLocked(tcb *TCB, floor uint8) bool {
	newBoost := floor
	if cf := tcb.ceilingFloorLocked(); cf > newBoost {
		newBoost = cf
	}
	if w := tcb.maxWaiterPriority(); w > newBoost {
		newBoost = w
	}
	if newBoost == tcb.boostedPriority {
		return false
	}

	wasReady := tcb.list == &s.ready.bands[tcb.Effective()]
	if wasReady {
		s.ready.remove(tcb)
	}

	oldEff := tcb.Effective()
	tcb.boostedPriority = newBoost
	newEff := tcb.Effective()

	if wasReady {
		if newEff > oldEff {
			s.ready.insertTail(tcb)
		} else {
			// Lowered (typically a boost release): default to the
			// head of the new band, preserving apparent FIFO order
			// among threads that never left it (spec.md §4.1).
			s.ready.insertHead(tcb)
		}
		s.notifyHeadLocked()
	}
	return true
}
