package kernel

import "sync/atomic"

// Semaphore is a counting semaphore with an optional saturation point.
// It is the elemental blocking primitive: every other blocking wait in
// this kernel (FIFO queues, thread join) is expressed in terms of Post
// and Wait.
type Semaphore struct {
	schedPtr atomic.Pointer[Scheduler]
	value    uint32
	max      uint32
	blocked  list
}

// NewSemaphore creates a semaphore with the given initial value and
// maximum. A max of 0 means unbounded (saturates at ^uint32(0)).
func NewSemaphore(initial, max uint32) *Semaphore {
	if max == 0 {
		max = ^uint32(0)
	}
	s := &Semaphore{value: initial, max: max}
	s.blocked.tag = StateBlockedOnSemaphore
	return s
}

// bind attaches the semaphore to the scheduler whose Context is used to
// call it for the first time. A semaphore used only from Post (the
// ISR-callable half) never needs one. CompareAndSwap rather than a
// plain nil check: multiple threads can race to bind the same
// never-yet-waited-on semaphore concurrently.
func (s *Semaphore) bind(c *Context) {
	s.schedPtr.CompareAndSwap(nil, c.sched)
}

func (s *Semaphore) sched() *Scheduler { return s.schedPtr.Load() }

// Value returns the current count. For diagnostics/tests only; under
// concurrent use the value may change immediately after this returns.
func (s *Semaphore) Value() uint32 {
	sched := s.sched()
	if sched == nil {
		return s.value
	}
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return s.value
}

// Post increments the semaphore, or hands its "ticket" directly to the
// head blocked waiter if one exists, without ever touching value in
// that case (value + blocked-to-wake is conserved across Post/Wait).
// Safe to call from any goroutine, including one standing in for an
// interrupt handler: it never blocks the caller.
func (s *Semaphore) Post() Error {
	sched := s.sched()
	if sched == nil {
		// Never bound to a scheduler (no Wait-family call happened
		// yet): behave as a plain unblocked counter.
		if s.value >= s.max {
			return EOVERFLOW
		}
		s.value++
		return OK
	}
	sched.mu.Lock()
	defer sched.mu.Unlock()
	if w := s.blocked.front(); w != nil {
		sched.unblockLocked(w, UnblockReasonRequest)
		return OK
	}
	if s.value >= s.max {
		return EOVERFLOW
	}
	s.value++
	return OK
}

// Wait blocks until the semaphore can be decremented. precheck runs
// under the same scheduler-lock critical section that enqueues the
// caller onto s.blocked, so a concurrent Post always observes either
// the decremented value or the enqueued waiter -- never neither.
func (s *Semaphore) Wait(c *Context) Error {
	s.bind(c)

	precheck := func() bool {
		if s.value == 0 {
			return false
		}
		s.value--
		return true
	}
	c.blockImpl(&s.blocked, 0, false, nil, precheck, nil)
	return OK
}

// TryWait is the non-blocking form of Wait.
func (s *Semaphore) TryWait(c *Context) Error {
	s.bind(c)
	sched := s.sched()
	sched.mu.Lock()
	defer sched.mu.Unlock()
	if s.value == 0 {
		return EAGAIN
	}
	s.value--
	return OK
}

// TryWaitUntil is Wait bounded by an absolute tick deadline. The
// counter check and the enqueue happen inside the same precheck-guarded
// blockImpl call as Wait, for the same lost-wakeup reason.
func (s *Semaphore) TryWaitUntil(c *Context, deadline uint64) Error {
	s.bind(c)
	sched := s.sched()

	precheck := func() bool {
		if s.value == 0 {
			return false
		}
		s.value--
		return true
	}

	sched.mu.Lock()
	if precheck() {
		sched.mu.Unlock()
		return OK
	}
	alreadyDue := deadline <= sched.tick
	sched.mu.Unlock()
	if alreadyDue {
		return ETIMEDOUT
	}

	reason := c.blockImpl(&s.blocked, deadline, true, nil, precheck, nil)
	if reason == UnblockReasonRequest {
		return OK
	}
	return ETIMEDOUT
}

// TryWaitFor is TryWaitUntil(now()+d+1): the +1 tick rounds up so "wait
// at least d ticks" holds despite tick granularity (spec.md §4.2).
func (s *Semaphore) TryWaitFor(c *Context, d uint64) Error {
	s.bind(c)
	if d == 0 {
		return s.TryWait(c)
	}
	now := c.sched.Now()
	return s.TryWaitUntil(c, now+d+1)
}
