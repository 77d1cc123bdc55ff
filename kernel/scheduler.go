package kernel

import (
	"sync"

	"rtoscore/kernel/timer"
)

// Logger is the minimal log sink the scheduler traces onto, when one is
// configured. It mirrors hal.Logger's shape so a caller can hand in
// that exact type without an adapter.
type Logger interface {
	WriteLineString(s string)
}

// Scheduler owns the ready list, the sleep list, the tick counter, and
// the software timer registrations that back timed waits. Every
// mutation anywhere in the kernel -- ready list, any primitive's
// blocked list, priority bookkeeping, signal masks -- happens with mu
// held: mu IS the interrupt mask spec.md's critical sections describe,
// and Lock/Unlock are maskInterrupts/restoreInterrupts concretized for
// a hosted, goroutine-backed port (see each TCB's wake/turn channels
// below and checkpoint/notifyHeadLocked for the context-switch half).
type Scheduler struct {
	mu sync.Mutex

	ready    *readyList
	sleeping list
	timers   *timer.Wheel
	all      []*TCB

	tick uint64

	logger Logger

	switchCount uint64
}

// NewScheduler creates an empty scheduler. Call Add (or Spawn) to
// populate it with threads before calling TickHook.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		ready:  newReadyList(),
		timers: timer.New(),
	}
	s.sleeping.tag = StateSleeping
	return s
}

// SetLogger installs an optional trace sink. The scheduler writes a line
// to it when a thread body panics and when Halt is called; context
// switches, priority boosts and timeouts are not traced. Safe to call
// before any thread exists; not safe to call concurrently with running
// threads.
func (s *Scheduler) SetLogger(l Logger) { s.logger = l }

func (s *Scheduler) trace(line string) {
	if s.logger != nil {
		s.logger.WriteLineString(line)
	}
}

// Context is the handle a thread body uses to call back into the
// kernel. It carries the thread's own identity explicitly -- the
// analogue of a hardware port's implicit "currently running TCB"
// global, made safe under concurrent goroutines by binding each thread
// body to its own TCB at spawn time instead of relying on shared
// mutable state.
type Context struct {
	sched *Scheduler
	self  *TCB
}

// Self returns the TCB this context was created for.
func (c *Context) Self() *TCB { return c.self }

// Scheduler returns the scheduler this context belongs to.
func (c *Context) Scheduler() *Scheduler { return c.sched }

// Now returns the current tick count.
func (s *Scheduler) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Stats is a read-only snapshot of scheduler bookkeeping counters (the
// distortos-derived statistics facility; see SPEC_FULL.md §4).
type Stats struct {
	Tick          uint64
	ContextSwitch uint64
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Tick: s.tick, ContextSwitch: s.switchCount}
}

// Add transitions tcb from New to Runnable and inserts it into the
// ready list. tcb must be in state New.
func (s *Scheduler) Add(tcb *TCB) Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(tcb)
}

func (s *Scheduler) addLocked(tcb *TCB) Error {
	if tcb.state != StateNew {
		return EINVAL
	}
	tcb.state = StateRunnable
	s.ready.insertTail(tcb)
	s.all = append(s.all, tcb)
	s.notifyHeadLocked()
	return OK
}

// ThreadSnapshot is a point-in-time, read-only view of one thread,
// meant for diagnostic tooling (the debug monitor, tests) rather than
// scheduling decisions.
type ThreadSnapshot struct {
	Name              string
	BasePriority      uint8
	EffectivePriority uint8
	State             State
	Policy            Policy
}

// Snapshot returns a ThreadSnapshot for every thread ever added to the
// scheduler, in the order they were added.
func (s *Scheduler) Snapshot() []ThreadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThreadSnapshot, 0, len(s.all))
	for _, t := range s.all {
		out = append(out, ThreadSnapshot{
			Name:              t.Name,
			BasePriority:      t.basePriority,
			EffectivePriority: t.Effective(),
			State:             t.state,
			Policy:            t.policy,
		})
	}
	return out
}

// Spawn creates a TCB and starts its body on its own goroutine, which
// is the concrete realization of spec.md §6's thread-body trampoline:
// run the user function, mark the thread terminated and post the join
// semaphore, then let the goroutine exit.
func (s *Scheduler) Spawn(name string, priority uint8, policy Policy, fn func(ctx *Context)) *TCB {
	tcb := NewTCB(name, priority, policy)
	s.Add(tcb)
	ctx := &Context{sched: s, self: tcb}
	go s.trampoline(ctx, fn)
	return tcb
}

func (s *Scheduler) trampoline(ctx *Context, fn func(ctx *Context)) {
	s.checkpoint(ctx.self)
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.trace("thread " + ctx.self.Name + " panicked")
				panic(r)
			}
		}()
		fn(ctx)
	}()
	s.terminate(ctx.self)
}

func (s *Scheduler) terminate(tcb *TCB) {
	s.mu.Lock()
	s.ready.remove(tcb)
	tcb.state = StateTerminated
	s.notifyHeadLocked()
	s.mu.Unlock()
	tcb.joinSem.Post()
}

// Join blocks the calling context until target has terminated. Joining
// the calling thread itself is a contract violation (EDEADLK). Join may
// be called from more than one thread for the same target: the join
// semaphore's single posted ticket is handed back after each
// observation so later joiners still see the termination.
func (c *Context) Join(target *TCB) Error {
	if target == c.self {
		return EDEADLK
	}
	for {
		if c.sched.stateOf(target) == StateTerminated {
			return OK
		}
		err := target.joinSem.Wait(c)
		if err == EINTR {
			continue
		}
		if err == OK {
			target.joinSem.Post()
			return OK
		}
		return err
	}
}

func (s *Scheduler) stateOf(t *TCB) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.state
}

// checkpoint parks the calling goroutine until self is the ready
// list's head, i.e. until the scheduler has actually scheduled it. See
// SPEC_FULL.md §1.1 for why kernel-call boundaries are this port's
// scheduling points.
func (s *Scheduler) checkpoint(self *TCB) {
	s.mu.Lock()
	for s.ready.head() != self {
		s.mu.Unlock()
		<-self.turn
		s.mu.Lock()
	}
	self.stats.switchesIn++
	s.mu.Unlock()
}

// notifyHeadLocked wakes whichever TCB is now the ready list's head so
// it can pass its next checkpoint. Must be called with mu held.
func (s *Scheduler) notifyHeadLocked() {
	h := s.ready.head()
	if h == nil {
		return
	}
	s.switchCount++
	select {
	case h.turn <- struct{}{}:
	default:
	}
}

// Block removes the calling thread from the ready list, appends it to
// l (tagging its state from l's tag), optionally installs functor, and
// parks the caller until some other thread or ISR calls Unblock (or,
// for BlockUntil, until the deadline elapses). It returns the reason
// the thread resumed.
func (c *Context) Block(l *list, functor UnblockFunctor) UnblockReason {
	return c.blockImpl(l, 0, false, functor, nil, nil)
}

// BlockUntil is Block plus timer-facility enrollment: if no other
// wakeup arrives by tick deadline, the tick hook unblocks the caller
// itself with UnblockReasonTimeout.
func (c *Context) BlockUntil(l *list, deadline uint64, functor UnblockFunctor) UnblockReason {
	return c.blockImpl(l, deadline, true, functor, nil, nil)
}

// blockImpl is Block's full implementation. precheck, when non-nil,
// runs with the scheduler lock held before the caller is removed from
// the ready list: if it reports true, the wait is satisfied already
// (e.g. a semaphore count was available, a signal was pending) and
// blockImpl returns immediately with UnblockReasonRequest instead of
// enqueuing onto l at all. This closes the lost-wakeup window a
// caller-side "check, then separately call Block" pattern would leave
// between the check and the enqueue: the precondition test and the
// enqueue now happen under the same critical section, so a concurrent
// Post/GenerateSignal always observes one or the other, never neither.
//
// afterEnqueue, when non-nil, runs with the scheduler lock still held
// immediately after the caller is linked into l and before it is
// parked -- the seam the priority-inheritance mutex path uses to
// propagate a boost that must see the new waiter already enqueued.
func (c *Context) blockImpl(l *list, deadline uint64, timed bool, functor UnblockFunctor, precheck func() bool, afterEnqueue func()) UnblockReason {
	s := c.sched
	self := c.self

	s.mu.Lock()
	if precheck != nil && precheck() {
		s.mu.Unlock()
		return UnblockReasonRequest
	}
	s.ready.remove(self)
	l.pushBack(self)
	self.unblockFunctor = functor
	if afterEnqueue != nil {
		afterEnqueue()
	}

	var th timer.Handle
	if timed {
		th = s.timers.ScheduleAt(deadline, func() {
			s.unblockLocked(self, UnblockReasonTimeout)
		})
	}
	s.notifyHeadLocked()
	s.mu.Unlock()

	reason := <-self.wake

	if timed {
		s.mu.Lock()
		s.timers.Cancel(th)
		s.mu.Unlock()
	}

	s.checkpoint(self)
	return reason
}

// Unblock removes tcb from whatever list currently holds it and makes
// it runnable again with the given reason. Safe to call from any
// goroutine, including one standing in for an interrupt handler: it
// only ever mutates state under the scheduler's lock and never blocks
// the caller.
func (s *Scheduler) Unblock(tcb *TCB, reason UnblockReason) {
	s.mu.Lock()
	s.unblockLocked(tcb, reason)
	s.mu.Unlock()
}

func (s *Scheduler) unblockLocked(tcb *TCB, reason UnblockReason) {
	if tcb.list == nil || tcb.state == StateRunnable || tcb.state == StateTerminated {
		// Already unblocked by a racing wakeup/timeout (see spec.md §9:
		// a race between timeout and wakeup resolves to whichever the
		// single kernel lock serializes first; this makes the other a
		// no-op instead of a double-wake).
		return
	}
	tcb.list.remove(tcb)
	functor := tcb.unblockFunctor
	tcb.unblockFunctor = nil
	if functor != nil {
		functor(tcb)
	}
	tcb.unblockReason = reason
	tcb.state = StateRunnable
	s.ready.insertTail(tcb)
	s.notifyHeadLocked()

	select {
	case tcb.wake <- reason:
	default:
	}
}

// Yield moves the calling thread to the tail of its own priority band
// and cedes the floor to whoever is now head (itself again, if it was
// alone in its band).
func (c *Context) Yield() {
	s := c.sched
	self := c.self
	s.mu.Lock()
	s.ready.remove(self)
	s.ready.insertTail(self)
	s.notifyHeadLocked()
	s.mu.Unlock()
	s.checkpoint(self)
}

// SleepUntil blocks the calling thread until tick deadline.
func (c *Context) SleepUntil(deadline uint64) {
	c.BlockUntil(&c.sched.sleeping, deadline, nil)
}

// SleepFor blocks the calling thread for at least ticks ticks.
func (c *Context) SleepFor(ticks uint64) {
	c.SleepUntil(c.sched.Now() + ticks)
}

// TickHook is the scheduler's side of the system tick interrupt. It
// advances the tick counter, expires due timed waits (via the timer
// facility), rotates the running thread's priority band if its
// round-robin quantum has elapsed, and is the seam a caller-supplied
// software-timer callback set runs through (RunDue below already covers
// both expiring kernel waits and arbitrary user timers registered on
// the same Wheel).
func (s *Scheduler) TickHook() {
	s.mu.Lock()
	s.tick++
	now := s.tick
	s.timers.RunDue(now)

	if head := s.ready.head(); head != nil && head.policy == PolicyRoundRobin {
		if head.quantum > 0 {
			head.quantum--
		}
		if head.quantum == 0 {
			head.quantum = head.defaultQuantum
			band := &s.ready.bands[head.Effective()]
			if band.len > 1 {
				band.remove(head)
				band.pushBack(head)
				s.notifyHeadLocked()
			}
		}
	}
	s.mu.Unlock()
}

// Timers exposes the scheduler's software timer facility so callers
// outside the kernel (e.g. a board bring-up driver) can schedule their
// own tick-aligned callbacks through the same seam timed kernel waits
// use, per spec.md's "external collaborator" contract.
func (s *Scheduler) Timers() *timer.Wheel { return s.timers }

// Halt is the architecture port's fatal-bug hook (spec.md §7): stack
// guard failures and other unrecoverable kernel bugs call this instead
// of trying to unwind. The default behavior traces the reason and
// panics; callers may not intercept it into anything that returns.
func (s *Scheduler) Halt(reason string) {
	s.trace("HALT: " + reason)
	panic("kernel halt: " + reason)
}
