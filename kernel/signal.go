package kernel

import "math/bits"

// GenerateSignal sets signalNumber's bit in target's pending set and,
// if target is currently waiting for a signal whose mask includes it,
// wakes it. Safe to call from any goroutine, including one standing in
// for an interrupt handler: it never blocks the caller.
func (s *Scheduler) GenerateSignal(target *TCB, signalNumber uint8) Error {
	if signalNumber >= 32 {
		return EINVAL
	}
	bit := uint32(1) << signalNumber
	s.mu.Lock()
	defer s.mu.Unlock()
	target.pendingSignals |= bit
	if target.waitingForSignal && target.waitingSignalMask&target.pendingSignals != 0 {
		s.unblockLocked(target, UnblockReasonRequest)
	}
	return OK
}

// GetPendingSignalSet returns the calling thread's full pending signal
// mask without consuming any of it.
func (c *Context) GetPendingSignalSet() uint32 {
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.self.pendingSignals
}

// AcceptPendingSignal clears and returns the lowest-numbered pending
// signal that is also set in mask, or EAGAIN if none of mask is
// pending.
func (c *Context) AcceptPendingSignal(mask uint32) (uint8, Error) {
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return acceptPendingLocked(c.self, mask)
}

func acceptPendingLocked(self *TCB, mask uint32) (uint8, Error) {
	set := self.pendingSignals & mask
	if set == 0 {
		return 0, EAGAIN
	}
	n := uint8(bits.TrailingZeros32(set))
	self.pendingSignals &^= uint32(1) << n
	return n, OK
}

// WaitForSignal blocks the calling thread until at least one signal in
// mask is pending, then accepts and returns it.
func (c *Context) WaitForSignal(mask uint32) (uint8, Error) {
	return c.waitForSignalImpl(mask, 0, false)
}

// TryWaitForSignal is WaitForSignal's non-blocking form: an alias of
// AcceptPendingSignal kept for symmetry with the semaphore/mutex
// Try-family naming.
func (c *Context) TryWaitForSignal(mask uint32) (uint8, Error) {
	return c.AcceptPendingSignal(mask)
}

// TryWaitForSignalUntil is WaitForSignal bounded by an absolute tick
// deadline.
func (c *Context) TryWaitForSignalUntil(mask uint32, deadline uint64) (uint8, Error) {
	return c.waitForSignalImpl(mask, deadline, true)
}

func (c *Context) waitForSignalImpl(mask uint32, deadline uint64, timed bool) (uint8, Error) {
	s := c.sched
	self := c.self

	// acceptedNow and satisfiedByPrecheck carry precheck's outcome out
	// of blockImpl. precheck runs under the scheduler lock inside
	// blockImpl, in the same critical section that would otherwise
	// enqueue self and set waitingForSignal: folding the accept attempt
	// in here, instead of checking separately before calling blockImpl,
	// closes the gap where a GenerateSignal between the check and the
	// enqueue would set the pending bit while waitingForSignal is still
	// false and so never call unblockLocked.
	var acceptedNow uint8
	var satisfiedByPrecheck bool
	precheck := func() bool {
		n, err := acceptPendingLocked(self, mask)
		if err != OK {
			return false
		}
		acceptedNow = n
		satisfiedByPrecheck = true
		return true
	}

	if timed {
		s.mu.Lock()
		expired := deadline <= s.tick
		s.mu.Unlock()
		if expired {
			s.mu.Lock()
			ok := precheck()
			s.mu.Unlock()
			if ok {
				return acceptedNow, OK
			}
			return 0, ETIMEDOUT
		}
	}

	hook := func() {
		self.waitingForSignal = true
		self.waitingSignalMask = mask
	}

	var reason UnblockReason
	if timed {
		reason = c.blockImpl(&self.sigBlocked, deadline, true, nil, precheck, hook)
	} else {
		reason = c.blockImpl(&self.sigBlocked, 0, false, nil, precheck, hook)
	}

	if satisfiedByPrecheck {
		return acceptedNow, OK
	}

	s.mu.Lock()
	self.waitingForSignal = false
	if reason == UnblockReasonTimeout {
		s.mu.Unlock()
		return 0, ETIMEDOUT
	}
	n, err := acceptPendingLocked(self, mask)
	s.mu.Unlock()
	if err != OK {
		// Woken (GenerateSignal saw an overlapping bit) but a racing
		// AcceptPendingSignal call already consumed every matching bit
		// first: report EINTR rather than a misleading EAGAIN so the
		// caller knows to retry instead of assuming no signal arrived.
		return 0, EINTR
	}
	return n, OK
}
