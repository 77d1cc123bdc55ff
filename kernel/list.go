package kernel

import "math/bits"

// list is an intrusive FIFO doubly-linked list of TCBs. Removal from an
// arbitrary position is O(1) because every TCB carries its own
// prev/next pointers and a back-pointer to the list currently holding
// it (see the TCB/list invariant in the data model).
type list struct {
	head, tail *TCB
	tag        State
	len        int
}

func (l *list) empty() bool { return l.head == nil }

func (l *list) front() *TCB { return l.head }

func (l *list) pushBack(t *TCB) {
	t.list = l
	t.prev = l.tail
	t.next = nil
	if l.tail != nil {
		l.tail.next = t
	} else {
		l.head = t
	}
	l.tail = t
	l.len++
	if l.tag != StateRunnable {
		t.state = l.tag
	}
}

func (l *list) pushFront(t *TCB) {
	t.list = l
	t.next = l.head
	t.prev = nil
	if l.head != nil {
		l.head.prev = t
	} else {
		l.tail = t
	}
	l.head = t
	l.len++
	if l.tag != StateRunnable {
		t.state = l.tag
	}
}

// remove detaches t from l. Passing a TCB that isn't a member of l
// (whether it is linked into another list or into none) is a no-op.
func (l *list) remove(t *TCB) {
	if t.list != l {
		return
	}
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next, t.list = nil, nil, nil
	l.len--
}

func (l *list) popFront() *TCB {
	t := l.head
	if t != nil {
		l.remove(t)
	}
	return t
}

// readyList is the priority-ordered container of runnable threads: 256
// FIFO bands, one per priority level, plus a bitmap so the highest
// non-empty band is found in O(1) rather than by scanning all 256.
type readyList struct {
	bands   [256]list
	present [4]uint64 // bit i set => bands[i] is non-empty
}

func newReadyList() *readyList {
	r := &readyList{}
	for i := range r.bands {
		r.bands[i].tag = StateRunnable
	}
	return r
}

func (r *readyList) setPresent(prio uint8, v bool) {
	word, bit := prio/64, prio%64
	if v {
		r.present[word] |= 1 << bit
	} else {
		r.present[word] &^= 1 << bit
	}
}

// insertTail adds t to the tail of its effective-priority band. Used
// when a thread's priority rises, or it is newly added/unblocked in the
// normal (not "behind") direction.
func (r *readyList) insertTail(t *TCB) {
	p := t.Effective()
	r.bands[p].pushBack(t)
	r.setPresent(p, true)
}

// insertHead adds t to the head of its effective-priority band. Used
// when a thread's priority is lowered and the caller wants to preserve
// its position among threads that never left the band (the default for
// a release-of-boost demotion).
func (r *readyList) insertHead(t *TCB) {
	p := t.Effective()
	r.bands[p].pushFront(t)
	r.setPresent(p, true)
}

// remove detaches t from the ready list. The invariant that a thread's
// list membership is repositioned immediately whenever its effective
// priority changes (see updateBoostedPriority) guarantees t.Effective()
// still names the band t is actually linked into.
func (r *readyList) remove(t *TCB) {
	if t.list == nil {
		return
	}
	p := t.Effective()
	band := &r.bands[p]
	band.remove(t)
	if band.empty() {
		r.setPresent(p, false)
	}
}

// head returns the highest-priority runnable TCB, or nil if the ready
// list is empty. This is the "currently running thread" per the
// ready-list invariant.
func (r *readyList) head() *TCB {
	for w := 3; w >= 0; w-- {
		word := r.present[w]
		if word == 0 {
			continue
		}
		bit := 63 - bits.LeadingZeros64(word)
		prio := uint8(w*64 + bit)
		return r.bands[prio].front()
	}
	return nil
}

func (r *readyList) empty() bool {
	return r.present[0] == 0 && r.present[1] == 0 && r.present[2] == 0 && r.present[3] == 0
}
