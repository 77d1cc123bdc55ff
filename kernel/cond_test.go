package kernel

import (
	"sync"
	"testing"
	"time"
)

// TestCondVarNotifyAllWakesAllInFIFOOrder is spec.md's Scenario 5: ten
// threads park on a condition variable guarded by mutex x; a single
// NotifyAll wakes all of them, but each still serializes through x on
// the way out, so only one ever runs its critical section at a time,
// in FIFO arrival order.
func TestCondVarNotifyAllWakesAllInFIFOOrder(t *testing.T) {
	s := NewScheduler()
	x := NewMutex(ProtocolNone, false, 0)
	cv := NewCondVar()

	const n = 10
	ready := make(chan struct{}, n)
	var mu sync.Mutex
	order := make([]int, 0, n)
	done := make(chan struct{}, n)
	var inCritical int

	for i := 0; i < n; i++ {
		i := i
		s.Spawn("waiter", 1, PolicyFIFO, func(c *Context) {
			x.Lock(c)
			ready <- struct{}{}
			cv.Wait(c, x)

			mu.Lock()
			inCritical++
			concurrent := inCritical
			order = append(order, i)
			mu.Unlock()
			if concurrent > 1 {
				t.Errorf("more than one waiter in the critical section at once")
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			inCritical--
			mu.Unlock()

			x.Unlock(c)
			done <- struct{}{}
		})
	}

	for i := 0; i < n; i++ {
		select {
		case <-ready:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for all waiters to park")
		}
	}
	// All ten are now blocked on cv, having each released x in turn via
	// Wait's atomic unlock-and-park.
	time.Sleep(10 * time.Millisecond)

	cv.NotifyAll()

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for waiters to finish")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != n {
		t.Fatalf("order has %d entries, want %d", len(order), n)
	}
	seen := make(map[int]bool, n)
	for _, v := range order {
		if seen[v] {
			t.Fatalf("thread %d recorded twice", v)
		}
		seen[v] = true
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want waiters in FIFO arrival order 0..%d", order, n-1)
		}
	}
}

func TestCondVarNotifyOneWakesExactlyOne(t *testing.T) {
	s := NewScheduler()
	x := NewMutex(ProtocolNone, false, 0)
	cv := NewCondVar()

	ready := make(chan struct{}, 2)
	done := make(chan struct{}, 2)

	for i := 0; i < 2; i++ {
		s.Spawn("waiter", 1, PolicyFIFO, func(c *Context) {
			x.Lock(c)
			ready <- struct{}{}
			cv.Wait(c, x)
			x.Unlock(c)
			done <- struct{}{}
		})
	}

	for i := 0; i < 2; i++ {
		<-ready
	}
	time.Sleep(10 * time.Millisecond)

	cv.NotifyOne()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the notified waiter")
	}

	select {
	case <-done:
		t.Fatal("a second waiter finished after only one NotifyOne")
	case <-time.After(50 * time.Millisecond):
	}
}
