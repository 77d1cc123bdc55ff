package timer

import "testing"

func TestWheelRunDueInDeadlineOrder(t *testing.T) {
	w := New()
	var order []string
	w.ScheduleAt(10, func() { order = append(order, "a") })
	w.ScheduleAt(5, func() { order = append(order, "b") })
	w.ScheduleAt(5, func() { order = append(order, "c") })

	w.RunDue(7)
	want := []string{"b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	w.RunDue(10)
	want = []string{"b", "c", "a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestWheelRunDueSkipsNotYetDue(t *testing.T) {
	w := New()
	fired := false
	w.ScheduleAt(100, func() { fired = true })
	w.RunDue(99)
	if fired {
		t.Fatal("callback fired before its deadline")
	}
	if w.Empty() {
		t.Fatal("Empty() = true before the due callback ran")
	}
	w.RunDue(100)
	if !fired {
		t.Fatal("callback did not fire at its deadline")
	}
	if !w.Empty() {
		t.Fatal("Empty() = false after the only entry ran")
	}
}

func TestWheelCancelPreventsCallback(t *testing.T) {
	w := New()
	fired := false
	h := w.ScheduleAt(10, func() { fired = true })
	w.Cancel(h)
	w.RunDue(10)
	if fired {
		t.Fatal("canceled callback fired")
	}
}

func TestWheelCancelUnknownHandleIsNoop(t *testing.T) {
	w := New()
	w.Cancel(Handle(999))
	if !w.Empty() {
		t.Fatal("Empty() = false on a fresh wheel")
	}
}

func TestWheelCancelAlreadyFiredIsNoop(t *testing.T) {
	w := New()
	h := w.ScheduleAt(1, func() {})
	w.RunDue(1)
	w.Cancel(h) // must not panic or affect anything
	if !w.Empty() {
		t.Fatal("Empty() = false after the only entry ran")
	}
}
