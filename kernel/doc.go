// Package kernel implements a preemptive, priority-driven RTOS core:
// a scheduler, semaphores, mutexes (with the None, PriorityInheritance
// and PriorityCeiling protocols), condition variables, and a per-thread
// signal facility.
//
// The package treats four concerns as external collaborators rather
// than implementing them itself: the context-switch/interrupt-masking
// architecture port (see Arch-shaped seam in scheduler.go's checkpoint
// and notifyHeadLocked), the software timer subsystem (package
// kernel/timer, consumed only through ScheduleAt/Cancel/RunDue), FIFO
// message queues (package kernel/queue, a thin generic wrapper over two
// semaphores), and board bring-up (internal/boardsim).
//
// Every exported operation that can block takes a *Context, obtained
// from Scheduler.Spawn, identifying which thread is calling. This
// stands in for the implicit "currently running TCB" a single-core
// port would track itself: since every kernel call here happens on a
// real goroutine, the caller's identity has to be explicit rather than
// implied by which core is executing.
package kernel
