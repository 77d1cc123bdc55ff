// Package boardsim is a host-runnable stand-in for board bring-up: it
// seeds a kernel.Scheduler with a demo thread set, then drives the
// scheduler's external collaborators -- the tick source and GPIO
// interrupts -- from real goroutines supervised by an errgroup.Group,
// exactly the role spec.md §6 assigns to "board bring-up" (out of the
// kernel's own scope, but something every runnable demo still needs).
package boardsim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rtoscore/hal"
	"rtoscore/kernel"
)

// ThreadSpec describes one demo thread to seed into the scheduler.
type ThreadSpec struct {
	Name     string
	Priority uint8
	Policy   kernel.Policy
	Body     func(ctx *kernel.Context, b *Board)
}

// Board couples a scheduler to a hal.HAL and supervises the goroutines
// that stand in for interrupt sources.
type Board struct {
	Sched *kernel.Scheduler
	HAL   hal.HAL

	logCh chan string

	mu    sync.RWMutex
	edges map[string]edgeTarget
}

type edgeTarget struct {
	tcb    *kernel.TCB
	signal uint8
}

// New creates a Board with a fresh scheduler wired to h's log sink
// through a buffered channel, so scheduler tracing never blocks on a
// slow or contended logger.
func New(h hal.HAL) *Board {
	b := &Board{
		HAL:   h,
		Sched: kernel.NewScheduler(),
		logCh: make(chan string, 256),
		edges: make(map[string]edgeTarget),
	}
	b.Sched.SetLogger(chanLogger{b.logCh})
	return b
}

type chanLogger struct{ ch chan string }

func (l chanLogger) WriteLineString(s string) {
	select {
	case l.ch <- s:
	default:
		// Drop rather than block: a full channel must never stall the
		// thread or kernel call that is tracing.
	}
}

// Spawn seeds the board's scheduler with the given demo threads.
func (b *Board) Spawn(specs []ThreadSpec) {
	for _, sp := range specs {
		sp := sp
		b.Sched.Spawn(sp.Name, sp.Priority, sp.Policy, func(ctx *kernel.Context) {
			sp.Body(ctx, b)
		})
	}
}

// RegisterEdgeSignal arms pinName so that a rising edge observed by the
// GPIO poller calls kernel.GenerateSignal(target, signalNumber) -- the
// concrete realization of spec.md §6's "other hardware interrupts...
// invoke ... generateSignal".
func (b *Board) RegisterEdgeSignal(pinName string, target *kernel.TCB, signalNumber uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges[pinName] = edgeTarget{tcb: target, signal: signalNumber}
}

// RegisterEdgeTarget is RegisterEdgeSignal for a pin that already knows
// its own signal number (hal.SignalSource), so a board doesn't need to
// keep a separate pin-name-to-signal-number table alongside the pin
// definitions themselves. It returns an error if pinName doesn't exist
// on the board's GPIO or doesn't implement SignalSource.
func (b *Board) RegisterEdgeTarget(pinName string, target *kernel.TCB) error {
	gp := b.HAL.GPIO()
	for i := 0; gp != nil && i < gp.PinCount(); i++ {
		pin := gp.Pin(i)
		if pin == nil || pin.Name() != pinName {
			continue
		}
		src, ok := pin.(hal.SignalSource)
		if !ok {
			return fmt.Errorf("boardsim: pin %s does not implement hal.SignalSource", pinName)
		}
		number, ok := src.SignalNumber()
		if !ok {
			return fmt.Errorf("boardsim: pin %s carries no signal number", pinName)
		}
		b.RegisterEdgeSignal(pinName, target, number)
		return nil
	}
	return fmt.Errorf("boardsim: no such GPIO pin %q", pinName)
}

// Run drives the tick pump, GPIO edge injector, and log drain under a
// supervising errgroup until ctx is canceled or any of them errors, at
// which point the others are canceled too.
func (b *Board) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.pumpTicks(ctx) })
	g.Go(func() error { return b.pollGPIO(ctx) })
	g.Go(func() error { return b.drainLog(ctx) })
	return g.Wait()
}

func (b *Board) pumpTicks(ctx context.Context) error {
	ticks := b.HAL.Time().Ticks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return fmt.Errorf("boardsim: tick source closed")
			}
			b.Sched.TickHook()
		}
	}
}

func (b *Board) pollGPIO(ctx context.Context) error {
	gp := b.HAL.GPIO()
	if gp == nil || gp.PinCount() == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	last := make([]bool, gp.PinCount())
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for i := 0; i < gp.PinCount(); i++ {
				pin := gp.Pin(i)
				if pin == nil || pin.Caps()&hal.GPIOCapInput == 0 {
					continue
				}
				level, err := pin.Read()
				if err != nil {
					continue
				}
				if level && !last[i] {
					b.onRisingEdge(pin.Name())
				}
				last[i] = level
			}
		}
	}
}

func (b *Board) onRisingEdge(pinName string) {
	b.mu.RLock()
	target, ok := b.edges[pinName]
	b.mu.RUnlock()
	if !ok {
		return
	}
	b.Sched.GenerateSignal(target.tcb, target.signal)
}

func (b *Board) drainLog(ctx context.Context) error {
	logger := b.HAL.Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-b.logCh:
			logger.WriteLineString(line)
		}
	}
}
