// Command rtosmon is a runnable demonstration of the RTOS core: it
// seeds a scheduler with threads illustrating priority ordering,
// priority-inheritance boosting, and round-robin rotation (spec.md §8
// Scenarios 1, 2, 6), drives it against a simulated board, and renders
// live scheduler state through the debug monitor. Flag-based, in the
// teacher's cmd/mkflash style -- no CLI framework.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"rtoscore/internal/boardsim"
	"rtoscore/kernel"
)

// demoThreads seeds the classic priority-inversion scenario from
// spec.md §8 Scenario 2, plus a round-robin pair from Scenario 6, and a
// signal-driven thread woken by the host's free-running SIGPULSE pin,
// onto b's scheduler. It returns the mutex the inversion scenario
// exercises so callers can log its ownership chain.
func demoThreads(b *boardsim.Board) *kernel.Mutex {
	m := kernel.NewMutex(kernel.ProtocolPriorityInheritance, false, 0)

	b.Spawn([]boardsim.ThreadSpec{
		{
			Name: "low", Priority: 1, Policy: kernel.PolicyFIFO,
			Body: func(ctx *kernel.Context, b *boardsim.Board) {
				for {
					m.Lock(ctx)
					ctx.SleepFor(50)
					m.Unlock(ctx)
					ctx.SleepFor(10)
				}
			},
		},
		{
			Name: "medium", Priority: 5, Policy: kernel.PolicyFIFO,
			Body: func(ctx *kernel.Context, b *boardsim.Board) {
				for {
					ctx.SleepFor(5)
				}
			},
		},
		{
			Name: "high", Priority: 10, Policy: kernel.PolicyFIFO,
			Body: func(ctx *kernel.Context, b *boardsim.Board) {
				for {
					m.Lock(ctx)
					ctx.SleepFor(1)
					m.Unlock(ctx)
					ctx.SleepFor(30)
				}
			},
		},
		{
			Name: "rr-a", Priority: 3, Policy: kernel.PolicyRoundRobin,
			Body: func(ctx *kernel.Context, b *boardsim.Board) {
				for {
					ctx.Yield()
				}
			},
		},
		{
			Name: "rr-b", Priority: 3, Policy: kernel.PolicyRoundRobin,
			Body: func(ctx *kernel.Context, b *boardsim.Board) {
				for {
					ctx.Yield()
				}
			},
		},
	})

	// Best-effort: not every board exposes a SIGPULSE-like pin (the
	// bare-metal port doesn't), so a missing pin is not fatal to the
	// demo.
	sigWaiter := b.Sched.Spawn("sigwatch", 4, kernel.PolicyFIFO, func(ctx *kernel.Context) {
		for {
			ctx.WaitForSignal(1 << 3)
		}
	})
	b.RegisterEdgeTarget("SIGPULSE", sigWaiter)

	return m
}

func parseFlags() (durationSec int) {
	flag.IntVar(&durationSec, "seconds", 0, "Stop after N seconds (0 = run forever).")
	flag.Parse()
	return durationSec
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func durationOrForever(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
