//go:build !tinygo

package main

import (
	"context"
	"os"
	"os/signal"

	"rtoscore/hal"
	"rtoscore/internal/boardsim"
	"rtoscore/internal/monitor"
)

func main() {
	seconds := parseFlags()

	h := hal.New()
	board := boardsim.New(h)
	demoThreads(board)

	m := monitor.New(board.Sched)
	board.Sched.SetLogger(m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := durationOrForever(seconds); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	go func() {
		if err := board.Run(ctx); err != nil && ctx.Err() == nil {
			fatal(err)
		}
	}()

	if err := monitor.RunWindow("rtosmon", m, nil); err != nil && ctx.Err() == nil {
		fatal(err)
	}
}
