//go:build tinygo && baremetal

package main

import (
	"context"

	"rtoscore/hal"
	"rtoscore/internal/boardsim"
)

func main() {
	h := hal.New()
	board := boardsim.New(h)
	demoThreads(board)

	if err := board.Run(context.Background()); err != nil {
		panic(err)
	}
}
