//go:build tinygo && baremetal

package monitor

import "image/color"

// Displayer is the minimal real-display surface RunOnDisplay blits
// onto: any tinygo.org/x/drivers display driver satisfies this shape
// already (Size/SetPixel/Display), so no adapter is needed to drive
// real hardware with the same Monitor used on host.
type Displayer interface {
	Size() (x, y int16)
	SetPixel(x, y int16, c color.RGBA)
	Display() error
}

// RunOnDisplay blits m's framebuffer onto disp and calls onTick, in a
// loop that never returns -- the bare-metal board's main loop, driven
// directly instead of through boardsim's host-only errgroup
// supervision.
func RunOnDisplay(disp Displayer, m *Monitor, onTick func()) {
	w, h := m.Size()
	for {
		m.Render()
		for y := int16(0); y < int16(h); y++ {
			for x := int16(0); x < int16(w); x++ {
				disp.SetPixel(x, y, m.At(x, y))
			}
		}
		disp.Display()
		if onTick != nil {
			onTick()
		}
	}
}
