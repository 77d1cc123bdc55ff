// Package monitor renders a live kernel.Scheduler snapshot as a debug
// display: a per-thread table (name, base/effective priority, state)
// plus a scrollback of the scheduler's own trace log. It is the debug
// monitor SPEC_FULL.md §3 describes, built the same way the teacher
// renders its own on-device UI: a software framebuffer implementing
// tinygo.org/x/drivers.Displayer, drawn onto with tinyfont, with a
// vendored tinyterm.Terminal handling the scrolling log underneath.
package monitor

import (
	"fmt"
	"image/color"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyterm"

	"rtoscore/kernel"
)

// Width and Height are the monitor's fixed framebuffer dimensions.
const (
	Width  int16 = 320
	Height int16 = 240
)

const (
	headerRows = 1
	rowHeight  = int16(10)
	logTop     = rowHeight * 10
)

var (
	colorBG      = color.RGBA{A: 0xff}
	colorFG      = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	colorDim     = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	colorRunning = color.RGBA{R: 0x4a, G: 0xdf, B: 0x6a, A: 0xff}
	colorBlocked = color.RGBA{R: 0xdf, G: 0x8a, B: 0x4a, A: 0xff}
)

// framebuffer is a software pixel buffer implementing
// tinygo.org/x/drivers.Displayer plus the small extra surface
// tinyterm.Displayer needs (FillRectangle/SetScroll/SetRotation),
// mirroring sparkos/services/term/display.go and
// sparkos/tasks/gpioscope/render.go's fbDisplay.
type framebuffer struct {
	mu  sync.Mutex
	w   int16
	h   int16
	pix []color.RGBA
}

func newFramebuffer(w, h int16) *framebuffer {
	return &framebuffer{w: w, h: h, pix: make([]color.RGBA, int(w)*int(h))}
}

func (f *framebuffer) Size() (int16, int16) { return f.w, f.h }

func (f *framebuffer) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h {
		return
	}
	f.mu.Lock()
	f.pix[int(y)*int(f.w)+int(x)] = c
	f.mu.Unlock()
}

func (f *framebuffer) Display() error { return nil }

func (f *framebuffer) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0, y0 := clamp16(x, 0, f.w), clamp16(y, 0, f.h)
	x1, y1 := clamp16(x+width, 0, f.w), clamp16(y+height, 0, f.h)
	f.mu.Lock()
	defer f.mu.Unlock()
	for yy := y0; yy < y1; yy++ {
		rowOff := int(yy) * int(f.w)
		for xx := x0; xx < x1; xx++ {
			f.pix[rowOff+int(xx)] = c
		}
	}
	return nil
}

func (f *framebuffer) SetScroll(line int16) {}

func (f *framebuffer) SetRotation(r drivers.Rotation) error { return nil }

func clamp16(v, lo, hi int16) int16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// snapshotRGBA copies the current pixel buffer out as packed RGBA
// bytes, 4 bytes per pixel, row-major -- the shape a host renderer
// (ebiten.Image.WritePixels) expects.
func (f *framebuffer) snapshotRGBA() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.pix)*4)
	for i, c := range f.pix {
		out[i*4+0] = c.R
		out[i*4+1] = c.G
		out[i*4+2] = c.B
		out[i*4+3] = c.A
	}
	return out
}

// Monitor is the shared, build-tag-independent rendering core: both
// the host (ebiten window) and bare-metal (real Displayer) builds just
// push pixels from the same framebuffer.
type Monitor struct {
	sched *kernel.Scheduler
	fb    *framebuffer
	term  *tinyterm.Terminal
}

// New creates a Monitor over sched. Call WriteLineString (or pass the
// Monitor itself to Scheduler.SetLogger) to feed the scrollback log,
// and Render before each Pixels() to refresh the thread table.
func New(sched *kernel.Scheduler) *Monitor {
	fb := newFramebuffer(Width, Height)
	term := tinyterm.NewTerminal(clipBelow{fb, logTop})
	term.Configure(&tinyterm.Config{
		Font:       &tinyfont.TomThumb,
		FontHeight: 8,
		FontOffset: 6,
	})
	return &Monitor{sched: sched, fb: fb, term: term}
}

// clipBelow restricts a tinyterm.Displayer's drawable region to the
// area below the thread table, so the scrollback log never overwrites
// the live header.
type clipBelow struct {
	*framebuffer
	yOffset int16
}

func (c clipBelow) Size() (int16, int16) {
	_, h := c.framebuffer.Size()
	return Width, h - c.yOffset
}

func (c clipBelow) SetPixel(x, y int16, col color.RGBA) {
	c.framebuffer.SetPixel(x, y+c.yOffset, col)
}

func (c clipBelow) FillRectangle(x, y, width, height int16, col color.RGBA) error {
	return c.framebuffer.FillRectangle(x, y+c.yOffset, width, height, col)
}

// WriteLineString implements kernel.Logger so a Monitor can be handed
// directly to Scheduler.SetLogger.
func (m *Monitor) WriteLineString(s string) {
	fmt.Fprintln(m.term, s)
}

// Render redraws the thread table at the top of the framebuffer.
func (m *Monitor) Render() {
	snap := m.sched.Snapshot()
	m.fb.FillRectangle(0, 0, Width, rowHeight*int16(len(snap)+headerRows), colorBG)
	tinyfont.WriteLine(m.fb, &tinyfont.TomThumb, 2, rowHeight-2, "thread        base eff state", colorDim)
	for i, t := range snap {
		c := colorFG
		switch t.State {
		case kernel.StateRunnable:
			c = colorRunning
		case kernel.StateBlockedOnSemaphore, kernel.StateBlockedOnMutex, kernel.StateBlockedOnConditionVariable, kernel.StateWaitingForSignal:
			c = colorBlocked
		}
		y := rowHeight*int16(i+1+headerRows) - 2
		line := fmt.Sprintf("%-12s  %3d  %3d %s", t.Name, t.BasePriority, t.EffectivePriority, t.State)
		tinyfont.WriteLine(m.fb, &tinyfont.TomThumb, 2, y, line, c)
	}
}

// Pixels returns the current framebuffer contents as packed RGBA
// bytes.
func (m *Monitor) Pixels() []byte { return m.fb.snapshotRGBA() }

// Size returns the framebuffer's pixel dimensions as ints, convenient
// for image.Rect-style callers.
func (m *Monitor) Size() (int, int) { return int(Width), int(Height) }

// At returns the color of a single pixel, for callers (the bare-metal
// blit in monitor_tinygo.go) that push pixels one at a time onto a
// real display driver instead of taking a packed byte slice.
func (m *Monitor) At(x, y int16) color.RGBA {
	if x < 0 || y < 0 || x >= m.fb.w || y >= m.fb.h {
		return colorBG
	}
	m.fb.mu.Lock()
	defer m.fb.mu.Unlock()
	return m.fb.pix[int(y)*int(m.fb.w)+int(x)]
}
