//go:build !tinygo

package monitor

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"rtoscore/internal/buildinfo"
)

// Game adapts a Monitor to ebiten.Game, following the teacher's
// hostGame (hal/host_window.go)'s Update/Draw split, so the scheduler
// is visually inspectable without any hardware.
type Game struct {
	monitor *Monitor
	onTick  func()

	img   *image.RGBA
	fbImg *ebiten.Image
}

// NewGame wraps m, calling onTick once per frame as the host's
// stand-in for a hardware tick interrupt.
func NewGame(m *Monitor, onTick func()) *Game {
	return &Game{monitor: m, onTick: onTick}
}

func (g *Game) Update() error {
	if g.onTick != nil {
		g.onTick()
	}
	g.monitor.Render()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	w, h := g.monitor.Size()
	if g.img == nil || g.img.Bounds().Dx() != w || g.img.Bounds().Dy() != h {
		g.img = image.NewRGBA(image.Rect(0, 0, w, h))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(w, h)
	}
	copy(g.img.Pix, g.monitor.Pixels())
	g.fbImg.ReplacePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.monitor.Size()
}

// RunWindow opens a desktop window showing m, calling onTick once per
// frame. It blocks until the window closes.
func RunWindow(title string, m *Monitor, onTick func()) error {
	g := NewGame(m, onTick)
	w, h := m.Size()
	ebiten.SetWindowTitle(title + " (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(w*2, h*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}
