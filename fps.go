package diorama

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// fpsRefresh is how often the readout text is rebuilt, in seconds.
const fpsRefresh = 0.5

var colorFPSBack = color.RGBA{0, 0, 0, 128}

// fpsMeter is the FPS/TPS readout shown in debug mode.
type fpsMeter struct {
	elapsed float64
	text    string
}

func (m *fpsMeter) update(dt float64) {
	m.elapsed += dt
	if m.text != "" && m.elapsed < fpsRefresh {
		return
	}
	m.elapsed = 0
	m.text = fmt.Sprintf("FPS: %.1f\nTPS: %.1f", ebiten.ActualFPS(), ebiten.ActualTPS())
}

// draw puts the readout in the top-right corner of r.
func (m *fpsMeter) draw(dst *ebiten.Image, r Rect) {
	if m.text == "" {
		return
	}
	const w, h = 100, 32
	x := float32(r.X+r.Width) - w - 4
	y := float32(r.Y) + 4
	vector.DrawFilledRect(dst, x, y, w, h, colorFPSBack, false)
	ebitenutil.DebugPrintAt(dst, m.text, int(x)+4, int(y))
}
