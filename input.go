package diorama

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// pane is the editor region a pointer gesture belongs to.
type pane uint8

const (
	paneNone pane = iota
	paneCanvas
	paneTimeline
)

// pointerState tracks the mouse between frames. A gesture stays with the
// pane it started in until release.
type pointerState struct {
	down   bool
	button MouseButton
	pane   pane
	lastX  float64
	lastY  float64
}

var editorKeys = map[ebiten.Key]Key{
	ebiten.KeyArrowLeft:      KeyLeft,
	ebiten.KeyArrowRight:     KeyRight,
	ebiten.KeyArrowUp:        KeyUp,
	ebiten.KeyArrowDown:      KeyDown,
	ebiten.KeyEqual:          KeyPlus,
	ebiten.KeyNumpadAdd:      KeyPlus,
	ebiten.KeyMinus:          KeyMinus,
	ebiten.KeyNumpadSubtract: KeyMinus,
	ebiten.KeySpace:          KeySpace,
	ebiten.KeyEscape:         KeyEscape,
	ebiten.KeyDelete:         KeyDelete,
	ebiten.KeyBackspace:      KeyDelete,
	ebiten.KeyZ:              KeyZ,
	ebiten.KeyY:              KeyY,
	ebiten.KeyR:              KeyR,
	ebiten.KeyK:              KeyK,
}

// readModifiers reads the current keyboard modifier state.
func readModifiers() KeyModifiers {
	var mods KeyModifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) || ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		mods |= ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) || ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight) {
		mods |= ModCtrl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) || ebiten.IsKeyPressed(ebiten.KeyAltLeft) || ebiten.IsKeyPressed(ebiten.KeyAltRight) {
		mods |= ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) || ebiten.IsKeyPressed(ebiten.KeyMetaLeft) || ebiten.IsKeyPressed(ebiten.KeyMetaRight) {
		mods |= ModMeta
	}
	return mods
}

// processInput feeds one frame of input to the controllers. Injected
// events take precedence; real input is skipped on frames that consume one.
func (e *Editor) processInput() {
	if e.processInjectedInput() {
		return
	}
	mods := readModifiers()
	e.processMousePointer(mods)
	e.processKeys(mods)
	if dx, dy := ebiten.Wheel(); dx != 0 || dy != 0 {
		mx, my := ebiten.CursorPosition()
		e.processWheel(float64(mx), float64(my), dx, dy, mods)
	}
}

func (e *Editor) processMousePointer(mods KeyModifiers) {
	mx, my := ebiten.CursorPosition()
	var pressed bool
	var button MouseButton
	left := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	right := ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight)
	middle := ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle)
	if left || right || middle {
		pressed = true
		if left {
			button = MouseButtonLeft
		} else if right {
			button = MouseButtonRight
		} else {
			button = MouseButtonMiddle
		}
	}
	e.processPointer(float64(mx), float64(my), pressed, button, mods)
}

func (e *Editor) processKeys(mods KeyModifiers) {
	var buf [8]ebiten.Key
	for _, k := range inpututil.AppendJustPressedKeys(buf[:0]) {
		if key, ok := editorKeys[k]; ok {
			e.processKey(key, mods)
		}
	}
}

func (e *Editor) paneAt(x, y float64) pane {
	switch {
	case e.canvas.Contains(x, y):
		return paneCanvas
	case e.timeline.Bounds().Contains(x, y):
		return paneTimeline
	}
	return paneNone
}

// processPointer runs the press/move/release transitions for screen point
// (sx, sy). Coordinates are made local to the pane the gesture started in.
func (e *Editor) processPointer(sx, sy float64, pressed bool, button MouseButton, mods KeyModifiers) {
	p := &e.pointer
	tb := e.timeline.Bounds()
	cx, cy := sx-e.canvas.X, sy-e.canvas.Y
	tx, ty := sx-tb.X, sy-tb.Y

	switch {
	case pressed && !p.down:
		p.down = true
		p.button = button
		p.pane = e.paneAt(sx, sy)
		switch p.pane {
		case paneCanvas:
			e.timeline.CloseMenu()
			e.interaction.PointerDown(cx, cy, button, mods)
		case paneTimeline:
			e.timeline.PointerDown(tx, ty, button, mods)
		}
	case pressed && p.down:
		if sx == p.lastX && sy == p.lastY {
			break
		}
		switch p.pane {
		case paneCanvas:
			e.interaction.PointerMove(cx, cy)
		case paneTimeline:
			e.timeline.PointerMove(tx, ty)
		}
	case !pressed && p.down:
		switch p.pane {
		case paneCanvas:
			e.interaction.PointerUp(cx, cy)
		case paneTimeline:
			e.timeline.PointerUp(tx, ty)
		}
		p.down = false
		p.pane = paneNone
	}
	p.lastX, p.lastY = sx, sy
}

// processKey routes a key press. Escape closes timeline state first; R and
// K answer a held save conflict.
func (e *Editor) processKey(key Key, mods KeyModifiers) {
	if key == KeyEscape && e.timeline.Cancel() {
		return
	}
	if (key == KeyR || key == KeyK) && mods == 0 && e.session != nil && e.session.Conflict() != nil {
		if err := e.ResolveConflict(key == KeyR); err != nil {
			e.raise(Notice{Level: NoticeError, Message: "failed to reload scene", Err: err})
		}
		return
	}
	e.interaction.KeyDown(key, mods)
}

func (e *Editor) processWheel(sx, sy, dx, dy float64, mods KeyModifiers) {
	if e.paneAt(sx, sy) != paneTimeline {
		return
	}
	e.timeline.Wheel(sx-e.timeline.Bounds().X, dx, dy, mods)
}
