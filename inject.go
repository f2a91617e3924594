package diorama

type syntheticKind uint8

const (
	syntheticPointer syntheticKind = iota
	syntheticKey
	syntheticWheel
)

// syntheticEvent is one injected input event. Screen coordinates are used,
// matching what a screenshot shows, and routed exactly like real input.
type syntheticEvent struct {
	kind             syntheticKind
	screenX, screenY float64
	pressed          bool
	button           MouseButton
	mods             KeyModifiers
	key              Key
	dx, dy           float64
}

// InjectPress queues a left-button press at the given screen coordinates.
// The event is consumed on the next frame.
func (e *Editor) InjectPress(x, y float64) {
	e.InjectPressMods(x, y, MouseButtonLeft, 0)
}

// InjectPressMods queues a press with an explicit button and modifiers.
func (e *Editor) InjectPressMods(x, y float64, button MouseButton, mods KeyModifiers) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{
		screenX: x, screenY: y,
		pressed: true,
		button:  button,
		mods:    mods,
	})
}

// InjectMove queues a pointer move with the button held. Use it between
// InjectPress and InjectRelease to simulate a drag.
func (e *Editor) InjectMove(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{
		screenX: x, screenY: y,
		pressed: true,
		button:  MouseButtonLeft,
	})
}

// InjectRelease queues a pointer release at the given screen coordinates.
func (e *Editor) InjectRelease(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{
		screenX: x, screenY: y,
		pressed: false,
		button:  MouseButtonLeft,
	})
}

// InjectClick queues a press followed by a release at the same point.
// Consumes two frames.
func (e *Editor) InjectClick(x, y float64) {
	e.InjectPress(x, y)
	e.InjectRelease(x, y)
}

// InjectDrag queues a full drag: press at (fromX, fromY), frames-2 evenly
// spaced moves, and release at (toX, toY). Minimum frames is 2.
func (e *Editor) InjectDrag(fromX, fromY, toX, toY float64, frames int) {
	if frames < 2 {
		frames = 2
	}
	e.InjectPress(fromX, fromY)
	steps := frames - 2
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps+1)
		x := fromX + (toX-fromX)*t
		y := fromY + (toY-fromY)*t
		e.InjectMove(x, y)
	}
	e.InjectRelease(toX, toY)
}

// InjectKey queues a key press.
func (e *Editor) InjectKey(key Key, mods KeyModifiers) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticKey, key: key, mods: mods})
}

// InjectWheel queues a wheel turn over the given screen point.
func (e *Editor) InjectWheel(x, y, dx, dy float64, mods KeyModifiers) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{
		kind:    syntheticWheel,
		screenX: x, screenY: y,
		dx: dx, dy: dy,
		mods: mods,
	})
}

// processInjectedInput pops one queued event and routes it. It reports
// whether an event was consumed, in which case real input is skipped.
func (e *Editor) processInjectedInput() bool {
	if len(e.injectQueue) == 0 {
		return false
	}
	evt := e.injectQueue[0]
	copy(e.injectQueue, e.injectQueue[1:])
	e.injectQueue = e.injectQueue[:len(e.injectQueue)-1]

	switch evt.kind {
	case syntheticKey:
		e.processKey(evt.key, evt.mods)
	case syntheticWheel:
		e.processWheel(evt.screenX, evt.screenY, evt.dx, evt.dy, evt.mods)
	default:
		e.processPointer(evt.screenX, evt.screenY, evt.pressed, evt.button, evt.mods)
	}
	return true
}
