// Package canvas turns pointer and touch input into edits of a sample buffer
// and draws buffers as waveform images.
package canvas

import (
	"math"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/signal"
)

// Primary is the pointer button mask for the main mouse button.
const Primary = 1

// Viewport is the drawable canvas size in pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (v Viewport) valid() bool {
	return v.Width > 0 && v.Height > 0
}

// Pointer is a position relative to the canvas origin (top left).
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Touch is a touch point in page coordinates.
type Touch struct {
	PageX float64 `json:"page_x"`
	PageY float64 `json:"page_y"`
}

// Rect is the canvas bounding box in page coordinates.
type Rect struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Relative translates a touch into canvas coordinates.
func (r Rect) Relative(t Touch) Pointer {
	return Pointer{X: t.PageX - r.Left, Y: t.PageY - r.Top}
}

type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// StrokePoint is the last sample written by the current stroke.
type StrokePoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Editor is the idle/dragging state machine behind freehand drawing.
//
// Each accepted edit writes the pointer's value at its sample index. While a
// stroke is in progress every index between the previous and the current one
// also receives the current value, so fast pointer moves leave no gaps.
// Lifting or leaving ends the stroke.
//
// Edits never mutate the buffer they are given: a changed buffer is returned
// as a new value so callers can tell edits apart by reference.
type Editor struct {
	size         int
	defaultValue float64
	viewport     Viewport
	state        State
	last         *StrokePoint
}

func NewEditor(cfg config.SignalConfig, viewport Viewport) *Editor {
	return &Editor{
		size:         cfg.Size,
		defaultValue: cfg.DefaultValue,
		viewport:     viewport,
	}
}

func (e *Editor) State() State {
	return e.state
}

// Stroke returns the last stroke point, or nil between strokes.
func (e *Editor) Stroke() *StrokePoint {
	if e.last == nil {
		return nil
	}
	p := *e.last
	return &p
}

func (e *Editor) Viewport() Viewport {
	return e.viewport
}

// Resize changes the canvas size used to map pointer positions.
func (e *Editor) Resize(v Viewport) {
	e.viewport = v
}

// PointerDown starts a stroke and applies an edit at p.
func (e *Editor) PointerDown(buf *signal.Buffer, p Pointer) (*signal.Buffer, bool) {
	e.state = Dragging
	return e.apply(buf, p)
}

// PointerMove applies an edit only while the primary button is held.
func (e *Editor) PointerMove(buf *signal.Buffer, p Pointer, buttons int) (*signal.Buffer, bool) {
	if buttons != Primary {
		return buf, false
	}
	e.state = Dragging
	return e.apply(buf, p)
}

// PointerUp ends the stroke.
func (e *Editor) PointerUp() {
	e.reset()
}

// PointerLeave ends the stroke.
func (e *Editor) PointerLeave() {
	e.reset()
}

func (e *Editor) TouchStart(buf *signal.Buffer, t Touch, r Rect) (*signal.Buffer, bool) {
	return e.PointerDown(buf, r.Relative(t))
}

// TouchMove behaves like a pointer move with the primary button held.
func (e *Editor) TouchMove(buf *signal.Buffer, t Touch, r Rect) (*signal.Buffer, bool) {
	return e.PointerMove(buf, r.Relative(t), Primary)
}

func (e *Editor) TouchEnd() {
	e.reset()
}

func (e *Editor) reset() {
	e.state = Idle
	e.last = nil
}

// Locate maps a canvas position to a sample index and value. The index is
// truncated and may fall outside the buffer; the value is clamped to [0, 1].
func (e *Editor) Locate(p Pointer) (int, float64) {
	x := signal.MapRange(p.X, 0, e.viewport.Width, 0, float64(e.size))
	y := signal.MapRange(p.Y, e.viewport.Height, 0, 0, 1)
	return int(math.Trunc(x)), math.Max(0, math.Min(1, y))
}

func (e *Editor) apply(buf *signal.Buffer, p Pointer) (*signal.Buffer, bool) {
	if !e.viewport.valid() {
		return buf, false
	}
	x, y := e.Locate(p)
	if x < 0 || x > e.size-1 {
		return buf, false
	}

	var next *signal.Buffer
	if buf == nil {
		next = signal.NewBuffer(e.size, e.defaultValue)
	} else {
		next = buf.Clone()
	}

	// indices were validated above, so the writes cannot fail
	if e.last != nil {
		_ = next.FillRange(e.last.Index, x, y)
	} else {
		_ = next.Set(x, y)
	}

	e.last = &StrokePoint{Index: x, Value: y}
	return next, true
}
