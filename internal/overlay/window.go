// Package overlay drives the in-battle win-chance label through a host
// renderer, including Ctrl+LMB dragging.
package overlay

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/msgcat"
	"github.com/park285/winchance-agent/internal/winchance"
)

// DragInterval is how often input is sampled while the label is up.
const DragInterval = 50 * time.Millisecond

const (
	fontMedium    = "default_medium.font"
	fontSmall     = "default_small.font"
	secondLineGap = 0.025
)

type RGBA struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

var (
	Green = RGBA{50, 205, 50, 255}
	Gold  = RGBA{255, 215, 0, 255}
	Red   = RGBA{220, 20, 60, 255}
	White = RGBA{255, 255, 255, 255}
)

// ColorFor picks the band: >=60 green, >=45 gold, else red.
func ColorFor(chance float64) RGBA {
	switch {
	case chance >= 60:
		return Green
	case chance >= 45:
		return Gold
	default:
		return Red
	}
}

type Line struct {
	Text    string  `json:"text"`
	Font    string  `json:"font"`
	Color   RGBA    `json:"color"`
	OffsetY float64 `json:"offsetY"`
}

// Frame is the full label state; each Draw replaces the previous one.
type Frame struct {
	Visible bool    `json:"visible"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Lines   []Line  `json:"lines,omitempty"`
}

// Renderer must not block; the host bridge sends frames on its own.
type Renderer interface {
	Draw(f Frame)
}

type InputState struct {
	CursorX   float64 `json:"cursorX"`
	CursorY   float64 `json:"cursorY"`
	Ctrl      bool    `json:"ctrl"`
	LeftMouse bool    `json:"leftMouse"`
}

// InputSource returns the latest known input; ok is false when none has
// arrived yet.
type InputSource interface {
	Input() (InputState, bool)
}

// Window is the label. All methods run on the event loop.
type Window struct {
	renderer Renderer
	input    InputSource
	sched    eventloop.Scheduler
	cat      *msgcat.Catalog
	path     string
	logger   *zap.Logger

	pos     Position
	lines   []Line
	visible bool

	active   bool
	timer    eventloop.Stopper
	dragging bool
	last     [2]float64
}

func NewWindow(r Renderer, in InputSource, sched eventloop.Scheduler, cat *msgcat.Catalog, path string, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{
		renderer: r,
		input:    in,
		sched:    sched,
		cat:      cat,
		path:     path,
		logger:   logger,
		pos:      LoadPosition(path, logger),
	}
}

func (w *Window) Position() Position { return w.pos }

func (w *Window) Visible() bool { return w.visible }

// Show puts the label up with a placeholder and starts the drag loop.
func (w *Window) Show() {
	w.pos = LoadPosition(w.path, w.logger)
	w.visible = true
	w.lines = []Line{{Text: w.cat.Text("overlay.calculating", nil, "Win Chance: calculating..."), Font: fontMedium, Color: White}}
	w.draw()
	w.startDrag()
	w.logger.Info("overlay_shown", zap.Float64("x", w.pos.X), zap.Float64("y", w.pos.Y))
}

func (w *Window) ShowEstimate(res winchance.Result) {
	w.lines = EstimateLines(w.cat, res)
	if !w.visible {
		return
	}
	w.draw()
}

func (w *Window) ShowNoData() {
	w.lines = []Line{{Text: w.cat.Text("overlay.no_data", nil, "Win Chance: no data"), Font: fontMedium, Color: White}}
	if !w.visible {
		return
	}
	w.draw()
}

// Hide stops dragging, saving a drag still in progress, and clears the label.
func (w *Window) Hide() {
	w.stopDrag()
	if w.dragging {
		w.dragging = false
		w.save()
	}
	if !w.visible {
		return
	}
	w.visible = false
	w.lines = nil
	w.renderer.Draw(Frame{Visible: false})
	w.logger.Info("overlay_hidden")
}

// EstimateLines renders the two label lines for res.
func EstimateLines(cat *msgcat.Catalog, res winchance.Result) []Line {
	chance := cat.Text("overlay.chance", map[string]any{"Chance": res.Chance}, fmt.Sprintf("Win Chance: %.1f%%", res.Chance))
	ratings := cat.Text("overlay.ratings", map[string]any{"Ally": res.AllyAvg, "Enemy": res.EnemyAvg},
		fmt.Sprintf("Team WGR: %.0f | Enemy WGR: %.0f", res.AllyAvg, res.EnemyAvg))
	return []Line{
		{Text: chance, Font: fontMedium, Color: ColorFor(res.Chance)},
		{Text: ratings, Font: fontSmall, Color: White, OffsetY: secondLineGap},
	}
}

func (w *Window) draw() {
	w.renderer.Draw(Frame{Visible: true, X: w.pos.X, Y: w.pos.Y, Lines: w.lines})
}

func (w *Window) startDrag() {
	if w.active || w.input == nil {
		return
	}
	w.active = true
	w.timer = w.sched.After(DragInterval, w.tick)
}

func (w *Window) stopDrag() {
	w.active = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Window) tick() {
	w.timer = nil
	if !w.active {
		return
	}
	if st, ok := w.input.Input(); ok {
		w.handleInput(st)
	}
	if w.active {
		w.timer = w.sched.After(DragInterval, w.tick)
	}
}

func (w *Window) handleInput(st InputState) {
	if st.Ctrl && st.LeftMouse {
		if !w.dragging {
			w.dragging = true
			w.last = [2]float64{st.CursorX, st.CursorY}
			return
		}
		dx, dy := st.CursorX-w.last[0], st.CursorY-w.last[1]
		w.last = [2]float64{st.CursorX, st.CursorY}
		if dx == 0 && dy == 0 {
			return
		}
		w.pos.X += dx
		w.pos.Y += dy
		if w.visible {
			w.draw()
		}
		return
	}
	if w.dragging {
		w.dragging = false
		w.save()
	}
}

func (w *Window) save() {
	if err := SavePosition(w.path, w.pos); err != nil {
		w.logger.Warn("overlay_position_save_failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("overlay_position_saved", zap.Float64("x", w.pos.X), zap.Float64("y", w.pos.Y))
}
