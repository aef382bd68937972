package overlay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/msgcat"
	"github.com/park285/winchance-agent/internal/winchance"
)

type recorder struct{ frames []Frame }

func (r *recorder) Draw(f Frame) { r.frames = append(r.frames, f) }

func (r *recorder) last() Frame { return r.frames[len(r.frames)-1] }

type scriptedInput struct {
	st InputState
	ok bool
}

func (s *scriptedInput) Input() (InputState, bool) { return s.st, s.ok }

func newWindow(t *testing.T) (*Window, *recorder, *scriptedInput, *eventloop.Manual, string) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	path := filepath.Join(t.TempDir(), "mod_winchance.json")
	r := &recorder{}
	in := &scriptedInput{}
	sched := eventloop.NewManual()
	return NewWindow(r, in, sched, cat, path, nil), r, in, sched, path
}

func TestColorBands(t *testing.T) {
	cases := map[float64]RGBA{100: Green, 60: Green, 59.9: Gold, 45: Gold, 44.9: Red, 0: Red}
	for chance, want := range cases {
		if got := ColorFor(chance); got != want {
			t.Fatalf("ColorFor(%v)=%v want %v", chance, got, want)
		}
	}
}

func TestPositionLoadResetsAxesIndependently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_winchance.json")
	if got := LoadPosition(path, nil); got != DefaultPosition() {
		t.Fatalf("missing file=%+v", got)
	}
	if err := os.WriteFile(path, []byte(`{"posX": 1.7, "posY": 0.4}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadPosition(path, nil); got != (Position{X: DefaultX, Y: 0.4}) {
		t.Fatalf("reset x=%+v", got)
	}
	if err := os.WriteFile(path, []byte(`{"posX": 0.2, "posY": -0.1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadPosition(path, nil); got != (Position{X: 0.2, Y: DefaultY}) {
		t.Fatalf("reset y=%+v", got)
	}
	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := LoadPosition(path, nil); got != DefaultPosition() {
		t.Fatalf("corrupt file=%+v", got)
	}
}

func TestShowEstimateRendersTwoLines(t *testing.T) {
	w, r, _, _, _ := newWindow(t)
	w.Show()
	w.ShowEstimate(winchance.Result{Chance: 63.24, AllyAvg: 5684, EnemyAvg: 5160})

	f := r.last()
	if !f.Visible || f.X != DefaultX || f.Y != DefaultY || len(f.Lines) != 2 {
		t.Fatalf("frame=%+v", f)
	}
	if f.Lines[0].Text != "Win Chance: 63.2%" || f.Lines[0].Color != Green {
		t.Fatalf("line 1=%+v", f.Lines[0])
	}
	if f.Lines[1].Text != "Team WGR: 5684 | Enemy WGR: 5160" || f.Lines[1].OffsetY != secondLineGap {
		t.Fatalf("line 2=%+v", f.Lines[1])
	}

	w.Hide()
	if r.last().Visible {
		t.Fatalf("hide must clear the label")
	}
}

func TestEstimateAfterHideIsNotDrawn(t *testing.T) {
	w, r, _, _, _ := newWindow(t)
	w.ShowEstimate(winchance.Result{Chance: 40})
	w.ShowNoData()
	if len(r.frames) != 0 {
		t.Fatalf("hidden window drew %d frames", len(r.frames))
	}
}

func TestCtrlDragMovesAndSavesOnRelease(t *testing.T) {
	w, r, in, sched, path := newWindow(t)
	w.Show()

	in.ok = true
	in.st = InputState{CursorX: 0.5, CursorY: 0.5, Ctrl: true, LeftMouse: true}
	sched.Advance(DragInterval)
	in.st = InputState{CursorX: 0.4, CursorY: 0.6, Ctrl: true, LeftMouse: true}
	sched.Advance(DragInterval)

	if got := r.last(); got.X < 0.649 || got.X > 0.651 || got.Y < 0.149 || got.Y > 0.151 {
		t.Fatalf("dragged frame=%+v", got)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("position saved before release")
	}

	in.st = InputState{CursorX: 0.4, CursorY: 0.6}
	sched.Advance(DragInterval)
	saved := LoadPosition(path, nil)
	if saved.X < 0.649 || saved.X > 0.651 || saved.Y < 0.149 || saved.Y > 0.151 {
		t.Fatalf("saved=%+v", saved)
	}
}

func TestMouseWithoutCtrlDoesNotDrag(t *testing.T) {
	w, r, in, sched, _ := newWindow(t)
	w.Show()
	n := len(r.frames)
	in.ok = true
	in.st = InputState{CursorX: 0.1, CursorY: 0.1, LeftMouse: true}
	sched.Advance(DragInterval)
	in.st = InputState{CursorX: 0.3, CursorY: 0.3, LeftMouse: true}
	sched.Advance(DragInterval)
	if len(r.frames) != n || w.Position() != DefaultPosition() {
		t.Fatalf("moved without ctrl: %+v", w.Position())
	}
}

func TestHideStopsDragLoop(t *testing.T) {
	w, _, _, sched, _ := newWindow(t)
	w.Show()
	if sched.Timers() != 1 {
		t.Fatalf("drag loop not scheduled")
	}
	sched.Advance(time.Second)
	if sched.Timers() != 1 {
		t.Fatalf("drag loop must keep exactly one timer, got %d", sched.Timers())
	}
	w.Hide()
	if sched.Timers() != 0 {
		t.Fatalf("drag loop still scheduled after hide")
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, _ := msgcat.New("")
	in := &scriptedInput{ok: true}
	sched := eventloop.NewManual()
	w := NewWindow(&recorder{}, in, sched, cat, filepath.Join(blocker, "mod_winchance.json"), nil)
	w.Show()
	in.st = InputState{CursorX: 0.5, CursorY: 0.5, Ctrl: true, LeftMouse: true}
	sched.Advance(DragInterval)
	in.st = InputState{}
	sched.Advance(DragInterval)
	if !w.Visible() {
		t.Fatalf("window must survive a failed save")
	}
}
