// Package editorview implements the logical/visual cursor bridge over an
// EditBuffer and its TextBufferView (spec §3 "EditorView", §4.6): it
// translates (row, col) cursor positions into wrapped virtual-line
// coordinates and back, keeps the cursor scrolled into view, and offers
// mutating wrappers that always leave the viewport positioned over the
// cursor afterward.
//
// Grounded on the teacher's diffviewer.VirtualViewport scroll-clamping
// (EnsureVisible, clampScrollOffset, maxScrollOffset): this package owns the
// same Y-offset-into-a-line-count state machine, generalized from a
// read-only diff viewport to one that follows a moving cursor instead of an
// explicit scroll command.
package editorview

import (
	"math"

	"github.com/zjrosen/textengine/editbuffer"
	"github.com/zjrosen/textengine/textbufferview"
)

// EditorView couples an EditBuffer (cursor + undo/redo) to a
// TextBufferView (reflow + viewport) and keeps them in sync.
type EditorView struct {
	eb   *editbuffer.EditBuffer
	view *textbufferview.TextBufferView

	vp textbufferview.Viewport

	scrollMargin float64

	desiredVisualCol int
	verticalRun      bool
}

// New couples eb and view. view must already be registered against eb's
// underlying buffer.
func New(eb *editbuffer.EditBuffer, view *textbufferview.TextBufferView) *EditorView {
	return &EditorView{eb: eb, view: view}
}

// EditBuffer exposes the wrapped EditBuffer.
func (ev *EditorView) EditBuffer() *editbuffer.EditBuffer { return ev.eb }

// View exposes the wrapped TextBufferView.
func (ev *EditorView) View() *textbufferview.TextBufferView { return ev.view }

// SetSize sets the viewport dimensions, clamping the scroll position and
// re-publishing the viewport to the underlying view.
func (ev *EditorView) SetSize(width, height int) {
	ev.vp.Width, ev.vp.Height = width, height
	ev.clampScroll()
	ev.pushViewport()
}

// SetScrollMargin sets the fraction of the viewport height/width kept
// between the cursor and each edge, clamped to [0, 0.5] (spec §3
// EditorView "scroll_margin").
func (ev *EditorView) SetScrollMargin(m float64) {
	if m < 0 {
		m = 0
	}
	if m > 0.5 {
		m = 0.5
	}
	ev.scrollMargin = m
}

func (ev *EditorView) pushViewport() {
	vp := ev.vp
	ev.view.SetViewport(&vp)
}

// marginCells converts a [0, 0.5] fraction of size into a whole cell count,
// rounded up, with a floor of one cell (spec §4.6 "ensure_cursor_visible").
func marginCells(margin float64, size int) int {
	if size <= 0 {
		return 0
	}
	m := int(math.Ceil(margin * float64(size)))
	if m < 1 {
		m = 1
	}
	if m > size {
		m = size
	}
	return m
}

func (ev *EditorView) maxScrollOffset() int {
	total := ev.view.VirtualLineCount()
	if total <= ev.vp.Height {
		return 0
	}
	return total - ev.vp.Height
}

// maxScrollOffsetX returns the largest viewport.x, nonzero only when
// wrapping is off (spec §4.6 "Horizontal scroll applies only when wrapping
// is off").
func (ev *EditorView) maxScrollOffsetX() int {
	if ev.view.WrapMode() != textbufferview.WrapNone || ev.vp.Width <= 0 {
		return 0
	}
	total := ev.view.CachedMaxWidth()
	if total <= ev.vp.Width {
		return 0
	}
	return total - ev.vp.Width
}

func (ev *EditorView) clampScroll() {
	maxY := ev.maxScrollOffset()
	if ev.vp.Y < 0 {
		ev.vp.Y = 0
	}
	if ev.vp.Y > maxY {
		ev.vp.Y = maxY
	}
	maxX := ev.maxScrollOffsetX()
	if ev.vp.X < 0 {
		ev.vp.X = 0
	}
	if ev.vp.X > maxX {
		ev.vp.X = maxX
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LogicalToVisual converts a logical (row, col) into the (vline, vcol) of
// the wrapped virtual line that contains it (spec §4.6
// "logical_to_visual").
func (ev *EditorView) LogicalToVisual(row, col int) (int, int) {
	first := ev.view.LineFirstVline(row)
	count := ev.view.LineVlineCount(row)
	if first < 0 || count == 0 {
		return 0, 0
	}
	for i := first; i < first+count; i++ {
		vl := ev.view.VirtualLineAt(i)
		last := i == first+count-1
		if col <= vl.SourceColOffset+vl.Width || last {
			vc := clampInt(col-vl.SourceColOffset, 0, vl.Width)
			return i, vc
		}
	}
	vl := ev.view.VirtualLineAt(first + count - 1)
	return first + count - 1, vl.Width
}

// VisualToLogical converts a (vline, vcol) position into the logical (row,
// col) it maps to (spec §4.6 "visual_to_logical").
func (ev *EditorView) VisualToLogical(vline, vcol int) (int, int) {
	n := ev.view.VirtualLineCount()
	if n == 0 {
		return 0, 0
	}
	vline = clampInt(vline, 0, n-1)
	vl := ev.view.VirtualLineAt(vline)
	col := vl.SourceColOffset + clampInt(vcol, 0, vl.Width)
	return vl.SourceLine, col
}

// GetVisualCursor returns the primary cursor's position in visual-line
// coordinates (spec §4.6 "get_visual_cursor").
func (ev *EditorView) GetVisualCursor() (int, int) {
	c := ev.eb.PrimaryCursor()
	return ev.LogicalToVisual(c.Row, c.Col)
}

// EnsureCursorVisible scrolls the viewport, by the smallest amount, so the
// primary cursor's virtual line sits at least `scroll_margin × size`
// (rounded up, minimum 1) cells from each edge (spec §4.6
// "ensure_cursor_visible"). Horizontal scroll only applies when wrapping is
// off. Returns true if the viewport moved.
func (ev *EditorView) EnsureCursorVisible() bool {
	vline, vcol := ev.GetVisualCursor()
	oldY, oldX := ev.vp.Y, ev.vp.X

	if ev.vp.Height > 0 {
		marginY := marginCells(ev.scrollMargin, ev.vp.Height)
		if vline < ev.vp.Y+marginY {
			ev.vp.Y = vline - marginY
		}
		if vline >= ev.vp.Y+ev.vp.Height-marginY {
			ev.vp.Y = vline - ev.vp.Height + marginY + 1
		}
	} else if vline < ev.vp.Y {
		ev.vp.Y = vline
	}

	if ev.view.WrapMode() == textbufferview.WrapNone {
		if ev.vp.Width > 0 {
			marginX := marginCells(ev.scrollMargin, ev.vp.Width)
			if vcol < ev.vp.X+marginX {
				ev.vp.X = vcol - marginX
			}
			if vcol >= ev.vp.X+ev.vp.Width-marginX {
				ev.vp.X = vcol - ev.vp.Width + marginX + 1
			}
		} else if vcol < ev.vp.X {
			ev.vp.X = vcol
		}
	} else {
		ev.vp.X = 0
	}

	ev.clampScroll()
	ev.pushViewport()
	return ev.vp.Y != oldY || ev.vp.X != oldX
}

func (ev *EditorView) moveVertical(delta int) {
	vline, vcol := ev.GetVisualCursor()
	if !ev.verticalRun {
		ev.desiredVisualCol = vcol
	}
	target := clampInt(vline+delta, 0, maxInt(ev.view.VirtualLineCount()-1, 0))
	row, col := ev.VisualToLogical(target, ev.desiredVisualCol)
	ev.eb.SetCursor(row, col)
	ev.verticalRun = true
	ev.EnsureCursorVisible()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MoveUpVisual moves the primary cursor to the previous virtual line,
// preserving the visual column across a run of vertical moves the same way
// EditBuffer.MoveUp preserves DesiredCol across logical lines (spec §4.6
// "move_up_visual").
func (ev *EditorView) MoveUpVisual() { ev.moveVertical(-1) }

// MoveDownVisual moves the primary cursor to the next virtual line (spec
// §4.6 "move_down_visual").
func (ev *EditorView) MoveDownVisual() { ev.moveVertical(1) }

func (ev *EditorView) breakVerticalRun() { ev.verticalRun = false }

// InsertText inserts data at the cursor and ensures it stays visible.
func (ev *EditorView) InsertText(data []byte) error {
	if err := ev.eb.InsertText(data); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// DeleteRange deletes [start, end) and ensures the cursor stays visible.
func (ev *EditorView) DeleteRange(start, end int) error {
	if err := ev.eb.DeleteRange(start, end); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// DeleteSelectedText deletes the view's current selection, if any, and
// clears it (spec §4.6 "delete_selected_text").
func (ev *EditorView) DeleteSelectedText() error {
	sel := ev.view.Selection()
	if sel == nil {
		return nil
	}
	start, end := sel.Start, sel.End
	ev.view.ClearSelection()
	if err := ev.eb.DeleteRange(start, end); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// Backspace deletes one grapheme before each cursor and ensures visibility.
func (ev *EditorView) Backspace() error {
	if err := ev.eb.Backspace(); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// DeleteForward deletes one grapheme after each cursor and ensures
// visibility.
func (ev *EditorView) DeleteForward() error {
	if err := ev.eb.DeleteForward(); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// DeleteLine deletes the primary cursor's logical line and ensures
// visibility.
func (ev *EditorView) DeleteLine() error {
	if err := ev.eb.DeleteLine(); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// MoveLeft moves every cursor back one grapheme and ensures visibility.
func (ev *EditorView) MoveLeft() {
	ev.eb.MoveLeft()
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// MoveRight moves every cursor forward one grapheme and ensures visibility.
func (ev *EditorView) MoveRight() {
	ev.eb.MoveRight()
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// MoveUp moves every cursor to the previous logical line (not wrapped
// virtual line — see MoveUpVisual) and ensures visibility.
func (ev *EditorView) MoveUp() {
	ev.eb.MoveUp()
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// MoveDown moves every cursor to the next logical line and ensures
// visibility.
func (ev *EditorView) MoveDown() {
	ev.eb.MoveDown()
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// GotoLine moves the cursor to line n and ensures visibility.
func (ev *EditorView) GotoLine(n int) {
	ev.eb.GotoLine(n)
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// SetCursor places the cursor at (row, col) and ensures visibility.
func (ev *EditorView) SetCursor(row, col int) {
	ev.eb.SetCursor(row, col)
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// SetCursorByOffset places the cursor at a global offset and ensures
// visibility.
func (ev *EditorView) SetCursorByOffset(offset int) {
	ev.eb.SetCursorByOffset(offset)
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
}

// Undo reverts the most recent edit and ensures visibility.
func (ev *EditorView) Undo() error {
	if err := ev.eb.Undo(); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}

// Redo reapplies the most recently undone edit and ensures visibility.
func (ev *EditorView) Redo() error {
	if err := ev.eb.Redo(); err != nil {
		return err
	}
	ev.breakVerticalRun()
	ev.EnsureCursorVisible()
	return nil
}
