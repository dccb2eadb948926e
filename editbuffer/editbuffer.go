// Package editbuffer implements the cursor and undo/redo layer over a
// textbuffer.TextBuffer (spec §3 "EditBuffer", §4.5): multi-cursor text
// mutation processed in descending-offset order, word-boundary and line
// navigation, and an inverse-edit undo log.
//
// Grounded on the teacher's vimtextarea.CommandHistory, which walks a
// []Command slice with an undoIndex and truncates the redo tail on Push.
// That package's Command objects carry their own Execute/Undo methods
// because vim commands are motions and mutations alike; an EditBuffer edit
// is always a byte-range replacement, so the history here stores the
// inverse data directly — the replaced range, the bytes that were there
// before, and the cursor set at the time — rather than a polymorphic
// command object, and reuses only the index-walking discipline.
package editbuffer

import (
	"sort"

	"github.com/google/uuid"

	"github.com/zjrosen/textengine/internal/coreerr"
	"github.com/zjrosen/textengine/internal/event"
	"github.com/zjrosen/textengine/internal/scanner"
	"github.com/zjrosen/textengine/internal/unicodedata"
	"github.com/zjrosen/textengine/textbuffer"
)

// Cursor is one insertion point: a logical row/column plus the desired
// column preserved across vertical motion (spec §3 "Cursor").
type Cursor struct {
	Row, Col, DesiredCol int
}

// Clone returns a copy of c. Supplements the cursor model with an explicit
// value-copy entry point for callers that snapshot cursor sets (e.g. before
// a MultiCursorEdit) rather than relying on Cursor's value semantics
// silently doing the right thing.
func (c Cursor) Clone() Cursor { return c }

// EventKind names the two synchronous events EditBuffer emits (spec §4.5,
// §6).
type EventKind string

const (
	EventCursorChanged EventKind = "cursorChanged"
	EventTextChanged   EventKind = "textChanged"
)

// Event is the payload delivered to listeners registered via On.
type Event struct {
	Kind    EventKind
	Cursors []Cursor
}

// wordBoundaryKinds restricted to whitespace and punctuation, excluding
// dash/slash and bracket characters, matches spec §4.5's "restricted to
// whitespace + punctuation, not dashes" word-boundary definition.
var wordBoundaryKinds = map[scanner.WrapBreakKind]bool{
	scanner.WrapWhitespace:     true,
	scanner.WrapPunctuation:    true,
	scanner.WrapUnicodeBreaker: true,
}

// editAction is one atomic byte-range replacement applied to the buffer, in
// the coordinate space current at the moment it ran.
type editAction struct {
	start    int
	oldLen   int
	oldBytes []byte
	newBytes []byte
}

// undoGroup is one undo-able unit: one or more editActions applied together
// (a multi-cursor edit is one group of several actions), plus the cursor
// sets immediately before and after, and an opaque id tagging the group
// (spec §4.5 "an opaque metadata blob").
type undoGroup struct {
	actions       []editAction
	cursorsBefore []Cursor
	cursorsAfter  []Cursor
	meta          string
	coalesceKey   string
}

// History is the inverse-edit undo log: a flat slice of groups with an
// index into the last-applied one, following the same push/truncate/walk
// shape as the teacher's CommandHistory.
type History struct {
	groups []undoGroup
	idx    int // -1 means nothing to undo
}

func newHistory() History { return History{idx: -1} }

func (h *History) push(g undoGroup) {
	h.groups = h.groups[:h.idx+1]
	h.groups = append(h.groups, g)
	h.idx = len(h.groups) - 1
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool { return h.idx >= 0 }

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool { return h.idx < len(h.groups)-1 }

// Clear discards all history (spec §4.5 "clear_history").
func (h *History) Clear() { h.groups = nil; h.idx = -1 }

// EditBuffer owns a TextBuffer, an ordered multi-cursor set, and the undo
// log built on top of it (spec §3 "EditBuffer").
type EditBuffer struct {
	buf     *textbuffer.TextBuffer
	cursors []Cursor
	history History

	events *event.Emitter[Event]

	coalesceActive bool
	coalesceKey    string
}

// New returns an EditBuffer wrapping buf with a single cursor at (0, 0).
func New(buf *textbuffer.TextBuffer) *EditBuffer {
	return &EditBuffer{
		buf:     buf,
		cursors: []Cursor{{}},
		history: newHistory(),
		events:  event.NewEmitter[Event](),
	}
}

// Buffer exposes the underlying TextBuffer for collaborators (editorview).
func (e *EditBuffer) Buffer() *textbuffer.TextBuffer { return e.buf }

// On registers fn for events of kind k, returning a handle for Off.
func (e *EditBuffer) On(k EventKind, ctx any, fn func(ctx any, payload Event)) event.Handle {
	return e.events.On(event.Type(k), ctx, fn)
}

// Off removes a listener registered under handle h for kind k.
func (e *EditBuffer) Off(k EventKind, h event.Handle) {
	e.events.Off(event.Type(k), h)
}

func (e *EditBuffer) emitText() {
	e.events.Emit(event.Type(EventTextChanged), Event{Kind: EventTextChanged, Cursors: e.cloneCursors()})
}

func (e *EditBuffer) emitCursor() {
	e.events.Emit(event.Type(EventCursorChanged), Event{Kind: EventCursorChanged, Cursors: e.cloneCursors()})
}

// Cursors returns a snapshot of the current cursor set, primary first.
func (e *EditBuffer) Cursors() []Cursor { return e.cloneCursors() }

func (e *EditBuffer) cloneCursors() []Cursor {
	out := make([]Cursor, len(e.cursors))
	copy(out, e.cursors)
	return out
}

// PrimaryCursor returns the first cursor in the set.
func (e *EditBuffer) PrimaryCursor() Cursor {
	if len(e.cursors) == 0 {
		return Cursor{}
	}
	return e.cursors[0]
}

// SetCursor places a single cursor at (row, col), replacing any existing
// multi-cursor set (spec §4.5 "set_cursor").
func (e *EditBuffer) SetCursor(row, col int) {
	offset := e.buf.CoordsToOffset(row, col)
	r, c := e.buf.OffsetToCoords(offset)
	e.cursors = []Cursor{{Row: r, Col: c, DesiredCol: c}}
	e.breakCoalesce()
	e.emitCursor()
}

// SetCursorByOffset places a single cursor at a global display-offset (spec
// §4.5 "set_cursor_by_offset").
func (e *EditBuffer) SetCursorByOffset(offset int) {
	row, col := e.buf.OffsetToCoords(offset)
	e.SetCursor(row, col)
}

// GotoLine moves the primary cursor to the start of line n, clamped to the
// buffer's line range (spec §4.5 "goto_line").
func (e *EditBuffer) GotoLine(n int) {
	e.SetCursor(n, 0)
}

// MultiCursorEdit replaces the active cursor set with cursors, supplementing
// the base cursor model with an explicit bulk-replace entry point (spec's
// "process insertions in descending offset order" note implies callers may
// want to seed a cursor set directly, e.g. restoring one from a saved
// session, rather than building it one SetCursor call at a time).
func (e *EditBuffer) MultiCursorEdit(cursors []Cursor) {
	if len(cursors) == 0 {
		return
	}
	clamped := make([]Cursor, len(cursors))
	for i, c := range cursors {
		offset := e.buf.CoordsToOffset(c.Row, c.Col)
		r, col := e.buf.OffsetToCoords(offset)
		clamped[i] = Cursor{Row: r, Col: col, DesiredCol: col}
	}
	e.cursors = clamped
	e.breakCoalesce()
	e.emitCursor()
}

func (e *EditBuffer) breakCoalesce() {
	e.coalesceActive = false
	e.coalesceKey = ""
}

// cursorEditSpec describes one edit anchored to a cursor's original
// (pre-edit) global offset.
type cursorEditSpec struct {
	start, end int
	insert     []byte
}

// applyMultiCursor runs one edit per current cursor, computed by specFor
// against that cursor's original offset, applies them in descending order
// of end offset (so a rightward edit never invalidates a still-pending
// leftward one), then derives every cursor's final position from the
// original offsets and each edit's width delta (spec §4.5 "process
// insertions in descending offset order so earlier offsets remain valid").
func (e *EditBuffer) applyMultiCursor(specFor func(origOffset int) cursorEditSpec, meta, coalesceKey string) error {
	n := len(e.cursors)
	if n == 0 {
		return nil
	}

	origOffsets := make([]int, n)
	for i, c := range e.cursors {
		origOffsets[i] = e.buf.CoordsToOffset(c.Row, c.Col)
	}

	type item struct {
		idx  int
		spec cursorEditSpec
	}
	items := make([]item, n)
	for i, off := range origOffsets {
		items[i] = item{idx: i, spec: specFor(off)}
	}

	order := append([]item(nil), items...)
	sort.Slice(order, func(i, j int) bool { return order[i].spec.end > order[j].spec.end })

	cursorsBefore := e.cloneCursors()
	var actions []editAction
	for _, it := range order {
		s := it.spec
		if s.end < s.start || (s.end == s.start && len(s.insert) == 0) {
			continue
		}
		oldBytes := e.sliceGlobalText(s.start, s.end)
		if err := e.buf.ReplaceRange(s.start, s.end, s.insert); err != nil {
			return err
		}
		actions = append(actions, editAction{start: s.start, oldLen: s.end - s.start, oldBytes: oldBytes, newBytes: s.insert})
	}

	cur := append([]int(nil), origOffsets...)
	for _, it := range order {
		s := it.spec
		w := charWidthOf(s.insert, e.buf.WidthMethod())
		delta := w - (s.end - s.start)
		for j := 0; j < n; j++ {
			oj := origOffsets[j]
			switch {
			case oj >= s.end:
				cur[j] += delta
			case oj >= s.start:
				cur[j] = s.start + w
			}
		}
	}

	newCursors := make([]Cursor, n)
	for i := range e.cursors {
		finalOffset := cur[i]
		if finalOffset < 0 {
			finalOffset = 0
		}
		row, col := e.buf.OffsetToCoords(finalOffset)
		newCursors[i] = Cursor{Row: row, Col: col, DesiredCol: col}
	}
	e.cursors = newCursors

	if len(actions) == 0 {
		return nil
	}

	group := undoGroup{
		actions:       actions,
		cursorsBefore: cursorsBefore,
		cursorsAfter:  e.cloneCursors(),
		meta:          meta,
		coalesceKey:   coalesceKey,
	}
	e.pushOrCoalesce(group)
	e.emitText()
	e.emitCursor()
	return nil
}

// pushOrCoalesce appends group as a new history entry, or, when it is a
// single-action insertion continuing the same coalesce run as the previous
// entry, merges it into that entry instead (spec §4.5's coalescing rule:
// "consecutive insertions by a single cursor merge into one entry; any
// non-insert operation, cursor relocation, or multi-cursor edit breaks the
// run").
func (e *EditBuffer) pushOrCoalesce(group undoGroup) {
	if group.coalesceKey == "" || !e.coalesceActive || e.coalesceKey != group.coalesceKey || len(e.history.groups) == 0 {
		e.history.push(group)
		e.coalesceActive = group.coalesceKey != ""
		e.coalesceKey = group.coalesceKey
		return
	}
	last := &e.history.groups[e.history.idx]
	if last.meta != group.meta {
		e.history.push(group)
		e.coalesceActive = group.coalesceKey != ""
		e.coalesceKey = group.coalesceKey
		return
	}
	last.actions = append(last.actions, group.actions...)
	last.cursorsAfter = group.cursorsAfter
}

func (e *EditBuffer) sliceGlobalText(start, end int) []byte {
	if end <= start {
		return nil
	}
	full := e.buf.GetPlainText()
	a := e.buf.PlainTextByteOffset(start)
	b := e.buf.PlainTextByteOffset(end)
	out := make([]byte, b-a)
	copy(out, full[a:b])
	return out
}

func charWidthOf(b []byte, method unicodedata.WidthMethod) int {
	total := 0
	pos := 0
	for _, br := range scanner.FindLineBreaks(b) {
		lineEnd := br.Pos
		if br.Kind == scanner.CRLF {
			lineEnd--
		}
		total += unicodedata.Width(b[pos:lineEnd], method)
		total++
		pos = br.Pos + 1
	}
	total += unicodedata.Width(b[pos:], method)
	return total
}

// InsertText inserts data at every cursor (spec §4.5 "insert_text"),
// coalescing into the previous history entry when this is a single-cursor
// insertion, of any length, with no word-boundary grapheme, continuing the
// same run. An insertion that contains a word-boundary grapheme gets its
// own undo step and ends the run, so inserting "foo", " " and "bar" one
// after another gives three undo steps.
func (e *EditBuffer) InsertText(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	meta := uuid.NewString()
	coalesceKey := ""
	if len(e.cursors) == 1 && !containsWordBoundary(data, e.buf.WidthMethod()) {
		coalesceKey = "insert"
		meta = e.currentCoalesceMeta(coalesceKey)
	}
	return e.applyMultiCursor(func(origOffset int) cursorEditSpec {
		return cursorEditSpec{start: origOffset, end: origOffset, insert: data}
	}, meta, coalesceKey)
}

func (e *EditBuffer) currentCoalesceMeta(key string) string {
	if e.coalesceActive && e.coalesceKey == key && len(e.history.groups) > 0 {
		return e.history.groups[e.history.idx].meta
	}
	return uuid.NewString()
}

func containsWordBoundary(b []byte, method unicodedata.WidthMethod) bool {
	for _, wb := range scanner.FindWrapBreaks(b, method) {
		if wordBoundaryKinds[wb.Kind] {
			return true
		}
	}
	return false
}

// DeleteRange removes the display-column range [start, end) from the
// buffer and places a single cursor at start (spec §4.5 "delete_range").
func (e *EditBuffer) DeleteRange(start, end int) error {
	if end < start {
		start, end = end, start
	}
	e.SetCursorByOffset(start)
	return e.applyMultiCursor(func(origOffset int) cursorEditSpec {
		return cursorEditSpec{start: start, end: end, insert: nil}
	}, uuid.NewString(), "")
}

// Backspace deletes the grapheme cluster immediately before each cursor, or
// joins the current line to the previous one when a cursor sits at column
// 0 (spec §4.5 "backspace").
func (e *EditBuffer) Backspace() error {
	return e.applyMultiCursor(func(origOffset int) cursorEditSpec {
		w := e.graphemeWidthBefore(origOffset)
		return cursorEditSpec{start: origOffset - w, end: origOffset, insert: nil}
	}, uuid.NewString(), "")
}

// DeleteForward deletes the grapheme cluster immediately after each cursor
// (spec §4.5 "delete_forward").
func (e *EditBuffer) DeleteForward() error {
	return e.applyMultiCursor(func(origOffset int) cursorEditSpec {
		w := e.graphemeWidthAfter(origOffset)
		return cursorEditSpec{start: origOffset, end: origOffset + w, insert: nil}
	}, uuid.NewString(), "")
}

func (e *EditBuffer) graphemeWidthBefore(offset int) int {
	if offset <= 0 {
		return 0
	}
	full := e.buf.GetPlainText()
	bytePos := e.buf.PlainTextByteOffset(offset)
	if bytePos == 0 {
		return 0
	}
	if full[bytePos-1] == '\n' {
		return 1
	}
	lineStart := bytePos - 1
	for lineStart > 0 && full[lineStart-1] != '\n' {
		lineStart--
	}
	gs := unicodedata.Graphemes(full[lineStart:bytePos], e.buf.WidthMethod())
	if len(gs) == 0 {
		return 0
	}
	return gs[len(gs)-1].Width
}

func (e *EditBuffer) graphemeWidthAfter(offset int) int {
	full := e.buf.GetPlainText()
	bytePos := e.buf.PlainTextByteOffset(offset)
	if bytePos >= len(full) {
		return 0
	}
	if full[bytePos] == '\n' {
		return 1
	}
	lineEnd := bytePos
	for lineEnd < len(full) && full[lineEnd] != '\n' {
		lineEnd++
	}
	gs := unicodedata.Graphemes(full[bytePos:lineEnd], e.buf.WidthMethod())
	if len(gs) == 0 {
		return 0
	}
	return gs[0].Width
}

// DeleteLine removes the entire logical line the primary cursor sits on,
// including its trailing break, and places the cursor at the start of the
// line that takes its place (spec §4.5 "delete_line").
func (e *EditBuffer) DeleteLine() error {
	c := e.PrimaryCursor()
	lineCount := e.buf.GetLineCount()
	start := e.buf.CoordsToOffset(c.Row, 0)
	var end int
	if c.Row < lineCount-1 {
		end = e.buf.CoordsToOffset(c.Row+1, 0)
	} else {
		end = e.buf.GetLength()
		if start > 0 {
			start--
		}
	}
	return e.DeleteRange(start, end)
}

// MoveLeft moves every cursor back one grapheme, wrapping to the end of the
// previous line at column 0 (spec §4.5 "move_left").
func (e *EditBuffer) MoveLeft() {
	for i, c := range e.cursors {
		offset := e.buf.CoordsToOffset(c.Row, c.Col)
		w := e.graphemeWidthBefore(offset)
		if w == 0 && offset == 0 {
			continue
		}
		row, col := e.buf.OffsetToCoords(offset - w)
		e.cursors[i] = Cursor{Row: row, Col: col, DesiredCol: col}
	}
	e.breakCoalesce()
	e.emitCursor()
}

// MoveRight moves every cursor forward one grapheme, wrapping into the next
// line at its start (spec §4.5 "move_right").
func (e *EditBuffer) MoveRight() {
	for i, c := range e.cursors {
		offset := e.buf.CoordsToOffset(c.Row, c.Col)
		w := e.graphemeWidthAfter(offset)
		row, col := e.buf.OffsetToCoords(offset + w)
		e.cursors[i] = Cursor{Row: row, Col: col, DesiredCol: col}
	}
	e.breakCoalesce()
	e.emitCursor()
}

// MoveUp moves every cursor to the previous logical line, preserving
// DesiredCol across the hop (spec §4.5 "move_up").
func (e *EditBuffer) MoveUp() {
	for i, c := range e.cursors {
		row := c.Row - 1
		if row < 0 {
			row = 0
		}
		col := clampToLine(c.DesiredCol, e.buf.LineWidth(row))
		e.cursors[i] = Cursor{Row: row, Col: col, DesiredCol: c.DesiredCol}
	}
	e.breakCoalesce()
	e.emitCursor()
}

// MoveDown moves every cursor to the next logical line, preserving
// DesiredCol across the hop (spec §4.5 "move_down").
func (e *EditBuffer) MoveDown() {
	lastRow := e.buf.GetLineCount() - 1
	for i, c := range e.cursors {
		row := c.Row + 1
		if row > lastRow {
			row = lastRow
		}
		col := clampToLine(c.DesiredCol, e.buf.LineWidth(row))
		e.cursors[i] = Cursor{Row: row, Col: col, DesiredCol: c.DesiredCol}
	}
	e.breakCoalesce()
	e.emitCursor()
}

func clampToLine(col, width int) int {
	if col < 0 {
		return 0
	}
	if col > width {
		return width
	}
	return col
}

// GetEOL returns the global display-offset one past the last column of
// row's logical line (spec §4.5 "get_eol").
func (e *EditBuffer) GetEOL(row int) int {
	return e.buf.CoordsToOffset(row, e.buf.LineWidth(row))
}

// GetNextWordBoundary returns the global display-offset just past the next
// word-boundary grapheme at or after the primary cursor (spec §4.5
// "get_next_word_boundary").
func (e *EditBuffer) GetNextWordBoundary() int {
	offset := e.buf.CoordsToOffset(e.PrimaryCursor().Row, e.PrimaryCursor().Col)
	full := e.buf.GetPlainText()
	bytePos := e.buf.PlainTextByteOffset(offset)
	for _, wb := range scanner.FindWrapBreaks(full[bytePos:], e.buf.WidthMethod()) {
		if wordBoundaryKinds[wb.Kind] {
			return offset + wb.CharOffset
		}
	}
	return e.buf.GetLength()
}

// GetPrevWordBoundary returns the global display-offset of the nearest
// word-boundary grapheme strictly before the primary cursor (spec §4.5
// "get_prev_word_boundary").
func (e *EditBuffer) GetPrevWordBoundary() int {
	offset := e.buf.CoordsToOffset(e.PrimaryCursor().Row, e.PrimaryCursor().Col)
	full := e.buf.GetPlainText()
	bytePos := e.buf.PlainTextByteOffset(offset)
	breaks := scanner.FindWrapBreaks(full[:bytePos], e.buf.WidthMethod())
	for i := len(breaks) - 1; i >= 0; i-- {
		if !wordBoundaryKinds[breaks[i].Kind] {
			continue
		}
		before := full[:breaks[i].ByteOffset]
		return charWidthOf(before, e.buf.WidthMethod())
	}
	return 0
}

// SetText replaces the entire buffer (spec §4.5 "set_text"). When
// retainHistory is false the undo log and cursor set are reset, matching
// textbuffer.SetText's full-rebuild semantics; when true the whole-buffer
// replacement is recorded as a single ordinary undoable edit instead.
func (e *EditBuffer) SetText(data []byte, retainHistory bool) error {
	if !retainHistory {
		if err := e.buf.SetText(data); err != nil {
			return err
		}
		e.cursors = []Cursor{{}}
		e.history.Clear()
		e.breakCoalesce()
		e.emitText()
		e.emitCursor()
		return nil
	}
	e.SetCursorByOffset(0)
	return e.applyMultiCursor(func(origOffset int) cursorEditSpec {
		return cursorEditSpec{start: 0, end: e.buf.GetLength(), insert: data}
	}, uuid.NewString(), "")
}

// CanUndo reports whether Undo would change the buffer.
func (e *EditBuffer) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would change the buffer.
func (e *EditBuffer) CanRedo() bool { return e.history.CanRedo() }

// ClearHistory discards all undo/redo state (spec §4.5 "clear_history").
func (e *EditBuffer) ClearHistory() { e.history.Clear(); e.breakCoalesce() }

// Undo reverts the most recent undo group, restoring the cursor set that
// was active immediately before it ran (spec §4.5 "undo"). Actions are
// undone in the reverse of their applied order: each action's start offset
// was recorded against the buffer state at the time it ran, and later
// actions in the group shift earlier offsets, so unwinding must retire the
// last-applied action first to see those offsets again.
func (e *EditBuffer) Undo() error {
	if !e.history.CanUndo() {
		return coreerr.ErrInvalidIndex
	}
	g := e.history.groups[e.history.idx]
	for i := len(g.actions) - 1; i >= 0; i-- {
		a := g.actions[i]
		w := charWidthOf(a.newBytes, e.buf.WidthMethod())
		if err := e.buf.ReplaceRange(a.start, a.start+w, a.oldBytes); err != nil {
			return err
		}
	}
	e.history.idx--
	e.cursors = append([]Cursor(nil), g.cursorsBefore...)
	e.breakCoalesce()
	e.emitText()
	e.emitCursor()
	return nil
}

// Redo reapplies the undo group just undone (spec §4.5 "redo").
func (e *EditBuffer) Redo() error {
	if !e.history.CanRedo() {
		return coreerr.ErrInvalidIndex
	}
	e.history.idx++
	g := e.history.groups[e.history.idx]
	for _, a := range g.actions {
		if err := e.buf.ReplaceRange(a.start, a.start+a.oldLen, a.newBytes); err != nil {
			return err
		}
	}
	e.cursors = append([]Cursor(nil), g.cursorsAfter...)
	e.breakCoalesce()
	e.emitText()
	e.emitCursor()
	return nil
}

// SetPlaceholder delegates to the underlying buffer (spec §4.5
// "set_placeholder"): EditBuffer has no placeholder state of its own, since
// the placeholder is rendered in place of buffer content, which
// TextBuffer already owns.
func (e *EditBuffer) SetPlaceholder(text []byte) { e.buf.SetPlaceholder(text) }

// SetPlaceholderColor delegates to the underlying buffer (spec §4.5
// "set_placeholder_color").
func (e *EditBuffer) SetPlaceholderColor(c textbuffer.RGBA) { e.buf.SetPlaceholderColor(c) }
