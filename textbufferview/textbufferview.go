// Package textbufferview implements the reflow engine (spec §4.4): it
// materialises virtual lines (post-wrapping display rows) from a
// TextBuffer, slices them to a viewport, and resolves a selection expressed
// in either global or viewport-relative coordinates.
//
// Grounded on the teacher's diffviewer.VirtualViewport for the "cache
// everything, render only the visible slice, clamp the scroll offset"
// shape; generalized from a string-per-line diff renderer to a
// grapheme-aware wrap engine over rope segments.
package textbufferview

import (
	"github.com/zjrosen/textengine/internal/scanner"
	"github.com/zjrosen/textengine/internal/segment"
	"github.com/zjrosen/textengine/internal/unicodedata"
	"github.com/zjrosen/textengine/textbuffer"
)

// WrapMode selects how logical lines are split into virtual lines.
type WrapMode int

const (
	WrapNone WrapMode = iota
	WrapChar
	WrapWord
)

// Viewport is a rectangular window into virtual-line space (spec §3, §4.4).
type Viewport struct {
	X, Y, Width, Height int
}

// Selection is a global, display-offset selection range (spec §3
// TextBufferView "selection").
type Selection struct {
	Start, End       int
	BgColor, FgColor textbuffer.RGBA
}

// LocalSelection is a viewport-relative selection, resolved to a Selection
// by SetLocalSelection (spec §4.4 "set_local_selection").
type LocalSelection struct {
	AnchorX, AnchorY int
	FocusX, FocusY   int
	Active           bool
}

// VirtualChunk is a (possibly partial) slice of one TextChunk's byte range
// assigned to a single virtual line.
type VirtualChunk struct {
	MemID     uint8
	ByteStart uint32
	ByteEnd   uint32
	Width     int
}

// VirtualLine is one post-wrap display row (spec §3 "VirtualLine").
type VirtualLine struct {
	Chunks          []VirtualChunk
	Width           int
	CharOffset      int
	SourceLine      int
	SourceColOffset int
}

type dirtyState int

const (
	stateClean dirtyState = iota
	stateLocalDirty
	stateBufferDirty
)

// TextBufferView is one wrap/selection/viewport state over a TextBuffer
// (spec §3, §4.4 "TextBufferView").
type TextBufferView struct {
	buf    *textbuffer.TextBuffer
	viewID int

	wrapMode     WrapMode
	wrapWidth    int
	hasWrapWidth bool

	viewport       *Viewport
	selection      *Selection
	localSelection *LocalSelection

	virtualLines          []VirtualLine
	cachedLineStarts      []int
	cachedLineWidths      []int
	cachedMaxWidth        int
	cachedLineFirstVline  []int
	cachedLineVlineCounts []int

	localDirty bool
}

// New registers a view on buf and returns it.
func New(buf *textbuffer.TextBuffer) *TextBufferView {
	v := &TextBufferView{buf: buf, wrapMode: WrapNone}
	v.viewID = buf.RegisterView()
	return v
}

// Close unregisters the view from its buffer.
func (v *TextBufferView) Close() { v.buf.UnregisterView(v.viewID) }

// SetWrapMode changes the wrap mode, marking the view locally dirty.
func (v *TextBufferView) SetWrapMode(m WrapMode) { v.wrapMode = m; v.localDirty = true }

// SetWrapWidth sets the wrap width; width <= 0 clears it (equivalent to
// "wrap_width = none").
func (v *TextBufferView) SetWrapWidth(width int) {
	if width <= 0 {
		v.hasWrapWidth = false
		v.wrapWidth = 0
	} else {
		v.hasWrapWidth = true
		v.wrapWidth = width
	}
	v.localDirty = true
}

// SetViewport sets the viewport slice; nil clears it (return everything).
func (v *TextBufferView) SetViewport(vp *Viewport) { v.viewport = vp; v.localDirty = true }

func (v *TextBufferView) state() dirtyState {
	switch {
	case v.buf.IsViewDirty(v.viewID):
		return stateBufferDirty
	case v.localDirty:
		return stateLocalDirty
	default:
		return stateClean
	}
}

func (v *TextBufferView) ensureFresh() {
	if v.state() == stateClean {
		return
	}
	v.reflow()
	v.buf.ClearViewDirty(v.viewID)
	v.localDirty = false
}

// buildLines partitions the rope's leaves into one []TextChunk per logical
// line, in order.
func (v *TextBufferView) buildLines() [][]segment.TextChunk {
	tree := v.buf.Tree()
	var lines [][]segment.TextChunk
	var current []segment.TextChunk
	tree.Walk(0, tree.Len(), func(s segment.Segment) bool {
		switch s.Kind {
		case segment.KindText:
			current = append(current, s.Text)
		case segment.KindBreak:
			lines = append(lines, current)
			current = nil
		}
		return true
	})
	lines = append(lines, current)
	return lines
}

type flatGrapheme struct {
	memID     uint8
	byteOff   int
	byteLen   int
	width     int
	isBreaker bool
}

func (v *TextBufferView) flattenLine(chunks []segment.TextChunk) []flatGrapheme {
	reg := v.buf.MemRegistry()
	method := v.buf.WidthMethod()
	var out []flatGrapheme
	for _, c := range chunks {
		data, ok := reg.Get(c.MemID)
		if !ok {
			continue
		}
		slice := data[c.ByteStart:c.ByteEnd]
		graphs := unicodedata.Graphemes(slice, method)
		breaks := scanner.FindWrapBreaks(slice, method)
		breakSet := make(map[int]struct{}, len(breaks))
		for _, wb := range breaks {
			breakSet[wb.ByteOffset] = struct{}{}
		}
		for _, g := range graphs {
			_, isBreaker := breakSet[g.ByteOffset]
			out = append(out, flatGrapheme{
				memID:     c.MemID,
				byteOff:   int(c.ByteStart) + g.ByteOffset,
				byteLen:   g.ByteLen,
				width:     g.Width,
				isBreaker: isBreaker,
			})
		}
	}
	return out
}

func commitChunks(graphs []flatGrapheme) []VirtualChunk {
	var out []VirtualChunk
	for _, g := range graphs {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.MemID == g.memID && int(last.ByteEnd) == g.byteOff {
				last.ByteEnd = uint32(g.byteOff + g.byteLen)
				last.Width += g.width
				continue
			}
		}
		out = append(out, VirtualChunk{
			MemID: g.memID, ByteStart: uint32(g.byteOff), ByteEnd: uint32(g.byteOff + g.byteLen), Width: g.width,
		})
	}
	return out
}

func (v *TextBufferView) reflow() {
	lines := v.buildLines()
	v.virtualLines = v.virtualLines[:0]
	charOffset := 0

	useWrap := v.hasWrapWidth && v.wrapMode != WrapNone
	for lineIdx, chunks := range lines {
		if !useWrap {
			v.reflowLineNone(chunks, lineIdx, &charOffset)
			continue
		}
		graphs := v.flattenLine(chunks)
		switch v.wrapMode {
		case WrapChar:
			v.reflowLineChar(graphs, lineIdx, &charOffset)
		default:
			v.reflowLineWord(graphs, lineIdx, &charOffset)
		}
	}

	v.rebuildCaches(len(lines))
}

func (v *TextBufferView) reflowLineNone(chunks []segment.TextChunk, lineIdx int, charOffset *int) {
	var vcs []VirtualChunk
	width := 0
	for _, c := range chunks {
		vcs = append(vcs, VirtualChunk{MemID: c.MemID, ByteStart: c.ByteStart, ByteEnd: c.ByteEnd, Width: int(c.Width)})
		width += int(c.Width)
	}
	v.virtualLines = append(v.virtualLines, VirtualLine{
		Chunks: vcs, Width: width, CharOffset: *charOffset, SourceLine: lineIdx,
	})
	*charOffset += width + 1
}

// reflowLineChar implements mode char (spec §4.4): greedily fill each
// virtual line up to wrapWidth, forcing one grapheme of progress when the
// line is still empty and the next grapheme alone exceeds wrapWidth.
func (v *TextBufferView) reflowLineChar(graphs []flatGrapheme, lineIdx int, charOffset *int) {
	if len(graphs) == 0 {
		v.virtualLines = append(v.virtualLines, VirtualLine{SourceLine: lineIdx, CharOffset: *charOffset})
		*charOffset++
		return
	}
	i, colOffset := 0, 0
	for i < len(graphs) {
		start, used := i, 0
		for i < len(graphs) {
			w := graphs[i].width
			if used+w > v.wrapWidth {
				if used == 0 {
					used += w
					i++
				}
				break
			}
			used += w
			i++
		}
		v.virtualLines = append(v.virtualLines, VirtualLine{
			Chunks: commitChunks(graphs[start:i]), Width: used, CharOffset: *charOffset,
			SourceLine: lineIdx, SourceColOffset: colOffset,
		})
		*charOffset += used
		colOffset += used
	}
	*charOffset++
}

// reflowLineWord implements mode word (spec §4.4): greedily accumulate
// graphemes, rewinding to the most recent wrap-break opportunity that still
// fits before committing. A run with no breaker anywhere in its width
// behaves like char mode for its duration, which is exactly what falls out
// of never finding a breaker to rewind to.
func (v *TextBufferView) reflowLineWord(graphs []flatGrapheme, lineIdx int, charOffset *int) {
	if len(graphs) == 0 {
		v.virtualLines = append(v.virtualLines, VirtualLine{SourceLine: lineIdx, CharOffset: *charOffset})
		*charOffset++
		return
	}
	i, colOffset := 0, 0
	for i < len(graphs) {
		start := i
		used := 0
		lastBreakerEnd, lastBreakerWidth := -1, 0
		j := i
		for j < len(graphs) {
			w := graphs[j].width
			if used+w > v.wrapWidth {
				break
			}
			used += w
			j++
			if graphs[j-1].isBreaker {
				lastBreakerEnd, lastBreakerWidth = j, used
			}
		}
		if j == start {
			// a single grapheme already exceeds wrapWidth: force progress.
			used = graphs[start].width
			j = start + 1
		} else if j < len(graphs) && lastBreakerEnd > start && lastBreakerEnd < j {
			j, used = lastBreakerEnd, lastBreakerWidth
		}
		v.virtualLines = append(v.virtualLines, VirtualLine{
			Chunks: commitChunks(graphs[start:j]), Width: used, CharOffset: *charOffset,
			SourceLine: lineIdx, SourceColOffset: colOffset,
		})
		*charOffset += used
		colOffset += used
		i = j
	}
	*charOffset++
}

func (v *TextBufferView) rebuildCaches(logicalLineCount int) {
	n := len(v.virtualLines)
	v.cachedLineStarts = make([]int, n)
	v.cachedLineWidths = make([]int, n)
	v.cachedLineFirstVline = make([]int, logicalLineCount)
	v.cachedLineVlineCounts = make([]int, logicalLineCount)
	for i := range v.cachedLineFirstVline {
		v.cachedLineFirstVline[i] = -1
	}

	v.cachedMaxWidth = 0
	for i, vl := range v.virtualLines {
		v.cachedLineStarts[i] = vl.CharOffset
		v.cachedLineWidths[i] = vl.Width
		if vl.Width > v.cachedMaxWidth {
			v.cachedMaxWidth = vl.Width
		}
		if v.cachedLineFirstVline[vl.SourceLine] == -1 {
			v.cachedLineFirstVline[vl.SourceLine] = i
		}
		v.cachedLineVlineCounts[vl.SourceLine]++
	}
}

// GetVirtualLines returns the viewport-sliced virtual lines, clamped to the
// available range (spec §4.4 "Viewport slicing").
func (v *TextBufferView) GetVirtualLines() []VirtualLine {
	v.ensureFresh()
	if v.viewport == nil {
		return v.virtualLines
	}
	start, end := v.viewportRange(len(v.virtualLines))
	return v.virtualLines[start:end]
}

// GetCachedLineInfo returns (starts, widths) viewport-sliced the same way
// as GetVirtualLines.
func (v *TextBufferView) GetCachedLineInfo() (starts, widths []int) {
	v.ensureFresh()
	if v.viewport == nil {
		return v.cachedLineStarts, v.cachedLineWidths
	}
	start, end := v.viewportRange(len(v.virtualLines))
	return v.cachedLineStarts[start:end], v.cachedLineWidths[start:end]
}

func (v *TextBufferView) viewportRange(total int) (int, int) {
	start := v.viewport.Y
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + v.viewport.Height
	if end > total {
		end = total
	}
	return start, end
}

// CachedMaxWidth returns the maximum virtual-line width.
func (v *TextBufferView) CachedMaxWidth() int { v.ensureFresh(); return v.cachedMaxWidth }

// LineFirstVline returns the virtual-line index of the first virtual line
// belonging to logical line L.
func (v *TextBufferView) LineFirstVline(l int) int {
	v.ensureFresh()
	if l < 0 || l >= len(v.cachedLineFirstVline) {
		return -1
	}
	return v.cachedLineFirstVline[l]
}

// LineVlineCount returns the number of virtual lines belonging to logical
// line L.
func (v *TextBufferView) LineVlineCount(l int) int {
	v.ensureFresh()
	if l < 0 || l >= len(v.cachedLineVlineCounts) {
		return 0
	}
	return v.cachedLineVlineCounts[l]
}

// VirtualLineCount returns the total number of virtual lines.
func (v *TextBufferView) VirtualLineCount() int { v.ensureFresh(); return len(v.virtualLines) }

// VirtualLineAt returns virtual line i (absolute, not viewport-sliced).
func (v *TextBufferView) VirtualLineAt(i int) VirtualLine {
	v.ensureFresh()
	return v.virtualLines[i]
}

// GetVirtualLineSpans returns the buffer's style spans for the logical line
// backing virtual line i, cropped to that virtual line's column range.
func (v *TextBufferView) GetVirtualLineSpans(i int) []textbuffer.StyleSpan {
	v.ensureFresh()
	vl := v.virtualLines[i]
	all := v.buf.GetLineSpans(vl.SourceLine)
	lo, hi := vl.SourceColOffset, vl.SourceColOffset+vl.Width
	var out []textbuffer.StyleSpan
	for _, s := range all {
		start, end := s.Col, s.NextCol
		if start < lo {
			start = lo
		}
		if end > hi {
			end = hi
		}
		if start >= end {
			continue
		}
		out = append(out, textbuffer.StyleSpan{Col: start - lo, StyleID: s.StyleID, NextCol: end - lo})
	}
	return out
}

// SetSelection stores a global-offset selection, clamped to
// [0, char_count] with start <= end (spec §4.4 "set_selection").
func (v *TextBufferView) SetSelection(start, end int, bg, fg textbuffer.RGBA) {
	length := v.buf.GetLength()
	if end < start {
		start, end = end, start
	}
	start = clamp(start, 0, length)
	end = clamp(end, 0, length)
	v.selection = &Selection{Start: start, End: end, BgColor: bg, FgColor: fg}
}

// ClearSelection removes the current global selection.
func (v *TextBufferView) ClearSelection() { v.selection = nil }

// Selection returns the current global selection, if any.
func (v *TextBufferView) Selection() *Selection { return v.selection }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetLocalSelection resolves viewport-relative coordinates to a global
// selection (spec §4.4 "set_local_selection"). Returns true iff the global
// selection changed.
func (v *TextBufferView) SetLocalSelection(anchorX, anchorY, focusX, focusY int, bg, fg textbuffer.RGBA) bool {
	v.ensureFresh()
	v.localSelection = &LocalSelection{AnchorX: anchorX, AnchorY: anchorY, FocusX: focusX, FocusY: focusY, Active: true}

	anchorOffset := v.resolveLocalPoint(anchorX, anchorY)
	focusOffset := v.resolveLocalPoint(focusX, focusY)

	start, end := anchorOffset, focusOffset
	if end < start {
		start, end = end, start
	}
	length := v.buf.GetLength()
	start, end = clamp(start, 0, length), clamp(end, 0, length)

	prev := v.selection
	v.selection = &Selection{Start: start, End: end, BgColor: bg, FgColor: fg}
	return prev == nil || prev.Start != start || prev.End != end
}

func (v *TextBufferView) resolveLocalPoint(x, y int) int {
	vy := y
	if v.viewport != nil {
		vy = v.viewport.Y + y
	}
	if vy < 0 {
		vy = 0
	}
	if vy >= len(v.virtualLines) {
		if len(v.virtualLines) == 0 {
			return 0
		}
		vy = len(v.virtualLines) - 1
	}
	vl := v.virtualLines[vy]

	vx := x
	if !(v.hasWrapWidth && v.wrapMode != WrapNone) && v.viewport != nil {
		vx = v.viewport.X + x
	}
	vx = clamp(vx, 0, vl.Width)
	return vl.CharOffset + vx
}

// ClearLocalSelection clears the local-selection anchor/focus tracking.
func (v *TextBufferView) ClearLocalSelection() { v.localSelection = nil }

// GetSelectedTextIntoBuffer extracts the UTF-8 bytes covered by the current
// selection into out, joining logical lines with '\n' (spec §4.4
// "get_selected_text_into_buffer"). Returns the number of bytes written.
func (v *TextBufferView) GetSelectedTextIntoBuffer(out []byte) int {
	if v.selection == nil {
		return 0
	}
	full := v.buf.GetPlainText()
	startByte := v.buf.PlainTextByteOffset(v.selection.Start)
	endByte := v.buf.PlainTextByteOffset(v.selection.End)
	return copy(out, full[startByte:endByte])
}

// PackSelectionInfo packs the selection into a u64: high 32 bits = start,
// low 32 bits = end; all-ones when no selection (spec §6).
func (v *TextBufferView) PackSelectionInfo() uint64 {
	if v.selection == nil {
		return ^uint64(0)
	}
	return uint64(uint32(v.selection.Start))<<32 | uint64(uint32(v.selection.End))
}

// WrapMode returns the view's current wrap mode.
func (v *TextBufferView) WrapMode() WrapMode { return v.wrapMode }

// ViewID returns the id this view registered with its buffer.
func (v *TextBufferView) ViewID() int { return v.viewID }
