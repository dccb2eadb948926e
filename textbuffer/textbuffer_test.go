package textbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/textengine/internal/unicodedata"
)

func newBuf(t *testing.T, text string) *TextBuffer {
	t.Helper()
	b := New(unicodedata.WidthWcwidth)
	require.NoError(t, b.SetText([]byte(text)))
	return b
}

func TestSetTextAndGetPlainText(t *testing.T) {
	b := newBuf(t, "hello\nworld")
	assert.Equal(t, "hello\nworld", string(b.GetPlainText()))
	assert.Equal(t, 2, b.GetLineCount())
}

func TestGetLineCountSingleLine(t *testing.T) {
	b := newBuf(t, "no breaks")
	assert.Equal(t, 1, b.GetLineCount())
}

func TestGetLineCountEmptyBuffer(t *testing.T) {
	b := New(unicodedata.WidthWcwidth)
	assert.Equal(t, 1, b.GetLineCount())
	assert.Equal(t, 0, b.GetLength())
}

func TestLinestartInvariant(t *testing.T) {
	// one linestart immediately before each logical line's content: count
	// equals break_count + 1 == line_count always.
	b := newBuf(t, "a\nbb\nccc\n")
	m := b.Tree().Metrics()
	assert.Equal(t, m.BreakCount+1, m.LinestartCount)
	assert.Equal(t, b.GetLineCount(), m.LinestartCount)
}

func TestGetLengthCountsOneColumnPerBreak(t *testing.T) {
	b := newBuf(t, "ab\ncd") // width 2 + break(1) + width 2 = 5
	assert.Equal(t, 5, b.GetLength())
}

func TestCoordsToOffsetRoundTrip(t *testing.T) {
	b := newBuf(t, "abc\nde\nfghi")
	for row := 0; row < b.GetLineCount(); row++ {
		for col := 0; col <= b.LineWidth(row); col++ {
			offset := b.CoordsToOffset(row, col)
			gotRow, gotCol := b.OffsetToCoords(offset)
			assert.Equal(t, row, gotRow, "row round-trip at (%d,%d)", row, col)
			assert.Equal(t, col, gotCol, "col round-trip at (%d,%d)", row, col)
		}
	}
}

func TestCoordsToOffsetClampsOutOfRange(t *testing.T) {
	b := newBuf(t, "abc")
	assert.Equal(t, 3, b.CoordsToOffset(0, 100))
	assert.Equal(t, 0, b.CoordsToOffset(-5, 0))
	assert.Equal(t, 3, b.CoordsToOffset(50, 0))
}

func TestLineWidth(t *testing.T) {
	b := newBuf(t, "ab\ncde\n")
	assert.Equal(t, 2, b.LineWidth(0))
	assert.Equal(t, 3, b.LineWidth(1))
	assert.Equal(t, 0, b.LineWidth(2)) // trailing empty line after final break
}

func TestReplaceRangeMiddle(t *testing.T) {
	b := newBuf(t, "hello world")
	require.NoError(t, b.ReplaceRange(6, 11, []byte("there")))
	assert.Equal(t, "hello there", string(b.GetPlainText()))
}

func TestReplaceRangeInsertionOnly(t *testing.T) {
	b := newBuf(t, "ac")
	require.NoError(t, b.ReplaceRange(1, 1, []byte("b")))
	assert.Equal(t, "abc", string(b.GetPlainText()))
}

func TestReplaceRangeDeletionOnly(t *testing.T) {
	b := newBuf(t, "abc")
	require.NoError(t, b.ReplaceRange(1, 2, nil))
	assert.Equal(t, "ac", string(b.GetPlainText()))
}

func TestReplaceRangeInvalid(t *testing.T) {
	b := newBuf(t, "abc")
	err := b.ReplaceRange(2, 1, nil)
	assert.Error(t, err)
	err = b.ReplaceRange(0, 100, nil)
	assert.Error(t, err)
}

func TestSetStyledTextProducesHighlights(t *testing.T) {
	b := New(unicodedata.WidthWcwidth)
	fg := RGBA{R: 1}
	require.NoError(t, b.SetStyledText([]StyledChunk{
		{Text: []byte("red")},
		{Text: []byte("plain"), Fg: &fg},
	}))
	assert.Equal(t, "redplain", string(b.GetPlainText()))
	spans := b.GetLineSpans(0)
	require.Len(t, spans, 2)
	assert.Equal(t, 0, spans[0].Col)
	assert.Equal(t, 3, spans[0].NextCol)
	assert.Equal(t, StyleID(0), spans[0].StyleID)
	assert.Equal(t, 3, spans[1].Col)
	assert.NotEqual(t, StyleID(0), spans[1].StyleID)
}

func TestAddHighlightByCharRangeAcrossLines(t *testing.T) {
	b := newBuf(t, "abc\ndef")
	b.AddHighlightByCharRange(2, 5, StyleID(1), 0, "")
	spans0 := b.GetLineSpans(0)
	spans1 := b.GetLineSpans(1)
	require.Len(t, spans0, 2)
	assert.Equal(t, StyleID(1), spans0[1].StyleID)
	require.Len(t, spans1, 2)
	assert.Equal(t, StyleID(1), spans1[0].StyleID)
}

func TestHighlightPriorityWins(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 0, 6, StyleID(1), 0, "")
	b.AddHighlight(0, 2, 4, StyleID(2), 5, "")
	spans := b.GetLineSpans(0)
	require.Len(t, spans, 3)
	assert.Equal(t, StyleID(1), spans[0].StyleID)
	assert.Equal(t, StyleID(2), spans[1].StyleID) // higher priority wins in the overlap
	assert.Equal(t, StyleID(1), spans[2].StyleID)
}

func TestHighlightTieBreakIsInsertionOrder(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 0, 6, StyleID(1), 5, "")
	b.AddHighlight(0, 0, 6, StyleID(2), 5, "") // same priority, registered later
	spans := b.GetLineSpans(0)
	require.Len(t, spans, 1)
	assert.Equal(t, StyleID(1), spans[0].StyleID) // earliest registration wins ties
}

func TestClearLineHighlights(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 0, 3, StyleID(1), 0, "")
	b.ClearLineHighlights(0)
	spans := b.GetLineSpans(0)
	require.Len(t, spans, 1)
	assert.Equal(t, StyleID(0), spans[0].StyleID)
}

func TestRemoveHighlightsByRef(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 0, 3, StyleID(1), 0, "search")
	b.AddHighlight(0, 3, 6, StyleID(2), 0, "other")
	b.RemoveHighlightsByRef("search")
	spans := b.GetLineSpans(0)
	require.Len(t, spans, 2)
	assert.Equal(t, StyleID(0), spans[0].StyleID)
	assert.Equal(t, StyleID(2), spans[1].StyleID)
}

func TestGetLineSpansCacheInvalidatedByMutation(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 0, 3, StyleID(1), 0, "")
	first := b.GetLineSpans(0)
	require.Len(t, first, 2)

	b.ClearAllHighlights()
	second := b.GetLineSpans(0)
	require.Len(t, second, 1)
	assert.Equal(t, StyleID(0), second[0].StyleID)
}

func TestRegisterViewDirtyTracking(t *testing.T) {
	b := New(unicodedata.WidthWcwidth)
	id := b.RegisterView()
	assert.True(t, b.IsViewDirty(id))
	b.ClearViewDirty(id)
	assert.False(t, b.IsViewDirty(id))

	require.NoError(t, b.SetText([]byte("x")))
	assert.True(t, b.IsViewDirty(id))
}

func TestUnregisterViewReusesID(t *testing.T) {
	b := New(unicodedata.WidthWcwidth)
	id := b.RegisterView()
	b.UnregisterView(id)
	id2 := b.RegisterView()
	assert.Equal(t, id, id2)
}

func TestPlaceholder(t *testing.T) {
	b := New(unicodedata.WidthWcwidth)
	b.SetPlaceholder([]byte("type here"))
	b.SetPlaceholderColor(RGBA{R: 1})
	text, color := b.Placeholder()
	assert.Equal(t, []byte("type here"), text)
	assert.Equal(t, float32(1), color.R)
}

func TestPlainTextByteOffset(t *testing.T) {
	b := newBuf(t, "ab\ncd")
	assert.Equal(t, 0, b.PlainTextByteOffset(0))
	assert.Equal(t, 2, b.PlainTextByteOffset(2)) // end of "ab"
	assert.Equal(t, 3, b.PlainTextByteOffset(3)) // start of "cd", past the \n
	assert.Equal(t, 5, b.PlainTextByteOffset(5))
}

func TestCRLFNormalizesToSingleBreak(t *testing.T) {
	b := newBuf(t, "a\r\nb")
	assert.Equal(t, 2, b.GetLineCount())
	assert.Equal(t, "a\nb", string(b.GetPlainText()))
}

func TestWideGraphemeWidth(t *testing.T) {
	// U+3042 HIRAGANA LETTER A is double-width; line width must reflect
	// display columns, not byte or rune count.
	wide := string(rune(0x3042)) + string(rune(0x3044))
	b := newBuf(t, wide)
	assert.Equal(t, 4, b.LineWidth(0))
}
