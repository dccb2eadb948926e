package textbufferview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/textengine/internal/unicodedata"
	"github.com/zjrosen/textengine/textbuffer"
)

func newBuf(t *testing.T, text string) *textbuffer.TextBuffer {
	t.Helper()
	b := textbuffer.New(unicodedata.WidthWcwidth)
	require.NoError(t, b.SetText([]byte(text)))
	return b
}

func TestNoWrapOneVirtualLinePerLogicalLine(t *testing.T) {
	b := newBuf(t, "hello\nworld")
	v := New(b)
	defer v.Close()

	vls := v.GetVirtualLines()
	require.Len(t, vls, 2)
	assert.Equal(t, 0, vls[0].SourceLine)
	assert.Equal(t, 1, vls[1].SourceLine)
	assert.Equal(t, 5, vls[0].Width)
}

func TestCharWrapSplitsAtFixedWidth(t *testing.T) {
	b := newBuf(t, "abcdefgh")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapChar)
	v.SetWrapWidth(3)

	vls := v.GetVirtualLines()
	require.Len(t, vls, 3)
	assert.Equal(t, 3, vls[0].Width)
	assert.Equal(t, 3, vls[1].Width)
	assert.Equal(t, 2, vls[2].Width)
	assert.Equal(t, 0, vls[0].SourceColOffset)
	assert.Equal(t, 3, vls[1].SourceColOffset)
	assert.Equal(t, 6, vls[2].SourceColOffset)
}

func TestWordWrapBreaksAtWhitespace(t *testing.T) {
	b := newBuf(t, "ab cd ef")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapWord)
	v.SetWrapWidth(5)

	vls := v.GetVirtualLines()
	// rewinds to the last breaker (space) still within wrapWidth: "ab "
	// (3 cols, trailing space) then "cd ef" (5 cols, runs to line end).
	require.Len(t, vls, 2)
	assert.Equal(t, 3, vls[0].Width)
	assert.Equal(t, 5, vls[1].Width)
}

func TestWordWrapFallsBackToCharWhenNoBreaker(t *testing.T) {
	b := newBuf(t, "abcdefgh")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapWord)
	v.SetWrapWidth(3)

	vls := v.GetVirtualLines()
	require.Len(t, vls, 3)
	assert.Equal(t, 3, vls[0].Width)
	assert.Equal(t, 3, vls[1].Width)
	assert.Equal(t, 2, vls[2].Width)
}

func TestWordWrapForcesProgressOnOversizedGrapheme(t *testing.T) {
	b := newBuf(t, "a")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapWord)
	v.SetWrapWidth(1) // "wide" double-width grapheme alone exceeds width 1

	wide := string(rune(0x3042))
	require.NoError(t, b.SetText([]byte(wide)))
	vls := v.GetVirtualLines()
	require.Len(t, vls, 1)
	assert.Equal(t, 2, vls[0].Width) // forced through despite exceeding wrapWidth
}

func TestViewportSlicing(t *testing.T) {
	b := newBuf(t, "a\nb\nc\nd\ne")
	v := New(b)
	defer v.Close()
	v.SetViewport(&Viewport{Y: 1, Height: 2})

	vls := v.GetVirtualLines()
	require.Len(t, vls, 2)
	assert.Equal(t, 1, vls[0].SourceLine)
	assert.Equal(t, 2, vls[1].SourceLine)
}

func TestViewportClampsPastEnd(t *testing.T) {
	b := newBuf(t, "a\nb")
	v := New(b)
	defer v.Close()
	v.SetViewport(&Viewport{Y: 10, Height: 5})

	vls := v.GetVirtualLines()
	assert.Len(t, vls, 0)
}

func TestLineFirstVlineAndCount(t *testing.T) {
	b := newBuf(t, "abcdef")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapChar)
	v.SetWrapWidth(2)

	assert.Equal(t, 0, v.LineFirstVline(0))
	assert.Equal(t, 3, v.LineVlineCount(0))
	assert.Equal(t, -1, v.LineFirstVline(5))
}

func TestSetSelectionClamped(t *testing.T) {
	b := newBuf(t, "abc")
	v := New(b)
	defer v.Close()
	v.SetSelection(10, 1, textbuffer.RGBA{}, textbuffer.RGBA{})
	sel := v.Selection()
	require.NotNil(t, sel)
	assert.Equal(t, 1, sel.Start)
	assert.Equal(t, 3, sel.End)
}

func TestGetSelectedTextIntoBuffer(t *testing.T) {
	b := newBuf(t, "hello world")
	v := New(b)
	defer v.Close()
	v.SetSelection(6, 11, textbuffer.RGBA{}, textbuffer.RGBA{})
	out := make([]byte, 32)
	n := v.GetSelectedTextIntoBuffer(out)
	assert.Equal(t, "world", string(out[:n]))
}

func TestGetSelectedTextNoSelection(t *testing.T) {
	b := newBuf(t, "hello")
	v := New(b)
	defer v.Close()
	out := make([]byte, 8)
	assert.Equal(t, 0, v.GetSelectedTextIntoBuffer(out))
}

func TestPackSelectionInfo(t *testing.T) {
	b := newBuf(t, "hello")
	v := New(b)
	defer v.Close()
	assert.Equal(t, ^uint64(0), v.PackSelectionInfo())

	v.SetSelection(1, 3, textbuffer.RGBA{}, textbuffer.RGBA{})
	packed := v.PackSelectionInfo()
	assert.Equal(t, uint32(1), uint32(packed>>32))
	assert.Equal(t, uint32(3), uint32(packed))
}

func TestSetLocalSelectionResolvesToGlobal(t *testing.T) {
	b := newBuf(t, "abc\ndef")
	v := New(b)
	defer v.Close()
	changed := v.SetLocalSelection(0, 0, 2, 1, textbuffer.RGBA{}, textbuffer.RGBA{})
	assert.True(t, changed)
	sel := v.Selection()
	require.NotNil(t, sel)
	assert.Equal(t, 0, sel.Start)
}

func TestDirtyStateTriggersReflowOnBufferMutation(t *testing.T) {
	b := newBuf(t, "abc")
	v := New(b)
	defer v.Close()
	_ = v.GetVirtualLines()

	require.NoError(t, b.SetText([]byte("abc\ndef")))
	vls := v.GetVirtualLines()
	require.Len(t, vls, 2)
}

func TestGetVirtualLineSpansCropsToWrappedRange(t *testing.T) {
	b := newBuf(t, "abcdef")
	b.AddHighlight(0, 2, 4, textbuffer.StyleID(1), 0, "")
	v := New(b)
	defer v.Close()
	v.SetWrapMode(WrapChar)
	v.SetWrapWidth(3)

	spans := v.GetVirtualLineSpans(1) // second virtual line covers cols [3,6)
	require.NotEmpty(t, spans)
	found := false
	for _, s := range spans {
		if s.StyleID == textbuffer.StyleID(1) {
			found = true
		}
	}
	assert.True(t, found)
}
