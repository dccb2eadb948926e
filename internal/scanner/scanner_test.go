package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zjrosen/textengine/internal/unicodedata"
)

func TestIsASCIIOnly(t *testing.T) {
	assert.True(t, IsASCIIOnly([]byte("hello world!")))
	assert.False(t, IsASCIIOnly([]byte("hello\tworld")))       // tab is control
	assert.False(t, IsASCIIOnly([]byte(string(rune(0x00E9))))) // non-ASCII byte
	assert.True(t, IsASCIIOnly(make([]byte, 40)[:0]))          // empty
	assert.False(t, IsASCIIOnly([]byte("0123456789012345\n"))) // crosses lane boundary with a control byte
}

func TestFindLineBreaksLF(t *testing.T) {
	breaks := FindLineBreaks([]byte("a\nb\nc"))
	assert.Equal(t, []LineBreak{{Pos: 1, Kind: LF}, {Pos: 3, Kind: LF}}, breaks)
}

func TestFindLineBreaksCRLFAndLoneCR(t *testing.T) {
	breaks := FindLineBreaks([]byte("a\r\nb\rc"))
	assert.Equal(t, []LineBreak{{Pos: 2, Kind: CRLF}, {Pos: 4, Kind: CR}}, breaks)
}

func TestFindLineBreaksTrailingCR(t *testing.T) {
	breaks := FindLineBreaks([]byte("a\r"))
	assert.Equal(t, []LineBreak{{Pos: 1, Kind: CR}}, breaks)
}

func TestFindLineBreaksNone(t *testing.T) {
	assert.Nil(t, FindLineBreaks([]byte("no breaks here")))
}

func TestFindWrapBreaksASCII(t *testing.T) {
	breaks := FindWrapBreaks([]byte("ab cd-ef"), unicodedata.WidthWcwidth)
	var kinds []WrapBreakKind
	for _, b := range breaks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []WrapBreakKind{WrapWhitespace, WrapDashSlash}, kinds)
}

func TestFindWrapBreaksPunctuationAndBracket(t *testing.T) {
	breaks := FindWrapBreaks([]byte("a.(b)"), unicodedata.WidthWcwidth)
	if len(breaks) != 3 {
		t.Fatalf("expected 3 wrap breaks, got %d", len(breaks))
	}
	assert.Equal(t, WrapPunctuation, breaks[0].Kind)
	assert.Equal(t, WrapBracket, breaks[1].Kind)
	assert.Equal(t, WrapBracket, breaks[2].Kind)
}

func TestFindWrapBreaksUnicodeBreaker(t *testing.T) {
	// U+00A0 NO-BREAK SPACE is one of the non-ASCII code points classified
	// as a word-boundary opportunity; built from an explicit rune value
	// rather than an embedded literal to keep the source unambiguous.
	b := append(append([]byte("a"), []byte(string(rune(0x00A0)))...), 'b')
	breaks := FindWrapBreaks(b, unicodedata.WidthWcwidth)
	assert.Len(t, breaks, 1)
	assert.Equal(t, WrapUnicodeBreaker, breaks[0].Kind)
}

func TestFindWrapBreaksCharOffsetIsCumulativeWidth(t *testing.T) {
	breaks := FindWrapBreaks([]byte("ab cd"), unicodedata.WidthWcwidth)
	assert.Len(t, breaks, 1)
	assert.Equal(t, 3, breaks[0].CharOffset) // "ab " is 3 columns wide
}

func TestFindWrapPosASCIIFastPath(t *testing.T) {
	res := FindWrapPos([]byte("hello world"), 5, 4, true)
	assert.Equal(t, FindWrapPosResult{ByteOffset: 5, ColumnsUsed: 5, GraphemeCount: 5}, res)
}

func TestFindWrapPosGraphemeAware(t *testing.T) {
	res := FindWrapPos([]byte("hello"), 3, 4, false)
	assert.Equal(t, 3, res.ByteOffset)
	assert.Equal(t, 3, res.ColumnsUsed)
	assert.Equal(t, 3, res.GraphemeCount)
}

func TestFindWrapPosTab(t *testing.T) {
	res := FindWrapPos([]byte("\t\tx"), 6, 4, false)
	// first tab consumes 4 columns (to next stop), second tab would consume
	// 4 more to reach the next stop at column 8, which exceeds maxWidth 6
	assert.Equal(t, 1, res.GraphemeCount)
	assert.Equal(t, 4, res.ColumnsUsed)
}

func TestFindWrapPosEmptyOrZeroWidth(t *testing.T) {
	assert.Equal(t, FindWrapPosResult{}, FindWrapPos(nil, 10, 4, false))
	assert.Equal(t, FindWrapPosResult{}, FindWrapPos([]byte("x"), 0, 4, false))
}
