package unicodedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphemesASCII(t *testing.T) {
	gs := Graphemes([]byte("abc"), WidthWcwidth)
	assert.Len(t, gs, 3)
	for i, g := range gs {
		assert.Equal(t, i, g.ByteOffset)
		assert.Equal(t, 1, g.ByteLen)
		assert.Equal(t, 1, g.Width)
	}
}

func TestGraphemesCombiningMarkFoldsIntoPreceding(t *testing.T) {
	// "e" (U+0065) followed by COMBINING ACUTE ACCENT (U+0301) is one
	// grapheme cluster, not two. Built from explicit rune values rather than
	// a literal precomposed character, so the test exercises the zero-width
	// combining-mark fold rather than a single already-composed code point.
	b := []byte(string([]rune{'e', 0x0301}))
	gs := Graphemes(b, WidthWcwidth)
	assert.Len(t, gs, 1)
	assert.Equal(t, len(b), gs[0].ByteLen)
	assert.Equal(t, 1, gs[0].Width)
}

func TestGraphemesEmpty(t *testing.T) {
	assert.Nil(t, Graphemes(nil, WidthWcwidth))
}

func TestWidthWcwidthVsEastAsian(t *testing.T) {
	// U+2026 HORIZONTAL ELLIPSIS is ambiguous-width: narrow under wcwidth,
	// wide under the East Asian Width method.
	b := []byte(string(rune(0x2026)))
	wc := Width(b, WidthWcwidth)
	ea := Width(b, WidthUnicodeEastAsian)
	assert.Equal(t, 1, wc)
	assert.Equal(t, 2, ea)
}

func TestWidthWideCJK(t *testing.T) {
	// U+3042 HIRAGANA LETTER A is unambiguously double-width under either
	// method.
	assert.Equal(t, 2, Width([]byte(string(rune(0x3042))), WidthWcwidth))
}

func TestZWJClusterWidthIsMaxNotSumOfItsCodePoints(t *testing.T) {
	// WOMAN, ZWJ, ROCKET joined by a ZERO WIDTH JOINER render as one
	// astronaut glyph; its width must be the widest of its code points, not
	// their sum (which would overcount the joiner's contribution).
	woman, zwj, rocket := rune(0x1F469), rune(0x200D), rune(0x1F680)
	cluster := []byte(string([]rune{woman, zwj, rocket}))

	wWoman := Width([]byte(string(woman)), WidthWcwidth)
	wRocket := Width([]byte(string(rocket)), WidthWcwidth)
	want := wWoman
	if wRocket > want {
		want = wRocket
	}

	gs := Graphemes(cluster, WidthWcwidth)
	require.Len(t, gs, 1) // the ZWJ joins all three code points into one cluster
	assert.Equal(t, len(cluster), gs[0].ByteLen)
	assert.Equal(t, want, gs[0].Width)
}

func TestGraphemeCount(t *testing.T) {
	assert.Equal(t, 3, GraphemeCount([]byte("abc"), WidthWcwidth))
	assert.Equal(t, 0, GraphemeCount(nil, WidthWcwidth))
}
