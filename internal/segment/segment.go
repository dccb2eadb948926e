// Package segment defines the rope leaf type (spec §3 "Segment") and its
// aggregated Metrics (spec §3 "Rope metrics"). Dispatch on a Segment's kind
// is a plain switch over a tag, not an interface hierarchy — the teacher's
// diffviewer.LineType follows the same sum-type-over-iota shape for its
// VirtualLine.Type field, and spec §9 calls this out explicitly
// ("Sum types over inheritance").
package segment

import (
	"github.com/zjrosen/textengine/internal/memregistry"
	"github.com/zjrosen/textengine/internal/unicodedata"
)

// Kind tags which variant a Segment holds.
type Kind uint8

const (
	// KindText holds one TextChunk.
	KindText Kind = iota
	// KindBreak is a hard line terminator; carries no bytes.
	KindBreak
	// KindLinestart is a zero-width marker opening a new line after a
	// break or at buffer start; carries no width.
	KindLinestart
)

// GraphemeInfo mirrors unicodedata.GraphemeInfo; re-exported here so callers
// of this package don't need to import unicodedata directly for chunk
// cache types.
type GraphemeInfo = unicodedata.GraphemeInfo

// WrapBreakKind and WrapBreak describe one wrap-break opportunity within a
// chunk (spec §3 TextChunk "wrap_offsets"). This package declares the
// wrapOffsets field but never fills it.
type WrapBreakKind uint8

// WrapBreak is one cached wrap-break opportunity within a chunk.
type WrapBreak struct {
	ByteOffset int
	CharOffset int
	Kind       WrapBreakKind
}

// TextChunk is an immutable descriptor of a contiguous byte range in some
// registered memory buffer (spec §3 "TextChunk").
type TextChunk struct {
	MemID     uint8
	ByteStart uint32
	ByteEnd   uint32
	Width     uint16
	ASCIIOnly bool

	// Lazy caches, invalidated only on buffer reset (never per-mutation: a
	// TextChunk describing a still-valid byte range is immutable). graphemes
	// is computed on the first Graphemes call; wrapOffsets is never computed
	// and stays empty.
	graphemes    []GraphemeInfo
	wrapOffsets  []WrapBreak
	cachesFilled bool
}

// Bytes resolves the chunk's byte range against reg.
func (c *TextChunk) Bytes(reg *memregistry.Registry) []byte {
	b, ok := reg.Get(c.MemID)
	if !ok {
		return nil
	}
	return b[c.ByteStart:c.ByteEnd]
}

// Graphemes returns the chunk's cached grapheme-cluster list, computing it
// on first call. method determines the display-width table used.
func (c *TextChunk) Graphemes(reg *memregistry.Registry, method unicodedata.WidthMethod) []GraphemeInfo {
	c.ensureGraphemes(reg, method)
	return c.graphemes
}

func (c *TextChunk) ensureGraphemes(reg *memregistry.Registry, method unicodedata.WidthMethod) {
	if c.cachesFilled {
		return
	}
	c.graphemes = unicodedata.Graphemes(c.Bytes(reg), method)
	c.cachesFilled = true
}

// InvalidateCaches drops the lazy caches. Called only on a full buffer
// reset (spec §5 "Caches are released only via arena reset on buffer
// reset").
func (c *TextChunk) InvalidateCaches() {
	c.graphemes = nil
	c.wrapOffsets = nil
	c.cachesFilled = false
}

// Segment is the rope's leaf type: a tagged union of text, break, and
// linestart variants.
type Segment struct {
	Kind Kind
	Text TextChunk // only meaningful when Kind == KindText
}

// NewText returns a text segment wrapping chunk.
func NewText(chunk TextChunk) Segment { return Segment{Kind: KindText, Text: chunk} }

// NewBreak returns a break segment.
func NewBreak() Segment { return Segment{Kind: KindBreak} }

// NewLinestart returns a linestart segment.
func NewLinestart() Segment { return Segment{Kind: KindLinestart} }

// Metrics aggregates per-subtree statistics the rope maintains (spec §3
// "Rope metrics").
type Metrics struct {
	TotalWidth      int
	BreakCount      int
	LinestartCount  int
	FirstLineWidth  int
	LastLineWidth   int
	MaxLineWidth    int
	ASCIIOnly       bool
	HasBreak        bool // true once any break has been seen in the subtree
}

// Measure computes the metrics of a single leaf segment.
func Measure(s Segment) Metrics {
	switch s.Kind {
	case KindBreak:
		return Metrics{BreakCount: 1, HasBreak: true, ASCIIOnly: true}
	case KindLinestart:
		return Metrics{LinestartCount: 1, ASCIIOnly: true}
	default:
		w := int(s.Text.Width)
		return Metrics{
			TotalWidth:     w,
			FirstLineWidth: w,
			LastLineWidth:  w,
			MaxLineWidth:   w,
			ASCIIOnly:      s.Text.ASCIIOnly,
		}
	}
}

// Combine merges the metrics of a left subtree followed by a right subtree
// (spec §3 "combine rule"). MaxLineWidth accounts for a logical line that
// straddles the left/right boundary: left.last + right.first.
func Combine(left, right Metrics) Metrics {
	m := Metrics{
		TotalWidth:     left.TotalWidth + right.TotalWidth,
		BreakCount:     left.BreakCount + right.BreakCount,
		LinestartCount: left.LinestartCount + right.LinestartCount,
		ASCIIOnly:      left.ASCIIOnly && right.ASCIIOnly,
		HasBreak:       left.HasBreak || right.HasBreak,
	}

	if left.HasBreak {
		m.FirstLineWidth = left.FirstLineWidth
	} else {
		m.FirstLineWidth = left.FirstLineWidth + right.FirstLineWidth
	}

	if right.HasBreak {
		m.LastLineWidth = right.LastLineWidth
	} else {
		m.LastLineWidth = right.LastLineWidth + left.LastLineWidth
	}

	straddle := left.LastLineWidth + right.FirstLineWidth
	m.MaxLineWidth = left.MaxLineWidth
	if right.MaxLineWidth > m.MaxLineWidth {
		m.MaxLineWidth = right.MaxLineWidth
	}
	if (left.HasBreak || right.HasBreak) && straddle > m.MaxLineWidth {
		m.MaxLineWidth = straddle
	}
	if !left.HasBreak && !right.HasBreak && straddle > m.MaxLineWidth {
		m.MaxLineWidth = straddle
	}

	return m
}

// Empty returns the identity metrics (the metrics of an empty subtree).
// ASCIIOnly is true: an empty range is vacuously all-ASCII, so combining it
// with any leaf must not drag that leaf's ASCIIOnly to false.
func Empty() Metrics { return Metrics{ASCIIOnly: true} }
