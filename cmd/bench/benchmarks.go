package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/zjrosen/textengine/editbuffer"
	"github.com/zjrosen/textengine/internal/rope"
	"github.com/zjrosen/textengine/internal/unicodedata"
	"github.com/zjrosen/textengine/textbuffer"
	"github.com/zjrosen/textengine/textbufferview"
)

// benchResult is one benchmark's measured cost, in the same shape
// testing.BenchmarkResult reports (ns/op, optionally bytes/op).
type benchResult struct {
	iterations int
	duration   time.Duration
	allocBytes uint64
	allocsOp   uint64
}

func (r benchResult) nsPerOp() float64 {
	if r.iterations == 0 {
		return 0
	}
	return float64(r.duration.Nanoseconds()) / float64(r.iterations)
}

// benchCase is one named, repeatable unit of work, grounded on the rope,
// textbuffer, textbufferview, and editbuffer packages so the runner
// exercises the same O(log N) paths the spec calls out as the core's
// performance-critical surface (spec §1 "the core is the hard part").
type benchCase struct {
	name string
	run  func() // one iteration's worth of work
}

const sampleParagraph = "The quick brown fox jumps over the lazy dog. " +
	"Pack my box with five dozen liquor jugs. こんにちは世界、これはテストです。\n"

func buildSampleText(lines int) []byte {
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		sb.WriteString(sampleParagraph)
	}
	return []byte(sb.String())
}

func benchCases() []benchCase {
	sample := buildSampleText(200)

	return []benchCase{
		{
			name: "rope_insert_slice",
			run: func() {
				ops := rope.Ops[int, int]{
					Measure: func(l int) int { return 1 },
					Combine: func(a, b int) int { return a + b },
					Empty:   0,
				}
				t := rope.New(ops)
				leaves := make([]int, 500)
				t.InsertSlice(0, leaves)
			},
		},
		{
			name: "rope_seek",
			run: func() {
				ops := rope.Ops[int, int]{
					Measure: func(l int) int { return 1 },
					Combine: func(a, b int) int { return a + b },
					Empty:   0,
				}
				leaves := make([]int, 2000)
				t := rope.FromSlice(ops, leaves)
				_ = t.Seek(func(acc int) bool { return acc >= 1500 })
			},
		},
		{
			name: "textbuffer_set_text",
			run: func() {
				b := textbuffer.New(unicodedata.WidthWcwidth)
				_ = b.SetText(sample)
			},
		},
		{
			name: "textbuffer_replace_range",
			run: func() {
				b := textbuffer.New(unicodedata.WidthWcwidth)
				_ = b.SetText(sample)
				_ = b.ReplaceRange(10, 20, []byte("REPLACED"))
			},
		},
		{
			name: "textbufferview_reflow_word_wrap",
			run: func() {
				b := textbuffer.New(unicodedata.WidthWcwidth)
				_ = b.SetText(sample)
				v := textbufferview.New(b)
				v.SetWrapMode(textbufferview.WrapWord)
				v.SetWrapWidth(40)
				_ = v.GetVirtualLines()
			},
		},
		{
			name: "editbuffer_insert_undo_cycle",
			run: func() {
				b := textbuffer.New(unicodedata.WidthWcwidth)
				_ = b.SetText(sample)
				eb := editbuffer.New(b)
				eb.SetCursor(0, 0)
				_ = eb.InsertText([]byte("hello "))
				_ = eb.Undo()
				_ = eb.Redo()
			},
		},
	}
}

// runBench runs c repeatedly for roughly targetDuration, the same
// fixed-time-budget shape testing.B uses, and optionally samples
// runtime.MemStats around the run when mem is true (spec §6 "--mem reports
// memory statistics per benchmark").
func runBench(c benchCase, mem bool) benchResult {
	const targetDuration = 200 * time.Millisecond
	const minIterations = 8

	var allocBefore, allocAfter runtime.MemStats
	if mem {
		runtime.GC()
		runtime.ReadMemStats(&allocBefore)
	}

	n := minIterations
	start := time.Now()
	for {
		for i := 0; i < n; i++ {
			c.run()
		}
		elapsed := time.Since(start)
		if elapsed >= targetDuration || n > 1<<20 {
			if mem {
				runtime.ReadMemStats(&allocAfter)
			}
			res := benchResult{iterations: n, duration: elapsed}
			if mem {
				res.allocBytes = allocAfter.TotalAlloc - allocBefore.TotalAlloc
				res.allocsOp = (allocAfter.Mallocs - allocBefore.Mallocs)
			}
			return res
		}
		n *= 2
		if mem {
			runtime.ReadMemStats(&allocBefore)
		}
		start = time.Now()
	}
}

func runAll(filter string, mem bool, out *strings.Builder) int {
	matched := 0
	for _, c := range benchCases() {
		if filter != "" && !strings.Contains(strings.ToLower(c.name), strings.ToLower(filter)) {
			continue
		}
		matched++
		res := runBench(c, mem)
		if mem {
			fmt.Fprintf(out, "%-34s %12.1f ns/op  %10d B/op  %8d allocs/op\n",
				c.name, res.nsPerOp(), res.allocBytes/uint64(res.iterations), res.allocsOp/uint64(res.iterations))
		} else {
			fmt.Fprintf(out, "%-34s %12.1f ns/op\n", c.name, res.nsPerOp())
		}
	}
	return matched
}
