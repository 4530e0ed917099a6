// Package segment cuts raw novel text into ordered, bounded-size chunks.
//
// Cuts prefer chapter-heading boundaries so a heading never gets split
// mid-token: the last heading inside the size budget wins, then the first
// heading inside budget*multiplier, then a forced cut at the budget. The same
// input and config always produce the same chunk sequence.
package segment

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lorecard/lorecard/internal/types"
)

// DefaultBoundaryPatterns match common Chinese and English chapter headings
// at the start of a line.
var DefaultBoundaryPatterns = []string{
	`(?m)^\s*第[一二三四五六七八九十百千万零两0-9]+[章节回卷]`,
	`(?m)^\s*第[一二三四五六七八九十百千万零两0-9]+部分`,
	`(?m)^\s*Chapter\s+\d+`,
}

// DefaultSkipPatterns match junk lines (copyright banners, site watermarks)
// removed by Clean before segmentation.
var DefaultSkipPatterns = []string{
	`^[┏┗][━]+[┓┛]$`,
	`本电子书由.*整理校对`,
	`版权归原作者所有`,
	`请勿转载`,
	`请勿用于.*商业用途`,
}

// Segmenter splits text deterministically. All size budgets count characters
// (runes) so Chinese and ASCII text chunk the same; Start/End on the produced
// chunks remain byte offsets into the cleaned text.
type Segmenter struct {
	maxChars     int
	overlapChars int
	multiplier   int
	boundaries   []*regexp.Regexp
	skips        []*regexp.Regexp
}

// Config configures a Segmenter. Zero values fall back to defaults.
// Character counts are runes, not bytes.
type Config struct {
	MaxChars          int      // chunk size budget in characters (default 30000)
	OverlapChars      int      // trailing context copied into the next chunk (default 200)
	ForcedCutMultiple int      // boundary search horizon as a multiple of MaxChars (default 2)
	BoundaryPatterns  []string // chapter heading regexes (default DefaultBoundaryPatterns)
	SkipPatterns      []string // junk line regexes for Clean (default DefaultSkipPatterns)
}

// New compiles the configured patterns and returns a Segmenter.
// Invalid regexes are a configuration error and fail immediately.
func New(cfg Config) (*Segmenter, error) {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 30000
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = 0
	}
	if cfg.ForcedCutMultiple < 1 {
		cfg.ForcedCutMultiple = 2
	}
	patterns := cfg.BoundaryPatterns
	if len(patterns) == 0 {
		patterns = DefaultBoundaryPatterns
	}
	skips := cfg.SkipPatterns
	if len(skips) == 0 {
		skips = DefaultSkipPatterns
	}

	s := &Segmenter{
		maxChars:     cfg.MaxChars,
		overlapChars: cfg.OverlapChars,
		multiplier:   cfg.ForcedCutMultiple,
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid boundary pattern %q: %w", p, err)
		}
		s.boundaries = append(s.boundaries, re)
	}
	for _, p := range skips {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", p, err)
		}
		s.skips = append(s.skips, re)
	}
	return s, nil
}

// Clean strips junk lines and trailing whitespace while preserving blank
// lines (paragraph structure). Segmentation offsets refer to cleaned text.
func (s *Segmenter) Clean(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			out = append(out, "")
			continue
		}
		skip := false
		for _, re := range s.skips {
			if re.MatchString(trimmed) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

// Split cuts text into ordered chunks. Empty input yields nil; input within
// the size budget yields a single chunk with no overlap.
func (s *Segmenter) Split(text, sourceFile string) []types.Chunk {
	if text == "" {
		return nil
	}

	// byteOff[i] is the byte offset of rune i; byteOff[total] == len(text).
	// All cutting arithmetic happens on rune indices; byteOff translates
	// back to the byte offsets recorded on each chunk.
	byteOff := make([]int, 0, len(text)+1)
	for off := range text {
		byteOff = append(byteOff, off)
	}
	byteOff = append(byteOff, len(text))
	total := len(byteOff) - 1

	marks := s.boundaryOffsets(text, byteOff)

	var chunks []types.Chunk
	pos := 0
	for pos < total {
		end := s.cutPoint(total, marks, pos)

		chunk := types.Chunk{
			Index:      len(chunks) + 1,
			Start:      byteOff[pos],
			End:        byteOff[end],
			SourceFile: sourceFile,
		}
		if title := s.headingAt(text, marks, pos, byteOff); title != "" {
			chunk.ChapterTitle = title
		}

		// Overlap prefix carries cross-boundary context for the extractor.
		// It is excluded from Start/End so provenance ranges stay canonical.
		from := pos
		if pos > 0 && s.overlapChars > 0 {
			if from = pos - s.overlapChars; from < 0 {
				from = 0
			}
		}
		chunk.Text = text[byteOff[from]:byteOff[end]]

		chunks = append(chunks, chunk)
		pos = end
	}
	return chunks
}

// cutPoint picks the end rune index for the chunk starting at rune pos.
func (s *Segmenter) cutPoint(total int, marks []int, pos int) int {
	if total-pos <= s.maxChars {
		return total
	}

	budget := pos + s.maxChars
	horizon := pos + s.maxChars*s.multiplier

	// Prefer the last heading inside the budget.
	best := -1
	for _, m := range marks {
		if m <= pos {
			continue
		}
		if m <= budget {
			best = m
			continue
		}
		break
	}
	if best > 0 {
		return best
	}

	// Fallback: the first heading inside the extended horizon.
	for _, m := range marks {
		if m > pos && m <= horizon {
			return m
		}
		if m > horizon {
			break
		}
	}

	// No usable heading; force a cut at the budget to bound prompt size.
	return budget
}

// boundaryOffsets returns the sorted, deduplicated rune offsets of every
// chapter heading match.
func (s *Segmenter) boundaryOffsets(text string, byteOff []int) []int {
	seen := map[int]bool{}
	var marks []int
	for _, re := range s.boundaries {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			// Match starts are always rune starts, so the lookup is exact.
			r := sort.SearchInts(byteOff, loc[0])
			if !seen[r] {
				seen[r] = true
				marks = append(marks, r)
			}
		}
	}
	sortInts(marks)
	return marks
}

// headingAt returns the heading line when a chunk begins exactly on a
// boundary match.
func (s *Segmenter) headingAt(text string, marks []int, pos int, byteOff []int) string {
	for _, m := range marks {
		if m == pos {
			line := text[byteOff[pos]:]
			if i := strings.IndexByte(line, '\n'); i >= 0 {
				line = line[:i]
			}
			return strings.TrimSpace(line)
		}
		if m > pos {
			break
		}
	}
	return ""
}

func sortInts(a []int) {
	// Insertion sort: boundary lists are small and mostly ordered already
	// (per-pattern matches come back sorted).
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}
