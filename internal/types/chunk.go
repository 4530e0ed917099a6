package types

// Chunk is a contiguous, bounded-size slice of source text submitted as one
// extraction unit. Immutable once produced; Index order is document order.
type Chunk struct {
	// Index is 1-based document order.
	Index int `json:"index"`

	// Text is the chunk body, including any overlap prefix carried from the
	// previous chunk.
	Text string `json:"-"`

	// Start and End bound the canonical (overlap-free) byte range in the
	// cleaned source text. Concatenating [Start:End) slices in index order
	// reconstructs the source exactly.
	Start int `json:"start"`
	End   int `json:"end"`

	// SourceFile is the input file this chunk was cut from.
	SourceFile string `json:"source_file,omitempty"`

	// ChapterTitle is the heading that opens this chunk, when the cut landed
	// on a chapter boundary.
	ChapterTitle string `json:"chapter_title,omitempty"`
}
