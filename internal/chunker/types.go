package chunker

// Chunk is a contiguous span of the reference document.
type Chunk struct {
	ID     string // sha256 prefix of source, page, offset and text
	Text   string
	Source string // base name of the reference document
	Page   int    // 1-based page number
	Offset int    // rune offset of Text within its page
	Index  int    // position in the document-wide chunk sequence
}

// Config holds the sliding window parameters, both measured in runes.
type Config struct {
	Size    int
	Overlap int
}
