package chunker

import (
	"fmt"
	"strings"
)

// TextChunker cuts text into fixed-size rune windows. Consecutive windows
// share exactly Overlap runes and nothing is trimmed, so the text can be
// rebuilt from the chunks.
type TextChunker struct {
	config Config
}

func New(config Config) (*TextChunker, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.Size)
	}
	if config.Overlap < 0 || config.Overlap >= config.Size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", config.Size, config.Overlap)
	}
	return &TextChunker{config: config}, nil
}

// Split returns the windows of text in document order. Only Text and Offset
// are set.
func (c *TextChunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.config.Size - c.config.Overlap
	var chunks []Chunk
	for i := 0; i < len(runes); i += step {
		end := min(i+c.config.Size, len(runes))
		chunks = append(chunks, Chunk{
			Text:   string(runes[i:end]),
			Offset: i,
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// SplitPages splits every page separately and stamps source metadata.
// Pages without visible text are skipped; page numbers stay 1-based
// positions in pages.
func (c *TextChunker) SplitPages(source string, pages []string) []Chunk {
	var chunks []Chunk
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		for _, ch := range c.Split(page) {
			ch.Source = source
			ch.Page = i + 1
			ch.Index = len(chunks)
			ch.ID = chunkID(source, ch.Page, ch.Offset, ch.Text)
			chunks = append(chunks, ch)
		}
	}
	return chunks
}
