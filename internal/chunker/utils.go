package chunker

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// chunkID derives a stable identifier so rebuilding the same document yields
// the same IDs.
func chunkID(source string, page, offset int, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(page)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(offset)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}

// Reassemble joins chunks produced by Split back into the original text by
// dropping the overlap prefix of every chunk but the first.
func Reassemble(chunks []Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
