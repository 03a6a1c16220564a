package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"manualqa/internal/chunker"
)

// Result is a retrieved chunk with its cosine similarity to the query.
type Result struct {
	Chunk      chunker.Chunk
	Similarity float32
}

// Search embeds query and returns up to k chunks, most similar first.
// Equal similarities are ordered by chunk sequence index.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	total := ix.collection.Count()
	if k <= 0 || total == 0 {
		return nil, nil
	}

	// The whole collection is ranked so that ties at the k-th place are
	// cut the same way on every call.
	res, err := ix.collection.Query(ctx, query, total, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	out := make([]Result, len(res))
	for i, r := range res {
		out[i] = Result{
			Chunk: chunker.Chunk{
				ID:     r.ID,
				Text:   r.Content,
				Source: r.Metadata["source"],
				Page:   atoi(r.Metadata["page"]),
				Offset: atoi(r.Metadata["offset"]),
				Index:  atoi(r.Metadata["index"]),
			},
			Similarity: r.Similarity,
		}
	}
	// the collection scans documents concurrently, so equal scores come
	// back in no particular order
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Chunk.Index < out[j].Chunk.Index
	})
	return out[:min(k, len(out))], nil
}

// Chunks returns the chunks of results in rank order.
func Chunks(results []Result) []chunker.Chunk {
	out := make([]chunker.Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
