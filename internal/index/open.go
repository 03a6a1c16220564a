package index

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"manualqa/internal/chunker"
)

// IngestFunc produces the chunks and build manifest for a fresh index.
type IngestFunc func(ctx context.Context) ([]chunker.Chunk, Manifest, error)

type OpenConfig struct {
	Dir         string
	Embed       chromem.EmbeddingFunc
	Concurrency int
}

// Open loads the index persisted in cfg.Dir or, when nothing is there,
// builds it from ingest. ingest is never called for an existing directory,
// even if its contents turn out to be unusable. built reports which path
// was taken.
func Open(ctx context.Context, cfg OpenConfig, ingest IngestFunc) (ix *Index, built bool, err error) {
	ok, err := Exists(cfg.Dir)
	if err != nil {
		return nil, false, fmt.Errorf("stat index dir: %w", err)
	}
	if ok {
		ix, err := Load(cfg.Dir, cfg.Embed)
		if err != nil {
			return nil, false, fmt.Errorf("load index from %s: %w", cfg.Dir, err)
		}
		return ix, false, nil
	}

	chunks, manifest, err := ingest(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("ingest: %w", err)
	}
	ix, err = Build(ctx, cfg.Dir, chunks, cfg.Embed, BuildOptions{Manifest: manifest, Concurrency: cfg.Concurrency})
	if err != nil {
		return nil, false, fmt.Errorf("build index in %s: %w", cfg.Dir, err)
	}
	return ix, true, nil
}
