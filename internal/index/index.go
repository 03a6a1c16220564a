// Package index stores document chunks as embeddings in a chromem-go
// collection and persists it to a directory.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"

	"manualqa/internal/chunker"
)

const (
	collectionName = "manual"
	exportFile     = "index.gob.gz"
	manifestFile   = "manifest.json"
)

var (
	ErrNoChunks = errors.New("no chunks to index")
	ErrExists   = errors.New("index directory already exists")
)

// Manifest describes how a persisted index was built.
type Manifest struct {
	Document          string    `json:"document"`
	DocumentSize      int64     `json:"document_size"`
	DocumentModTime   time.Time `json:"document_mod_time"`
	ChunkSize         int       `json:"chunk_size"`
	ChunkOverlap      int       `json:"chunk_overlap"`
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Chunks            int       `json:"chunks"`
	BuiltAt           time.Time `json:"built_at"`
}

// Stale reports whether the document looks different from the one the
// index was built from.
func (m Manifest) Stale(size int64, modTime time.Time) bool {
	return m.DocumentSize != size || !m.DocumentModTime.Equal(modTime)
}

// Index is read-only once built or loaded and safe for concurrent Search.
type Index struct {
	dir        string
	db         *chromem.DB
	collection *chromem.Collection
	manifest   Manifest
}

type BuildOptions struct {
	Manifest    Manifest
	Concurrency int
}

// Exists reports whether something is present at dir. Anything there counts
// as a persisted index; Load decides whether it is usable.
func Exists(dir string) (bool, error) {
	_, err := os.Stat(dir)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Build embeds chunks into a new collection and persists it to dir. The
// directory only appears once everything has been written.
func Build(ctx context.Context, dir string, chunks []chunker.Chunk, embed chromem.EmbeddingFunc, opts BuildOptions) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	if ok, err := Exists(dir); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	db := chromem.NewDB()
	coll, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:      ch.ID,
			Content: ch.Text,
			Metadata: map[string]string{
				"source": ch.Source,
				"page":   strconv.Itoa(ch.Page),
				"offset": strconv.Itoa(ch.Offset),
				"index":  strconv.Itoa(ch.Index),
			},
		}
	}
	if err := coll.AddDocuments(ctx, docs, opts.Concurrency); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	manifest := opts.Manifest
	manifest.Chunks = coll.Count()
	manifest.BuiltAt = time.Now().UTC()

	if err := persist(db, dir, manifest); err != nil {
		return nil, err
	}
	return &Index{dir: dir, db: db, collection: coll, manifest: manifest}, nil
}

func persist(db *chromem.DB, dir string, manifest Manifest) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := db.ExportToFile(filepath.Join(tmp, exportFile), true, "", collectionName); err != nil {
		return fmt.Errorf("export index: %w", err)
	}
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, manifestFile), b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	return nil
}

// Load restores an index persisted by Build. It fails when dir, the export
// or the manifest is missing or unreadable, or when they disagree.
func Load(dir string, embed chromem.EmbeddingFunc) (*Index, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(b, &manifest); err != nil {
		return nil, fmt.Errorf("malformed manifest in %s: %w", dir, err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filepath.Join(dir, exportFile), "", collectionName); err != nil {
		return nil, fmt.Errorf("import index: %w", err)
	}
	coll := db.GetCollection(collectionName, embed)
	if coll == nil {
		return nil, fmt.Errorf("collection %q not found in %s", collectionName, dir)
	}
	if coll.Count() == 0 || coll.Count() != manifest.Chunks {
		return nil, fmt.Errorf("index in %s has %d chunks, manifest expects %d", dir, coll.Count(), manifest.Chunks)
	}

	return &Index{dir: dir, db: db, collection: coll, manifest: manifest}, nil
}

func (ix *Index) Dir() string        { return ix.dir }
func (ix *Index) Manifest() Manifest { return ix.manifest }
func (ix *Index) Count() int         { return ix.collection.Count() }
