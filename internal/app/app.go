// Package app holds the application context shared by the HTTP server and
// the console commands: the loaded index and the answer synthesizer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"manualqa/internal/chunker"
	"manualqa/internal/config"
	"manualqa/internal/document"
	"manualqa/internal/index"
	"manualqa/internal/llm"
)

const tracerName = "manualqa/internal/app"

var (
	ErrEmptyQuery = errors.New("query cannot be empty")
	ErrNotReady   = errors.New("index is not loaded")
)

// Synthesizer turns a question and retrieved chunks into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []chunker.Chunk) (string, error)
}

// App is read-only once Init has returned.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	embed  chromem.EmbeddingFunc
	synth  Synthesizer
	index  *index.Index
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy := llm.RetryPolicy{
		Timeout:     cfg.LLMTimeout,
		MaxRetries:  cfg.LLMMaxRetries,
		InitialWait: llm.DefaultRetry.InitialWait,
		MaxWait:     llm.DefaultRetry.MaxWait,
	}
	client := llm.NewClient(llm.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Retry:   policy,
	}, logger)

	a := &App{
		cfg:    cfg,
		logger: logger,
		synth:  llm.NewSynthesizer(client, cfg.ChatModel, cfg.Temperature),
	}
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		a.embed = client.EmbeddingFunc(cfg.EmbeddingModel)
	case config.EmbeddingProviderOllama:
		a.embed = llm.OllamaEmbeddingFunc(cfg.EmbeddingModel, cfg.OllamaURL, policy)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
	return a, nil
}

// Init loads the persisted index or builds it from the reference document.
// Any failure here is fatal for the caller.
func (a *App) Init(ctx context.Context) error {
	if a.cfg.EmbeddingProvider == config.EmbeddingProviderOllama {
		if err := llm.EnsureOllamaModel(ctx, nil, a.cfg.OllamaURL, a.cfg.EmbeddingModel, a.logger); err != nil {
			return fmt.Errorf("ollama model check failed: %w", err)
		}
	}

	ix, built, err := index.Open(ctx, index.OpenConfig{
		Dir:         a.cfg.IndexDir,
		Embed:       a.embed,
		Concurrency: a.cfg.IngestConcurrency,
	}, a.ingest)
	if err != nil {
		return err
	}
	if built {
		a.logger.Info("index built", "dir", ix.Dir(), "chunks", ix.Count())
	} else {
		a.logger.Info("index loaded", "dir", ix.Dir(), "chunks", ix.Count(), "built_at", ix.Manifest().BuiltAt)
		a.checkManifest(ix.Manifest())
	}
	a.index = ix
	return nil
}

func (a *App) ingest(ctx context.Context) ([]chunker.Chunk, index.Manifest, error) {
	a.logger.Info("no index found, building", "dir", a.cfg.IndexDir, "document", a.cfg.ReferenceDoc)

	doc, err := document.Load(a.cfg.ReferenceDoc)
	if err != nil {
		return nil, index.Manifest{}, err
	}
	c, err := chunker.New(chunker.Config{Size: a.cfg.ChunkSize, Overlap: a.cfg.ChunkOverlap})
	if err != nil {
		return nil, index.Manifest{}, err
	}
	chunks := c.SplitPages(doc.Name, doc.Pages)
	a.logger.Info("document split",
		"document", doc.Name,
		"pages", len(doc.Pages),
		"chars", doc.Chars(),
		"chunks", len(chunks),
	)

	return chunks, index.Manifest{
		Document:          doc.Path,
		DocumentSize:      doc.Size,
		DocumentModTime:   doc.ModTime,
		ChunkSize:         a.cfg.ChunkSize,
		ChunkOverlap:      a.cfg.ChunkOverlap,
		EmbeddingProvider: a.cfg.EmbeddingProvider,
		EmbeddingModel:    a.cfg.EmbeddingModel,
	}, nil
}

// checkManifest only warns: a persisted index is always served as is.
func (a *App) checkManifest(m index.Manifest) {
	if m.EmbeddingProvider != a.cfg.EmbeddingProvider || m.EmbeddingModel != a.cfg.EmbeddingModel {
		a.logger.Warn("index was built with a different embedding model",
			"index_provider", m.EmbeddingProvider,
			"index_model", m.EmbeddingModel,
			"provider", a.cfg.EmbeddingProvider,
			"model", a.cfg.EmbeddingModel,
		)
	}
	fi, err := os.Stat(a.cfg.ReferenceDoc)
	if err != nil {
		a.logger.Warn("reference document not readable, serving persisted index", "document", a.cfg.ReferenceDoc, "err", err)
		return
	}
	if m.Stale(fi.Size(), fi.ModTime()) {
		a.logger.Warn("reference document changed since the index was built; remove the index dir to rebuild",
			"document", a.cfg.ReferenceDoc,
			"dir", a.cfg.IndexDir,
		)
	}
}

// Ask retrieves the top chunks for query and synthesizes an answer.
func (a *App) Ask(ctx context.Context, query string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "app.Ask")
	defer span.End()

	if query == "" {
		return "", ErrEmptyQuery
	}
	if a.index == nil {
		return "", ErrNotReady
	}

	results, err := a.index.Search(ctx, query, a.cfg.TopK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("retrieve: %w", err)
	}
	span.SetAttributes(attribute.Int("retrieved", len(results)))
	if len(results) > 0 {
		a.logger.Debug("retrieved chunks", "count", len(results), "top_similarity", results[0].Similarity)
	}

	answer, err := a.synth.Synthesize(ctx, query, index.Chunks(results))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return answer, nil
}

// Count is the number of indexed chunks, zero before Init.
func (a *App) Count() int {
	if a.index == nil {
		return 0
	}
	return a.index.Count()
}
