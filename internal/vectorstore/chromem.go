package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("askd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector
// database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/askd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name holding the corpus.
	// Default: "askd_documents"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/askd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "askd_documents"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with no external service dependency. Records persist to gob
// files under the configured path; similarity is exact cosine over
// normalized vectors, consistent between ingestion and query.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	// mu serializes writes so a batch is never interleaved with
	// another writer; reads go through chromem's own locking and stay
	// concurrent.
	mu      sync.Mutex
	lastSeq uint64
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	expandedPath, err := expandHomePath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandHomePath expands ~ to the home directory.
func expandHomePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc bridges the store's Embedder to chromem's query path.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return collection, nil
}

// nextSeq returns a monotonic upsert sequence number. Wall-clock based
// so ordering survives restarts; bumped under the write lock when the
// clock does not advance.
func (s *ChromemStore) nextSeq() uint64 {
	seq := uint64(timeNow().UnixNano())
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Upsert embeds and writes documents keyed by their derived id.
func (s *ChromemStore) Upsert(ctx context.Context, docs []document.Document) (UpsertResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return UpsertResult{}, ErrEmptyDocuments
	}

	var result UpsertResult
	encoded := make([]encodedDocument, 0, len(docs))
	for _, doc := range docs {
		enc, err := encodeDocument(doc)
		if err != nil {
			result.Failed = append(result.Failed, DocumentFailure{NaturalKey: doc.NaturalKey, Err: err})
			continue
		}
		encoded = append(encoded, enc)
	}

	encoded, vectors, embedFailures := embedDocuments(ctx, s.embedder, encoded)
	result.Failed = append(result.Failed, embedFailures...)

	if len(encoded) == 0 {
		span.SetAttributes(attribute.Int("documents_failed", len(result.Failed)))
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	chromemDocs := make([]chromem.Document, len(encoded))
	for i, enc := range encoded {
		enc.meta[metaKeySeq] = strconv.FormatUint(s.nextSeq(), 10)
		chromemDocs[i] = chromem.Document{
			ID:        enc.id,
			Content:   enc.content,
			Metadata:  enc.meta,
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so no concurrency is needed here.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("adding documents: %w", err)
	}

	result.Upserted = len(encoded)
	span.SetAttributes(
		attribute.Int("documents_upserted", result.Upserted),
		attribute.Int("documents_failed", len(result.Failed)),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted documents",
		zap.String("collection", s.config.Collection),
		zap.Int("upserted", result.Upserted),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// Search performs similarity search over the corpus.
func (s *ChromemStore) Search(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return []SearchResult{}, nil
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	where, err := EncodeFilter(filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		// Nothing ingested yet.
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	hits, err := collection.Query(ctx, query, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, len(hits))
	seqs := make(map[string]uint64, len(hits))
	for i, hit := range hits {
		results[i] = resultFromFlat(hit.ID, hit.Content, hit.Similarity, hit.Metadata)
		seqs[hit.ID] = parseSeq(hit.Metadata)
	}
	sortResults(results, seqs)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// DeleteByFilter removes records matching the attribute filter.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, filter map[string]any) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFilter")
	defer span.End()

	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}

	where, err := EncodeFilter(filter)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		return 0, nil
	}

	before := collection.Count()
	if err := collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting by filter: %w", err)
	}
	deleted := before - collection.Count()

	span.SetAttributes(attribute.Int("deleted_count", deleted))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted documents by filter",
		zap.String("collection", s.config.Collection),
		zap.Strings("filter_keys", FilterKeys(filter)),
		zap.Int("deleted", deleted),
	)

	return deleted, nil
}

// Count returns the number of records in the index.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Count")
	defer span.End()

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		return 0, nil
	}
	count := collection.Count()

	span.SetAttributes(attribute.Int("count", count))
	return count, nil
}

// Close closes the store. chromem persists on write, so this only logs.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
