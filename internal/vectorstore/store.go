// Package vectorstore provides the persistent vector index over
// normalized documents: embedding, upsert, similarity search, and
// filter-scoped deletion.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/fyrsmithlabs/askd/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmptyFilter indicates a delete was attempted without a filter.
	// Deleting the whole index must be an explicit, separate decision.
	ErrEmptyFilter = errors.New("delete filter cannot be empty")

	// ErrEmptyQuery indicates an empty search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrConnectionFailed indicates the remote store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Documents and queries must be embedded in the same vector space; the
// store uses one Embedder for both ingestion and search.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	// ID is the derived document identifier.
	ID string

	// Source is the origin system of the document.
	Source document.Source

	// NaturalKey is the source system's own identifier.
	NaturalKey string

	// Title is the document title.
	Title string

	// Content is the stored document text.
	Content string

	// Score is the cosine similarity (higher is more similar).
	Score float32

	// Metadata holds the reconstructed document attributes.
	Metadata map[string]any
}

// DocumentFailure reports a document that was skipped during an upsert.
type DocumentFailure struct {
	NaturalKey string
	Err        error
}

// UpsertResult summarizes a batch upsert. A failing document never
// aborts the remaining batch; it is reported here instead.
type UpsertResult struct {
	Upserted int
	Failed   []DocumentFailure
}

// Store is the interface for vector storage operations.
//
// Implementations own the persistent index exclusively; callers interact
// only through these operations. Concurrent searches never block each
// other; writes to the identifier space are serialized per batch so a
// record is never visible partially written.
type Store interface {
	// Upsert embeds and writes documents keyed by their derived id.
	// Re-ingesting an unchanged natural key overwrites the existing
	// record. Per-document failures (embedding, attribute shape) are
	// reported in the result and do not abort the batch.
	Upsert(ctx context.Context, docs []document.Document) (UpsertResult, error)

	// Search returns up to k records nearest to the query text,
	// descending by similarity, ties broken by most-recently-upserted
	// first. A k <= 0 returns an empty result, not an error. An
	// optional filter restricts results by attribute equality.
	Search(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error)

	// DeleteByFilter removes every record whose attributes match the
	// filter and returns the number deleted. Used to evict a source's
	// stale records before re-ingesting a fresh batch.
	DeleteByFilter(ctx context.Context, filter map[string]any) (int, error)

	// Count returns the number of records in the index.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Reserved flat-metadata keys written by store implementations.
// Flatten rejects underscore-prefixed attribute keys so these can never
// collide with user attributes.
const (
	metaKeySource     = "source"
	metaKeyNaturalKey = "natural_key"
	metaKeyTitle      = "title"
	metaKeySeq        = "_seq"
)

// encodedDocument is a document after identity derivation and metadata
// flattening, ready for embedding and storage.
type encodedDocument struct {
	id      string
	content string
	meta    map[string]string
}

// encodeDocument derives the stable id and flattens attributes for one
// document. Shape violations surface here, before anything is stored.
func encodeDocument(doc document.Document) (encodedDocument, error) {
	if !doc.Source.Valid() {
		return encodedDocument{}, fmt.Errorf("%w: unknown source %q", ErrUnsupportedShape, doc.Source)
	}
	if doc.NaturalKey == "" {
		return encodedDocument{}, fmt.Errorf("%w: natural key is required", ErrUnsupportedShape)
	}

	meta, err := Flatten(doc.Attributes)
	if err != nil {
		return encodedDocument{}, err
	}
	meta[metaKeySource] = encodeScalarString(string(doc.Source))
	meta[metaKeyNaturalKey] = encodeScalarString(doc.NaturalKey)
	if doc.Title != "" {
		meta[metaKeyTitle] = encodeScalarString(doc.Title)
	}

	return encodedDocument{
		id:      document.ID(doc.Source, doc.NaturalKey),
		content: doc.Content,
		meta:    meta,
	}, nil
}

// embedDocuments embeds a prepared batch with at-least-effort semantics:
// the whole batch is embedded in one call when possible, and a batch
// failure degrades to per-document embedding so one poisoned document
// cannot take the rest down with it.
func embedDocuments(ctx context.Context, embedder Embedder, docs []encodedDocument) (ok []encodedDocument, vectors [][]float32, failed []DocumentFailure) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.content
	}

	batch, err := embedder.EmbedDocuments(ctx, texts)
	if err == nil && len(batch) == len(docs) {
		return docs, batch, nil
	}

	for i, d := range docs {
		vec, err := embedder.EmbedQuery(ctx, texts[i])
		if err != nil {
			failed = append(failed, DocumentFailure{
				NaturalKey: decodeNaturalKey(d.meta),
				Err:        fmt.Errorf("%w: %v", ErrEmbeddingFailed, err),
			})
			continue
		}
		ok = append(ok, d)
		vectors = append(vectors, vec)
	}
	return ok, vectors, failed
}

func decodeNaturalKey(meta map[string]string) string {
	v, err := decodeScalar(meta[metaKeyNaturalKey])
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// resultFromFlat builds a SearchResult from stored flat metadata.
// Metadata that fails to decode is dropped rather than failing the
// search; the codec rejects undecodable values at flatten time, so this
// only guards against foreign writes to the index.
func resultFromFlat(id, content string, score float32, flat map[string]string) SearchResult {
	res := SearchResult{
		ID:      id,
		Content: content,
		Score:   score,
	}

	attrs, err := Reconstruct(flat)
	if err != nil {
		attrs = map[string]any{}
	}
	if src, ok := attrs[metaKeySource].(string); ok {
		res.Source = document.Source(src)
		delete(attrs, metaKeySource)
	}
	if key, ok := attrs[metaKeyNaturalKey].(string); ok {
		res.NaturalKey = key
		delete(attrs, metaKeyNaturalKey)
	}
	if title, ok := attrs[metaKeyTitle].(string); ok {
		res.Title = title
		delete(attrs, metaKeyTitle)
	}
	res.Metadata = attrs
	return res
}

// sortResults orders hits by descending score, breaking ties by the
// monotonic upsert sequence (most recent first) so ordering stays
// deterministic across runs.
func sortResults(results []SearchResult, seqs map[string]uint64) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return seqs[results[i].ID] > seqs[results[j].ID]
	})
}

func parseSeq(flat map[string]string) uint64 {
	n, err := strconv.ParseUint(flat[metaKeySeq], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
