package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/askd/internal/document"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("askd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334.
	Port int

	// Collection is the collection name holding the corpus.
	// Default: "askd_documents"
	Collection string

	// VectorSize is the embedding dimensionality. Must match the
	// embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries bounds retry attempts for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	// Default: 1s.
	RetryBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "askd_documents"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether a gRPC error should be retried.
func isTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// Payloads carry the same encoded flat metadata as the embedded store,
// so filters and reconstruction behave identically across backends.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	mu      sync.Mutex
	lastSeq uint64
}

// NewQdrantStore creates a QdrantStore, connects, health-checks, and
// ensures the collection exists.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50*1024*1024),
				grpc.MaxCallSendMsgSize(50*1024*1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return store, nil
}

// ensureCollection creates the collection with cosine distance when it
// does not exist yet. Cosine keeps query and ingestion embeddings in
// the same similarity space as the embedded backend.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// retryOperation retries a transient-failing operation with exponential
// backoff. Permanent errors return immediately.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s canceled: %w", name, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return fmt.Errorf("%s failed: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, lastErr)
}

func (s *QdrantStore) nextSeq() uint64 {
	seq := uint64(timeNow().UnixNano())
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Upsert embeds and writes documents keyed by their derived id.
func (s *QdrantStore) Upsert(ctx context.Context, docs []document.Document) (UpsertResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

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
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]*qdrant.PointStruct, len(encoded))
	for i, enc := range encoded {
		enc.meta[metaKeySeq] = strconv.FormatUint(s.nextSeq(), 10)

		payload := make(map[string]*qdrant.Value, len(enc.meta)+2)
		payload["content"] = qdrant.NewValueString(enc.content)
		payload["id"] = qdrant.NewValueString(enc.id)
		for k, v := range enc.meta {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(enc.id),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	result.Upserted = len(encoded)
	span.SetAttributes(
		attribute.Int("documents_upserted", result.Upserted),
		attribute.Int("documents_failed", len(result.Failed)),
	)
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// buildFilter converts an encoded equality filter into qdrant match
// conditions.
func buildFilter(where map[string]string) *qdrant.Filter {
	if len(where) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(where))
	for key, value := range where {
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

// Search performs similarity search over the corpus.
func (s *QdrantStore) Search(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

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

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var hits []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(where),
		})
		if err != nil {
			return err
		}
		hits = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]SearchResult, len(hits))
	seqs := make(map[string]uint64, len(hits))
	for i, point := range hits {
		var id, content string
		flat := make(map[string]string, len(point.Payload))
		for key, value := range point.Payload {
			str := value.GetStringValue()
			switch key {
			case "content":
				content = str
			case "id":
				id = str
			default:
				flat[key] = str
			}
		}
		results[i] = resultFromFlat(id, content, point.Score, flat)
		seqs[id] = parseSeq(flat)
	}
	sortResults(results, seqs)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteByFilter removes records matching the attribute filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter map[string]any) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByFilter")
	defer span.End()

	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}

	where, err := EncodeFilter(filter)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	qf := buildFilter(where)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Qdrant's delete result does not carry a count, so count the
	// matching points first.
	var matched uint64
	err = s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Filter:         qf,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		matched = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if matched == 0 {
		return 0, nil
	}

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qf},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	deleted := int(matched)
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
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	var count uint64
	err := s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int("count", int(count)))
	return int(count), nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
