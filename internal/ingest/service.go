// Package ingest pulls records from the source systems, normalizes
// them, and writes them into the vector store. Batch refresh and
// incremental updates share one ingestion path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

var ingestTracer = otel.Tracer("askd.ingest")

var (
	// ErrUnknownSource indicates an unrecognized source name.
	ErrUnknownSource = errors.New("unknown source")

	// ErrSourceNotConfigured indicates the requested source has no
	// configured adapter.
	ErrSourceNotConfigured = errors.New("source not configured")
)

// IssueSource lists issue records for ingestion.
type IssueSource interface {
	IssuesForEmbedding(ctx context.Context, project string) ([]document.RawIssue, error)
}

// PageSource lists wiki page records for ingestion.
type PageSource interface {
	PagesForEmbedding(ctx context.Context, spaceKey string) ([]document.RawPage, error)
}

// Summary reports the outcome of one ingestion batch.
type Summary struct {
	Source  document.Source `json:"source"`
	Added   int             `json:"added"`
	Updated int             `json:"updated"`
	Failed  int             `json:"failed"`

	// Deleted counts records evicted when the batch ran as a refresh.
	Deleted int `json:"deleted"`
}

// Status describes the current state of the index.
type Status struct {
	DocumentCount int       `json:"document_count"`
	LastIngest    time.Time `json:"last_ingest,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Service is the single ingestion entry point. Refresh (evict then
// re-add) versus incremental (plain upsert) is a parameter, not a
// separate path.
type Service struct {
	store   vectorstore.Store
	issues  IssueSource
	pages   PageSource
	metrics *Metrics
	logger  *zap.Logger

	mu         sync.Mutex
	lastIngest time.Time
	lastErr    error
}

// NewService creates the ingestion service. Issue and page sources may
// be nil when that source is not configured.
func NewService(store vectorstore.Store, issues IssueSource, pages PageSource, metrics *Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		store:   store,
		issues:  issues,
		pages:   pages,
		metrics: metrics,
		logger:  logger,
	}
}

// IngestIssues normalizes and ingests issue records.
func (s *Service) IngestIssues(ctx context.Context, raws []document.RawIssue, refresh bool) (Summary, error) {
	docs := make([]document.Document, len(raws))
	for i, raw := range raws {
		docs[i] = document.NormalizeIssue(raw)
	}
	return s.ingest(ctx, document.SourceIssue, docs, refresh)
}

// IngestPages normalizes and ingests wiki page records.
func (s *Service) IngestPages(ctx context.Context, raws []document.RawPage, refresh bool) (Summary, error) {
	docs := make([]document.Document, len(raws))
	for i, raw := range raws {
		docs[i] = document.NormalizePage(raw)
	}
	return s.ingest(ctx, document.SourcePage, docs, refresh)
}

// SyncSource pulls the named source's records from its adapter and
// ingests them. With refresh set, the source's existing records are
// evicted first so the index holds exactly the fresh batch.
func (s *Service) SyncSource(ctx context.Context, name string, scope string, refresh bool) (Summary, error) {
	switch document.Source(name) {
	case document.SourceIssue:
		if s.issues == nil {
			return Summary{}, fmt.Errorf("%w: %s", ErrSourceNotConfigured, name)
		}
		raws, err := s.issues.IssuesForEmbedding(ctx, scope)
		if err != nil {
			return Summary{}, fmt.Errorf("listing issues: %w", err)
		}
		return s.IngestIssues(ctx, raws, refresh)
	case document.SourcePage:
		if s.pages == nil {
			return Summary{}, fmt.Errorf("%w: %s", ErrSourceNotConfigured, name)
		}
		raws, err := s.pages.PagesForEmbedding(ctx, scope)
		if err != nil {
			return Summary{}, fmt.Errorf("listing pages: %w", err)
		}
		return s.IngestPages(ctx, raws, refresh)
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

// ingest is the one write path. Added versus updated is derived from
// the store count delta: records that did not change the count were
// overwrites of existing ids.
func (s *Service) ingest(ctx context.Context, src document.Source, docs []document.Document, refresh bool) (Summary, error) {
	ctx, span := ingestTracer.Start(ctx, "Service.ingest")
	defer span.End()

	span.SetAttributes(
		attribute.String("source", string(src)),
		attribute.Int("batch_size", len(docs)),
		attribute.Bool("refresh", refresh),
	)

	summary := Summary{Source: src}

	if refresh {
		deleted, err := s.store.DeleteByFilter(ctx, map[string]any{"source": string(src)})
		if err != nil {
			s.recordError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return summary, fmt.Errorf("evicting stale %s records: %w", src, err)
		}
		summary.Deleted = deleted
	}

	if len(docs) == 0 {
		s.recordSuccess()
		return summary, nil
	}

	before, err := s.store.Count(ctx)
	if err != nil {
		s.recordError(err)
		return summary, fmt.Errorf("counting before upsert: %w", err)
	}

	result, err := s.store.Upsert(ctx, docs)
	if err != nil {
		s.recordError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, fmt.Errorf("upserting %s batch: %w", src, err)
	}

	after, err := s.store.Count(ctx)
	if err != nil {
		s.recordError(err)
		return summary, fmt.Errorf("counting after upsert: %w", err)
	}

	summary.Added = after - before
	summary.Updated = result.Upserted - summary.Added
	summary.Failed = len(result.Failed)

	for _, failure := range result.Failed {
		s.logger.Warn("skipped document during ingestion",
			zap.String("source", string(src)),
			zap.String("natural_key", failure.NaturalKey),
			zap.Error(failure.Err),
		)
	}

	s.metrics.RecordBatch(src, summary)
	s.recordSuccess()

	span.SetAttributes(
		attribute.Int("added", summary.Added),
		attribute.Int("updated", summary.Updated),
		attribute.Int("failed", summary.Failed),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("ingested batch",
		zap.String("source", string(src)),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Int("deleted", summary.Deleted),
	)

	return summary, nil
}

// Status returns the current index status.
func (s *Service) Status(ctx context.Context) (Status, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		DocumentCount: count,
		LastIngest:    s.lastIngest,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status, nil
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	s.lastIngest = time.Now()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
