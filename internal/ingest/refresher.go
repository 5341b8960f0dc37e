package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
)

// RefresherConfig configures periodic corpus refresh.
type RefresherConfig struct {
	// Interval between refresh cycles. Default: 1 hour.
	Interval time.Duration

	// Project is the issue-tracker project to refresh.
	Project string

	// SpaceKey is the wiki space to refresh.
	SpaceKey string

	// OnError is called when a refresh cycle fails.
	OnError func(source document.Source, err error)
}

// Refresher periodically re-syncs the corpus from the source systems.
// Each cycle evicts a source's records and re-ingests a fresh batch,
// so repeated runs never grow the index with stale residue.
type Refresher struct {
	service *Service
	config  *RefresherConfig
	logger  *zap.Logger

	mu          sync.RWMutex
	lastSummary map[document.Source]Summary
	lastError   error
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a new refresher over the ingestion service.
func NewRefresher(service *Service, config *RefresherConfig, logger *zap.Logger) *Refresher {
	if config == nil {
		config = &RefresherConfig{}
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Refresher{
		service:     service,
		config:      config,
		logger:      logger,
		lastSummary: make(map[document.Source]Summary),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins periodic refresh in the background.
// Returns immediately; refreshing happens in a goroutine.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("starting corpus refresher",
		zap.Duration("interval", r.config.Interval))

	go r.run(ctx)
}

// Stop halts the refresher and waits for the current cycle to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.logger.Info("stopping corpus refresher")
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// LastSummary returns the most recent refresh summary for a source.
func (r *Refresher) LastSummary(src document.Source) (Summary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.lastSummary[src]
	return s, ok
}

// LastError returns the most recent refresh error, if any.
func (r *Refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// IsRunning reports whether the refresher is active.
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	// Initial refresh immediately, then on the ticker.
	r.refresh(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("corpus refresher stopped: context canceled")
			return
		case <-r.stopCh:
			r.logger.Info("corpus refresher stopped: stop requested")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	r.logger.Debug("running corpus refresh cycle")

	cycles := []struct {
		source document.Source
		scope  string
	}{
		{document.SourceIssue, r.config.Project},
		{document.SourcePage, r.config.SpaceKey},
	}

	var cycleErr error
	for _, c := range cycles {
		summary, err := r.service.SyncSource(ctx, string(c.source), c.scope, true)
		if err != nil {
			// A missing adapter just means that source is not part of
			// this deployment.
			if errors.Is(err, ErrSourceNotConfigured) {
				continue
			}
			r.logger.Error("refresh cycle failed",
				zap.String("source", string(c.source)),
				zap.Error(err),
			)
			cycleErr = err
			if r.config.OnError != nil {
				r.config.OnError(c.source, err)
			}
			continue
		}

		r.mu.Lock()
		r.lastSummary[c.source] = summary
		r.mu.Unlock()

		r.logger.Info("refresh cycle completed",
			zap.String("source", string(c.source)),
			zap.Int("added", summary.Added),
			zap.Int("updated", summary.Updated),
			zap.Int("deleted", summary.Deleted),
			zap.Int("failed", summary.Failed),
		)
	}

	r.mu.Lock()
	r.lastError = cycleErr
	r.mu.Unlock()
}
