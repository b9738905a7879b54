package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

// shutdownFlushTimeout bounds the final flush after the run context is cancelled.
const shutdownFlushTimeout = 10 * time.Second

// Runner batches deliveries from all sources and hands them to the Writer.
// A delivery is acknowledged, and its source cursor advanced, only after
// its events are stored.
type Runner struct {
	sources       []Source
	writer        *Writer
	cursorStore   storage.CursorStore
	batchSize     int
	flushInterval time.Duration
	logger        logrus.FieldLogger
	now           func() time.Time

	pending       []Delivery
	pendingEvents int

	batches       atomic.Int64
	failedFlushes atomic.Int64
	lastFlushMs   atomic.Int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Sources       []Source
	Writer        *Writer
	CursorStore   storage.CursorStore // optional
	BatchSize     int                 // Default: 200 events
	FlushInterval time.Duration       // Default: 1s
	Logger        logrus.FieldLogger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Runner{
		sources:       opts.Sources,
		writer:        opts.Writer,
		cursorStore:   opts.CursorStore,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		now:           time.Now,
	}
}

// Run subscribes to every source and stores their events.
// It blocks until ctx is cancelled or every source closed its channel.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.WithField("sources", len(r.sources)).Info("starting ingestion runner")

	merged := make(chan Delivery, 1000)
	var wg sync.WaitGroup
	for _, src := range r.sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return err
		}
		r.logger.WithField("source", src.Name()).Info("subscribed")

		wg.Add(1)
		go func(ch <-chan Delivery) {
			defer wg.Done()
			for d := range ch {
				select {
				case merged <- d:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	// While a flush is failing, incoming is nil so the loop stops reading
	// and sources block instead of growing the pending batch.
	incoming := (<-chan Delivery)(merged)

	for {
		select {
		case <-ctx.Done():
			return r.shutdown(ctx)

		case d, ok := <-incoming:
			if !ok {
				if ctx.Err() != nil {
					return r.shutdown(ctx)
				}
				r.flush(ctx)
				r.logger.Warn("all sources closed")
				return errors.New("all ingestion sources closed")
			}
			r.pending = append(r.pending, d)
			r.pendingEvents += len(d.Events)
			if r.pendingEvents >= r.batchSize && !r.flush(ctx) {
				incoming = nil
			}

		case <-ticker.C:
			if r.flush(ctx) {
				incoming = merged
			} else {
				incoming = nil
			}
		}
	}
}

// shutdown flushes what is pending with a fresh deadline.
func (r *Runner) shutdown(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
	defer cancel()
	r.flush(flushCtx)
	r.logger.Info("ingestion runner stopping")
	return ctx.Err()
}

// flush writes all pending deliveries. Reports whether nothing is left pending.
func (r *Runner) flush(ctx context.Context) bool {
	if len(r.pending) == 0 {
		return true
	}

	events := make([]*domain.Event, 0, r.pendingEvents)
	for _, d := range r.pending {
		events = append(events, d.Events...)
	}

	res, err := r.writer.Write(ctx, events)
	if err != nil {
		r.failedFlushes.Add(1)
		r.logger.WithError(err).WithField("events", r.pendingEvents).Error("storing batch failed, will retry")
		return false
	}

	fields := logrus.Fields{
		"deliveries": len(r.pending),
		"stored":     res.Stored,
		"duplicates": res.Duplicates,
	}
	if len(res.Rejected) > 0 {
		fields["rejected"] = len(res.Rejected)
	}
	if res.ChainBreaks > 0 {
		fields["chain_breaks"] = res.ChainBreaks
	}
	r.logger.WithFields(fields).Debug("batch stored")

	r.saveCursors(ctx)
	for _, d := range r.pending {
		if d.Ack == nil {
			continue
		}
		if err := d.Ack(ctx); err != nil {
			r.logger.WithError(err).WithField("source", d.Source).Warn("ack failed")
		}
	}

	r.pending = r.pending[:0]
	r.pendingEvents = 0
	r.batches.Add(1)
	r.lastFlushMs.Store(r.now().UnixMilli())
	return true
}

// saveCursors advances each source's cursor to the newest stored event.
func (r *Runner) saveCursors(ctx context.Context) {
	if r.cursorStore == nil {
		return
	}

	positions := make(map[string]int64)
	for _, d := range r.pending {
		if d.PositionMs > positions[d.Source] {
			positions[d.Source] = d.PositionMs
		}
	}

	nowMs := r.now().UnixMilli()
	for source, pos := range positions {
		if prev, err := r.cursorStore.Get(ctx, source); err == nil && prev.PositionMs >= pos {
			continue
		}
		err := r.cursorStore.Set(ctx, &storage.SourceCursor{
			Source:      source,
			PositionMs:  pos,
			UpdatedAtMs: nowMs,
		})
		if err != nil {
			r.logger.WithError(err).WithField("source", source).Warn("saving cursor failed")
		}
	}
}

// RunnerStats is a snapshot of runner and writer counters.
type RunnerStats struct {
	Batches       int64       `json:"batches"`
	FailedFlushes int64       `json:"failed_flushes"`
	LastFlushMs   int64       `json:"last_flush_ms"`
	Writer        WriterStats `json:"writer"`
}

// Stats returns current runner statistics. Safe to call while Run is active.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Batches:       r.batches.Load(),
		FailedFlushes: r.failedFlushes.Load(),
		LastFlushMs:   r.lastFlushMs.Load(),
		Writer:        r.writer.Stats(),
	}
}
