package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/idhash"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/storage"
	"goladium-analytics/internal/timeseries"
)

// Writer validates ledger events and appends them to the event store.
// Redelivered events are skipped, chain breaks are recorded, and cached
// aggregations of every affected user are invalidated.
type Writer struct {
	store     storage.EventStore
	cache     cache.ResultCache
	tolerance float64
	logger    logrus.FieldLogger

	stored      atomic.Int64
	duplicates  atomic.Int64
	rejected    atomic.Int64
	chainBreaks atomic.Int64
}

// WriterOptions contains configuration for creating a Writer.
type WriterOptions struct {
	EventStore     storage.EventStore
	Cache          cache.ResultCache // optional
	ChainTolerance float64           // default: timeseries.DefaultChainTolerance
	Logger         logrus.FieldLogger
}

// NewWriter creates a Writer.
func NewWriter(opts WriterOptions) *Writer {
	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{
		store:     opts.EventStore,
		cache:     c,
		tolerance: opts.ChainTolerance,
		logger:    logger,
	}
}

// WriteResult summarizes one Write call.
type WriteResult struct {
	Stored      int
	Duplicates  int
	Rejected    []Rejection // indexes refer to the Write input
	ChainBreaks int
}

// Write stores events. Invalid events are rejected individually; a store
// failure fails the whole call so the caller can retry or redeliver.
func (w *Writer) Write(ctx context.Context, events []*domain.Event) (WriteResult, error) {
	start := time.Now()
	var res WriteResult

	accepted := make([]*domain.Event, 0, len(events))
	index := make(map[*domain.Event]int, len(events))
	for i, e := range events {
		if e != nil {
			idhash.AssignEventID(e)
		}
		if err := storage.CheckEvent(e); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Err: err})
			observability.RecordEventRejected("invalid")
			continue
		}
		accepted = append(accepted, e)
		index[e] = i
	}

	SortByStream(accepted)
	keys, groups := groupByStream(accepted)

	var toStore []*domain.Event
	for _, k := range keys {
		last, fresh, dups, err := w.prepareStream(ctx, k, groups[k], func(e *domain.Event, err error) {
			res.Rejected = append(res.Rejected, Rejection{Index: index[e], Err: err})
			observability.RecordEventRejected("out_of_order")
			w.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":  k.UserID,
				"category": k.Category,
			}).Warn("rejecting backdated event")
		})
		if err != nil {
			return res, err
		}
		res.Duplicates += dups
		res.ChainBreaks += w.checkChain(k, last, fresh)
		toStore = append(toStore, fresh...)
	}
	sort.Slice(res.Rejected, func(i, j int) bool { return res.Rejected[i].Index < res.Rejected[j].Index })

	if len(toStore) > 0 {
		stored, dups, err := w.insert(ctx, toStore)
		res.Stored += stored
		res.Duplicates += dups
		if err != nil {
			return res, err
		}
	}

	w.stored.Add(int64(res.Stored))
	w.duplicates.Add(int64(res.Duplicates))
	w.rejected.Add(int64(len(res.Rejected)))
	w.chainBreaks.Add(int64(res.ChainBreaks))

	if res.Stored > 0 {
		w.invalidate(ctx, keys)
		observability.RecordIngestBatch(res.Stored, time.Since(start))
	}
	for i := 0; i < res.Duplicates; i++ {
		observability.RecordDuplicateEvent()
	}

	return res, nil
}

// prepareStream loads the stream's stored tail and drops events the store
// already holds as well as in-batch repeats. Events stamped earlier than
// their predecessor are passed to reject. Events must be sorted by event number.
func (w *Writer) prepareStream(ctx context.Context, k streamKey, events []*domain.Event, reject func(*domain.Event, error)) (*domain.Event, []*domain.Event, int, error) {
	var lastNumber int64
	last, err := w.store.GetLast(ctx, k.UserID, k.Category)
	switch {
	case err == nil:
		lastNumber = last.EventNumber
	case errors.Is(err, storage.ErrNotFound):
		last = nil
	default:
		return nil, nil, 0, fmt.Errorf("load last event of %s/%s: %w", k.UserID, k.Category, err)
	}

	fresh := events[:0:0]
	dups := 0
	prev := last
	for _, e := range events {
		if e.EventNumber <= lastNumber {
			dups++
			continue
		}
		if err := checkSuccessor(prev, e); err != nil {
			reject(e, err)
			continue
		}
		lastNumber = e.EventNumber
		prev = e
		fresh = append(fresh, e)
	}
	return last, fresh, dups, nil
}

// checkChain verifies running totals of fresh events against the stored tail.
// A break is logged and counted; the events are still stored.
func (w *Writer) checkChain(k streamKey, last *domain.Event, fresh []*domain.Event) int {
	if len(fresh) == 0 {
		return 0
	}

	chain := make([]domain.Event, 0, len(fresh)+1)
	if last != nil {
		chain = append(chain, *last)
	}
	for _, e := range fresh {
		chain = append(chain, *e)
	}

	breaks := 0
	for len(chain) > 1 {
		err := timeseries.VerifyChain(chain, w.tolerance)
		var cbe *timeseries.ChainBreakError
		if !errors.As(err, &cbe) {
			break
		}
		breaks++
		observability.RecordChainBreak(string(k.Category))
		w.logger.WithFields(logrus.Fields{
			"user_id":      k.UserID,
			"category":     k.Category,
			"event_number": chain[cbe.Index].EventNumber,
			"expected":     cbe.Expected,
			"got":          cbe.Got,
		}).Warn("running total does not follow from delta")
		chain = chain[cbe.Index:]
	}
	return breaks
}

// insert bulk-inserts events, falling back to one-by-one inserts when a
// concurrent writer stored some of them first.
func (w *Writer) insert(ctx context.Context, events []*domain.Event) (int, int, error) {
	err := w.store.InsertBulk(ctx, events)
	if err == nil {
		for _, e := range events {
			observability.RecordEventStored(string(e.Category))
		}
		return len(events), 0, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, 0, fmt.Errorf("insert batch: %w", err)
	}

	stored, dups := 0, 0
	for _, e := range events {
		err := w.store.Insert(ctx, e)
		switch {
		case err == nil:
			stored++
			observability.RecordEventStored(string(e.Category))
		case errors.Is(err, storage.ErrDuplicateKey):
			dups++
		default:
			return stored, dups, fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
	}
	return stored, dups, nil
}

// invalidate drops cached aggregations of every user touched by the batch.
func (w *Writer) invalidate(ctx context.Context, keys []streamKey) {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k.UserID] {
			continue
		}
		seen[k.UserID] = true
		if err := w.cache.InvalidateUser(ctx, k.UserID); err != nil {
			w.logger.WithError(err).WithField("user_id", k.UserID).Warn("cache invalidation failed")
			continue
		}
		observability.RecordCacheInvalidation()
	}
}

// WriterStats is a snapshot of cumulative Writer counters.
type WriterStats struct {
	Stored      int64 `json:"stored"`
	Duplicates  int64 `json:"duplicates"`
	Rejected    int64 `json:"rejected"`
	ChainBreaks int64 `json:"chain_breaks"`
}

// Stats returns cumulative counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Stored:      w.stored.Load(),
		Duplicates:  w.duplicates.Load(),
		Rejected:    w.rejected.Load(),
		ChainBreaks: w.chainBreaks.Load(),
	}
}
