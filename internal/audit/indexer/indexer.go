// Package indexer mirrors the event log into Kafka so downstream compliance
// consumers can follow ledger activity without polling the service.
package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"ledgerguard/internal/ledger/store"
)

const defaultBatchSize = 256

// Publisher is the outbound half of the mirror.
type Publisher interface {
	Publish(ctx context.Context, key, payload []byte) error
}

// Indexer tails the event log from a cursor and republishes each entry.
type Indexer struct {
	source   store.EventSource
	pub      Publisher
	logger   *slog.Logger
	interval time.Duration
	batch    int
	cursor   uint64
}

func New(source store.EventSource, pub Publisher, logger *slog.Logger, interval time.Duration) *Indexer {
	return &Indexer{
		source:   source,
		pub:      pub,
		logger:   logger.With("component", "event_indexer"),
		interval: interval,
		batch:    defaultBatchSize,
	}
}

// Run mirrors events until the context is canceled. A publish failure stops
// the worker; the cursor is not advanced past the failed entry, so a restart
// resumes without gaps.
func (w *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sync(ctx); err != nil {
				return err
			}
		}
	}
}

// Sync publishes every event at or past the cursor and returns how many were
// mirrored. Records are keyed by sequence number so partition order follows
// log order.
func (w *Indexer) Sync(ctx context.Context) (int, error) {
	published := 0
	for {
		events, err := w.source.Events(ctx, w.cursor, w.batch)
		if err != nil {
			return published, err
		}
		if len(events) == 0 {
			return published, nil
		}
		for _, evt := range events {
			payload, err := json.Marshal(evt)
			if err != nil {
				return published, err
			}
			key := strconv.AppendUint(nil, evt.Seq, 10)
			if err := w.pub.Publish(ctx, key, payload); err != nil {
				w.logger.Error("event mirror publish failed", "seq", evt.Seq, "error", err)
				return published, err
			}
			w.cursor = evt.Seq + 1
			published++
		}
		if len(events) < w.batch {
			return published, nil
		}
	}
}
