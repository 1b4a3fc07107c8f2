// Package audit rebuilds compliance views by folding over the event log.
// The log is the only source of truth here; nothing in this package reads
// the record tables directly.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/internal/ledger/store"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/hashing"
)

// maxBlockLookups bounds how many block timestamp lookups run at once when
// assembling a feed.
const maxBlockLookups = 20

// statsCacheTTL keeps cached statistics short-lived; the log only grows, so
// stale counts self-correct quickly.
const statsCacheTTL = 15 * time.Second

const statsCacheKey = "audit:statistics"

// FeedQuery filters a reconstructed feed.
type FeedQuery struct {
	Kinds []models.EventKind
	Limit int
}

// FeedEntry is one row of the reconstructed activity feed.
type FeedEntry struct {
	Seq       uint64           `json:"seq"`
	Block     uint64           `json:"block"`
	Kind      models.EventKind `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     domain.Address   `json:"actor"`
	Subject   string           `json:"subject"`
	Status    string           `json:"status"`
}

// Statistics summarizes ledger activity per record family.
type Statistics struct {
	Policies     uint64 `json:"policies"`
	Transactions uint64 `json:"transactions"`
	Approved     uint64 `json:"approved"`
	Blocked      uint64 `json:"blocked"`
	Violations   uint64 `json:"violations"`
	Clawbacks    uint64 `json:"clawbacks"`
	RulesCreated uint64 `json:"rules_created"`
	RulesClaimed uint64 `json:"rules_claimed"`
	Head         uint64 `json:"head"`
}

// DigestMatch reports where a digest appears in the log.
type DigestMatch struct {
	Seq  uint64           `json:"seq"`
	Kind models.EventKind `json:"kind"`
}

// Reconstructor derives audit views from an EventSource. It holds no state
// of its own beyond an optional statistics cache.
type Reconstructor struct {
	source  store.EventSource
	hasher  hashing.Hasher
	cache   *redis.Client
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithCache enables the Redis statistics cache.
func WithCache(client *redis.Client) Option {
	return func(r *Reconstructor) { r.cache = client }
}

// WithMetrics wires reconstruction counters.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconstructor) { r.metrics = m }
}

func NewReconstructor(source store.EventSource, hasher hashing.Hasher, logger *slog.Logger, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		source: source,
		hasher: hasher,
		logger: logger.With("component", "audit_reconstructor"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed replays the log and returns matching entries in chronological order.
// Entries sharing a timestamp keep their emission order. A positive limit
// keeps the most recent entries. Block timestamps are fetched concurrently,
// deduplicated per block, with at most maxBlockLookups lookups in flight.
func (r *Reconstructor) Feed(ctx context.Context, query FeedQuery) ([]FeedEntry, error) {
	events, err := r.source.Events(ctx, 0, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read event log")
	}
	if len(query.Kinds) > 0 {
		wanted := make(map[models.EventKind]bool, len(query.Kinds))
		for _, k := range query.Kinds {
			wanted[k] = true
		}
		filtered := events[:0:0]
		for _, evt := range events {
			if wanted[evt.Kind] {
				filtered = append(filtered, evt)
			}
		}
		events = filtered
	}
	if len(events) == 0 {
		return []FeedEntry{}, nil
	}

	times, err := r.blockTimes(ctx, events)
	if err != nil {
		return nil, err
	}

	entries := make([]FeedEntry, 0, len(events))
	for _, evt := range events {
		entries = append(entries, FeedEntry{
			Seq:       evt.Seq,
			Block:     evt.Block,
			Kind:      evt.Kind,
			Timestamp: times[evt.Block],
			Actor:     evt.Actor,
			Subject:   evt.ShortID(),
			Status:    evt.StatusLabel(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Seq < entries[j].Seq
	})
	if query.Limit > 0 && len(entries) > query.Limit {
		entries = entries[len(entries)-query.Limit:]
	}
	if r.metrics != nil {
		r.metrics.FeedsBuilt.Inc()
	}
	return entries, nil
}

// blockTimes resolves the timestamp of every distinct block referenced by
// events, at most maxBlockLookups concurrently.
func (r *Reconstructor) blockTimes(ctx context.Context, events []models.Event) (map[uint64]time.Time, error) {
	heights := make(map[uint64]bool, len(events))
	for _, evt := range events {
		heights[evt.Block] = true
	}

	var mu sync.Mutex
	times := make(map[uint64]time.Time, len(heights))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBlockLookups)
	for height := range heights {
		g.Go(func() error {
			t, err := r.source.BlockTime(gctx, height)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "resolve block timestamp")
			}
			mu.Lock()
			times[height] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return times, nil
}

// Statistics folds the whole log into per-family counters. Results are
// cached briefly when a cache client is configured.
func (r *Reconstructor) Statistics(ctx context.Context) (Statistics, error) {
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var cached Statistics
			if json.Unmarshal(raw, &cached) == nil {
				if r.metrics != nil {
					r.metrics.StatsCacheHits.Inc()
				}
				return cached, nil
			}
		}
	}

	events, err := r.source.Events(ctx, 0, 0)
	if err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "read event log")
	}
	var stats Statistics
	for _, evt := range events {
		switch evt.Kind {
		case models.EventPolicyRegistered:
			stats.Policies++
		case models.EventTransactionLogged:
			stats.Transactions++
			switch evt.Decision {
			case models.DecisionApproved:
				stats.Approved++
			case models.DecisionBlocked:
				stats.Blocked++
			}
		case models.EventViolationRecorded:
			stats.Violations++
		case models.EventClawbackExecuted:
			stats.Clawbacks++
		case models.EventRuleCreated:
			stats.RulesCreated++
		case models.EventRuleClaimed:
			stats.RulesClaimed++
		}
		stats.Head = evt.Seq + 1
	}

	if r.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := r.cache.Set(ctx, statsCacheKey, raw, statsCacheTTL).Err(); err != nil {
				r.logger.Warn("statistics cache write failed", "error", err)
			}
		}
	}
	return stats, nil
}

// VerifyDigest reports every log position where the digest appears. An empty
// result means the digest was never committed.
func (r *Reconstructor) VerifyDigest(ctx context.Context, digest domain.Digest) ([]DigestMatch, error) {
	if digest.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "digest must not be zero")
	}
	events, err := r.source.Events(ctx, 0, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read event log")
	}
	matches := []DigestMatch{}
	for _, evt := range events {
		if evt.Digest == digest {
			matches = append(matches, DigestMatch{Seq: evt.Seq, Kind: evt.Kind})
		}
	}
	return matches, nil
}

// VerifyChain walks the log and recomputes every entry hash. It returns the
// sequence number of the first broken link, or the head on success.
func (r *Reconstructor) VerifyChain(ctx context.Context) (uint64, error) {
	events, err := r.source.Events(ctx, 0, 0)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read event log")
	}
	var prev domain.Digest
	for _, evt := range events {
		if evt.PrevHash != prev {
			return evt.Seq, dErrors.New(dErrors.CodeInternal, "event log chain broken")
		}
		stored := evt.EntryHash
		evt.EntryHash = domain.Digest{}
		payload, err := json.Marshal(evt)
		if err != nil {
			return evt.Seq, dErrors.Wrap(err, dErrors.CodeInternal, "marshal ledger event")
		}
		if r.hasher.Chain(prev, payload) != stored {
			return evt.Seq, dErrors.New(dErrors.CodeInternal, "event log chain broken")
		}
		prev = stored
	}
	return uint64(len(events)), nil
}
