package track

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/observability"
)

// HistorySink is the durable collaborator the flusher appends batches to.
// Persistence is at-most-once: a failed batch is dropped, never retried.
type HistorySink interface {
	AppendPositions(ctx context.Context, reports []PositionReport) error
}

// Mirror receives accepted reports on a best-effort basis (e.g. a Redis
// latest-position mirror for sibling services). Offer must never block.
type Mirror interface {
	Offer(r PositionReport)
}

// Options configures an Engine. Zero values fall back to the defaults noted
// per field.
type Options struct {
	Sink   HistorySink // required
	Mirror Mirror      // optional

	ReapInterval  time.Duration // default 10s
	StaleAfter    time.Duration // default 30s
	FlushInterval time.Duration // default 60s
	FlushTimeout  time.Duration // default 10s

	SubscriberBuffer int // frames buffered per subscriber, default 16

	Now func() time.Time // test hook, default time.Now
}

// Engine owns the live cache, the broadcast hub, and the two background
// tasks (stale reaper, persistence flusher). It is constructed once and
// injected into the ingestion and subscription handlers; there is no
// package-level state.
type Engine struct {
	cache  *LiveCache
	hub    *Hub
	sink   HistorySink
	mirror Mirror

	reapInterval  time.Duration
	staleAfter    time.Duration
	flushInterval time.Duration
	flushTimeout  time.Duration

	now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Engine {
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 10 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 60 * time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		cache:         NewLiveCache(),
		hub:           NewHub(opts.SubscriberBuffer),
		sink:          opts.Sink,
		mirror:        opts.Mirror,
		reapInterval:  opts.ReapInterval,
		staleAfter:    opts.StaleAfter,
		flushInterval: opts.FlushInterval,
		flushTimeout:  opts.FlushTimeout,
		now:           opts.Now,
	}
}

// Start launches the reaper and flusher. They stop when ctx is cancelled or
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{}, 2)
	go e.reapLoop(ctx)
	go e.flushLoop(ctx)
}

// Stop cancels the background tasks, waits for them to exit, and closes all
// subscribers. Safe to call once after Start.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	<-e.done
	e.hub.Close()
}

// Ingest normalizes one raw payload, upserts it into the live cache, and on
// acceptance broadcasts the updated snapshot and offers the report to the
// mirror. The hot path does no I/O and never blocks on a subscriber.
func (e *Engine) Ingest(raw []byte) (PositionReport, error) {
	r, err := Normalize(raw, e.now())
	if err != nil {
		observability.ReportsRejected.Inc()
		return PositionReport{}, err
	}

	if !e.cache.Upsert(r) {
		// A newer report for this device is already cached; nothing to
		// broadcast.
		observability.ReportsSuperseded.Inc()
		return r, nil
	}
	observability.ReportsReceived.Inc()
	observability.TrackedDevices.Set(float64(e.cache.Len()))

	if err := e.hub.Publish(e.cache.Snapshot()); err != nil {
		// Serialization failure; the cache entry is intact and the next
		// accepted report republishes.
		log.Printf("track: publish failed: %v", err)
	}
	if e.mirror != nil {
		e.mirror.Offer(r)
	}
	return r, nil
}

// Subscribe attaches a new broadcast subscriber.
func (e *Engine) Subscribe() (uuid.UUID, <-chan []byte) {
	return e.hub.Attach()
}

// Unsubscribe detaches a subscriber. Idempotent.
func (e *Engine) Unsubscribe(id uuid.UUID) {
	e.hub.Detach(id)
}

// Snapshot returns a point-in-time copy of the live fleet state.
func (e *Engine) Snapshot() []PositionReport {
	return e.cache.Snapshot()
}

func (e *Engine) reapLoop(ctx context.Context) {
	defer func() { e.done <- struct{}{} }()
	ticker := time.NewTicker(e.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reapOnce()
		}
	}
}

// reapOnce evicts every entry older than the staleness threshold. Evictions
// are silent toward subscribers: the device is simply absent from the next
// snapshot, which is republished when anything was evicted.
func (e *Engine) reapOnce() int {
	evicted := e.cache.EvictOlder(e.now().Add(-e.staleAfter))
	if len(evicted) == 0 {
		return 0
	}
	observability.StaleEvictions.Add(float64(len(evicted)))
	observability.TrackedDevices.Set(float64(e.cache.Len()))
	log.Printf("track: reaped %d stale device(s): %v", len(evicted), evicted)

	if err := e.hub.Publish(e.cache.Snapshot()); err != nil {
		log.Printf("track: publish after reap failed: %v", err)
	}
	return len(evicted)
}

func (e *Engine) flushLoop(ctx context.Context) {
	defer func() { e.done <- struct{}{} }()
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.flushOnce(ctx); err != nil {
				// At-most-once history: drop the batch, keep serving. The
				// next tick flushes fresh state.
				observability.FlushFailures.Inc()
				log.Printf("track: history flush failed (batch dropped): %v", err)
			}
		}
	}
}

// flushOnce appends the current snapshot to the durable sink. Read-only with
// respect to the cache: flushing never evicts.
func (e *Engine) flushOnce(ctx context.Context) error {
	snapshot := e.cache.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.flushTimeout)
	defer cancel()

	start := time.Now()
	if err := e.sink.AppendPositions(ctx, snapshot); err != nil {
		return err
	}
	observability.ObserveFlushLatency(start)
	observability.FlushBatches.Inc()
	return nil
}
