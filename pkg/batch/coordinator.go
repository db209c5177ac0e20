package batch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// KeyFunc extracts the request key a response item belongs to.
type KeyFunc[K comparable, T any] func(item T) K

// FetchFunc fetches one chunk of keys in a single call. The extra arguments
// are those passed to the Request that last armed the flush cycle.
type FetchFunc[K comparable, T any] func(ctx context.Context, keys []K, extra ...any) (Response[T], error)

// Config holds coordinator configuration.
type Config struct {
	// MaxBatchSize is the maximum number of keys per fetch call.
	MaxBatchSize int

	// Timeout is the debounce quiet period. Every Request restarts it.
	// Zero means the default; a negative value disables the quiet period.
	Timeout time.Duration

	// MaxConcurrency bounds the chunks in flight per flush cycle (0 = unbounded).
	MaxConcurrency int

	// FetchTimeout is the deadline applied to each fetch call (0 = none).
	FetchTimeout time.Duration

	// Name labels metrics and log lines.
	Name string

	// Logger overrides the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 10,
		Timeout:      100 * time.Millisecond,
		Name:         "default",
	}
}

// Coordinator coalesces individually requested keys into bounded batch
// fetches and demultiplexes each batch response back to per-key futures.
type Coordinator[K comparable, T any] struct {
	keyOf  KeyFunc[K, T]
	fetch  FetchFunc[K, T]
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	queue  *queue[K, T]
	extra  []any
	timer  *time.Timer
	gen    uint64
	closed bool

	inflight sync.WaitGroup
}

// New creates a coordinator. It panics if keyOf or fetch is nil.
func New[K comparable, T any](keyOf KeyFunc[K, T], fetch FetchFunc[K, T], cfg Config) *Coordinator[K, T] {
	if keyOf == nil {
		panic("batch: nil key func")
	}
	if fetch == nil {
		panic("batch: nil fetch func")
	}

	defaults := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaults.MaxBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}

	logger := log.With().Str("component", "batch").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Coordinator[K, T]{
		keyOf:  keyOf,
		fetch:  fetch,
		config: cfg,
		logger: logger.With().Str("batcher", cfg.Name).Logger(),
		queue:  newQueue[K, T](),
	}
}

// Request registers key for the next flush cycle and returns its future.
//
// A second Request for a key that is still pending replaces the earlier
// registration: only the latest future observes the result and the earlier
// one is never settled. The extra arguments are cycle-wide; the ones passed to
// the last Request before the flush are forwarded to every fetch call of that
// cycle.
func (c *Coordinator[K, T]) Request(key K, extra ...any) *Future[T] {
	f := newFuture[T]()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		waiter[T]{future: f}.reject(ErrClosed)
		return f
	}

	batchRequestsTotal.WithLabelValues(c.config.Name).Inc()
	if c.queue.put(key, waiter[T]{future: f}) {
		batchOrphanedTotal.WithLabelValues(c.config.Name).Inc()
		c.logger.Debug().
			Interface("key", key).
			Msg("Pending request overwritten")
	}
	c.extra = extra
	c.arm()

	return f
}

// Load requests key and waits for its result.
func (c *Coordinator[K, T]) Load(ctx context.Context, key K, extra ...any) (T, error) {
	return c.Request(key, extra...).Wait(ctx)
}

// Flush dispatches the pending queue immediately and blocks until that cycle
// has settled. It is a no-op when nothing is pending.
func (c *Coordinator[K, T]) Flush() {
	c.mu.Lock()
	cyc := c.take()
	c.mu.Unlock()

	if cyc != nil {
		defer c.inflight.Done()
		c.run(cyc)
	}
}

// Close flushes the pending queue, waits for every in-flight cycle to settle
// and rejects later requests with ErrClosed.
func (c *Coordinator[K, T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cyc := c.take()
	c.mu.Unlock()

	if cyc != nil {
		c.run(cyc)
		c.inflight.Done()
	}
	c.inflight.Wait()
}

// arm restarts the debounce timer. Caller must hold mu.
func (c *Coordinator[K, T]) arm() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen

	delay := c.config.Timeout
	if delay < 0 {
		delay = 0
	}
	c.timer = time.AfterFunc(delay, func() { c.fire(gen) })
}

func (c *Coordinator[K, T]) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// superseded by a later Request, Flush or Close
		c.mu.Unlock()
		return
	}
	cyc := c.take()
	c.mu.Unlock()

	if cyc != nil {
		defer c.inflight.Done()
		c.run(cyc)
	}
}

// take swaps the live queue for an empty one and returns the snapshot as a
// new cycle, or nil if nothing is pending. Caller must hold mu.
func (c *Coordinator[K, T]) take() *cycle[K, T] {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++

	if c.queue.len() == 0 {
		return nil
	}

	cyc := &cycle[K, T]{pending: c.queue, extra: c.extra}
	c.queue = newQueue[K, T]()
	c.extra = nil
	c.inflight.Add(1)

	return cyc
}

// run dispatches every chunk of cyc, waits for all of them to settle and
// rejects the keys no response accounted for.
func (c *Coordinator[K, T]) run(cyc *cycle[K, T]) {
	start := time.Now()
	keys := cyc.pending.keys

	batchFlushesTotal.WithLabelValues(c.config.Name).Inc()

	var g errgroup.Group
	if c.config.MaxConcurrency > 0 {
		g.SetLimit(c.config.MaxConcurrency)
	}

	chunks := 0
	for chunk := range slices.Chunk(keys, c.config.MaxBatchSize) {
		chunk := slices.Clone(chunk)
		chunks++
		g.Go(func() error {
			c.dispatch(cyc, chunk)
			return nil
		})
	}

	c.logger.Debug().
		Int("keys", len(keys)).
		Int("chunks", chunks).
		Msg("Flushing batch")

	_ = g.Wait()

	leftovers := cyc.leftovers()
	for _, e := range leftovers {
		e.waiter.reject(notFoundError(e.key))
	}
	if len(leftovers) > 0 {
		batchNotFoundTotal.WithLabelValues(c.config.Name).Add(float64(len(leftovers)))
		c.logger.Debug().
			Int("missing", len(leftovers)).
			Msg("Keys missing from batched results")
	}

	c.logger.Debug().
		Int("keys", len(keys)).
		Dur("duration", time.Since(start)).
		Msg("Batch cycle settled")
}

// dispatch fetches one chunk and settles the keys it accounts for.
func (c *Coordinator[K, T]) dispatch(cyc *cycle[K, T], chunk []K) {
	start := time.Now()
	resp, err := c.call(chunk, cyc.extra)
	batchChunkDuration.WithLabelValues(c.config.Name).Observe(time.Since(start).Seconds())
	batchChunkSize.WithLabelValues(c.config.Name).Observe(float64(len(chunk)))

	if err != nil {
		batchChunksTotal.WithLabelValues(c.config.Name, "failure").Inc()
		c.logger.Warn().
			Err(err).
			Int("keys", len(chunk)).
			Msg("Batch fetch failed")

		for _, key := range chunk {
			if w, ok := cyc.take(key); ok {
				w.reject(err)
			}
		}
		return
	}

	batchChunksTotal.WithLabelValues(c.config.Name, "success").Inc()
	for _, item := range resp.List() {
		// keys already settled or never requested are ignored
		if w, ok := cyc.take(c.keyOf(item)); ok {
			w.fulfill(item)
		}
	}
}

// call invokes the fetch function, converting a panic into an error.
func (c *Coordinator[K, T]) call(chunk []K, extra []any) (resp Response[T], err error) {
	ctx := context.Background()
	if c.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.FetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return c.fetch(ctx, chunk, extra...)
}

// queue is the ordered pending set, at most one waiter per key.
type queue[K comparable, T any] struct {
	keys    []K
	waiters map[K]waiter[T]
}

func newQueue[K comparable, T any]() *queue[K, T] {
	return &queue[K, T]{waiters: make(map[K]waiter[T])}
}

// put registers w for key, returning true if it replaced an earlier waiter.
// A replaced key keeps its original position.
func (q *queue[K, T]) put(key K, w waiter[T]) bool {
	_, replaced := q.waiters[key]
	if !replaced {
		q.keys = append(q.keys, key)
	}
	q.waiters[key] = w
	return replaced
}

func (q *queue[K, T]) len() int {
	return len(q.keys)
}

// cycle is one flush snapshot being drained.
type cycle[K comparable, T any] struct {
	pending *queue[K, T]
	extra   []any

	mu sync.Mutex
}

type entry[K comparable, T any] struct {
	key    K
	waiter waiter[T]
}

// take removes key from the snapshot, returning its waiter if it was still
// unsettled.
func (cy *cycle[K, T]) take(key K) (waiter[T], bool) {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	w, ok := cy.pending.waiters[key]
	if ok {
		delete(cy.pending.waiters, key)
	}
	return w, ok
}

// leftovers removes and returns, in request order, every key still unsettled.
func (cy *cycle[K, T]) leftovers() []entry[K, T] {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	var out []entry[K, T]
	for _, key := range cy.pending.keys {
		if w, ok := cy.pending.waiters[key]; ok {
			out = append(out, entry[K, T]{key: key, waiter: w})
			delete(cy.pending.waiters, key)
		}
	}
	return out
}
