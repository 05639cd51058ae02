package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWindow is how long the queue collects requests after the first submit
const DefaultWindow = time.Millisecond

// ProcessFunc handles one sub-batch. It must settle every entry; returning an
// error rejects all entries it left unsettled.
type ProcessFunc[Req, Resp any] func(ctx context.Context, batch []*Pending[Req, Resp]) error

// Options configures a Queue
type Options struct {
	// MaxBatchSize caps the size of each sub-batch. Zero means unlimited.
	MaxBatchSize int
	// Window is the collection window. Zero means DefaultWindow.
	Window time.Duration
	Logger zerolog.Logger
}

// Queue collects submitted requests and flushes them in batches
type Queue[Req, Resp any] struct {
	process      ProcessFunc[Req, Resp]
	maxBatchSize int
	window       time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	pending  []*Pending[Req, Resp]
	timer    *time.Timer
	flushCtx context.Context
	inflight sync.WaitGroup
}

// New creates a queue that hands batches to process
func New[Req, Resp any](process ProcessFunc[Req, Resp], opts Options) *Queue[Req, Resp] {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxBatchSize := opts.MaxBatchSize
	if maxBatchSize < 0 {
		maxBatchSize = 0
	}

	return &Queue[Req, Resp]{
		process:      process,
		maxBatchSize: maxBatchSize,
		window:       window,
		logger:       opts.Logger.With().Str("component", "batch").Logger(),
	}
}

// Submit enqueues req and waits for its response
func (q *Queue[Req, Resp]) Submit(ctx context.Context, req Req) (Resp, error) {
	return q.Enqueue(ctx, req).Wait(ctx)
}

// Enqueue adds req to the current window and returns its handle without waiting.
// The first request of a window starts the flush timer; the batch is processed
// with ctx stripped of its cancellation.
func (q *Queue[Req, Resp]) Enqueue(ctx context.Context, req Req) *Pending[Req, Resp] {
	p := newPending[Req, Resp](req)

	q.mu.Lock()
	q.pending = append(q.pending, p)
	if len(q.pending) == 1 {
		q.flushCtx = context.WithoutCancel(ctx)
		q.timer = time.AfterFunc(q.window, q.Flush)
	}
	q.mu.Unlock()

	return p
}

// Len returns the number of requests waiting for the next flush
func (q *Queue[Req, Resp]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush dispatches everything collected so far without waiting for the window.
// It returns once the sub-batches are started.
func (q *Queue[Req, Resp]) Flush() {
	q.mu.Lock()
	items := q.pending
	ctx := q.flushCtx
	q.pending = nil
	q.flushCtx = nil
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	if len(items) == 0 {
		return
	}

	chunks := chunk(items, q.maxBatchSize)

	q.logger.Debug().
		Int("requests", len(items)).
		Int("batches", len(chunks)).
		Msg("flushing batch queue")

	for _, c := range chunks {
		q.inflight.Add(1)
		go func(c []*Pending[Req, Resp]) {
			defer q.inflight.Done()
			q.dispatch(ctx, c)
		}(c)
	}
}

// Close flushes pending requests and waits for all in-flight batches
func (q *Queue[Req, Resp]) Close() {
	q.Flush()
	q.inflight.Wait()
}

// dispatch runs the processing function for one sub-batch and settles what it left over
func (q *Queue[Req, Resp]) dispatch(ctx context.Context, items []*Pending[Req, Resp]) {
	err := q.safeProcess(ctx, items)
	if err != nil {
		var bpe *BatchProcessingError
		if !errors.As(err, &bpe) {
			bpe = &BatchProcessingError{Size: len(items), Err: err}
		}
		q.logger.Debug().Err(err).Int("requests", len(items)).Msg("batch processing failed")
		for _, p := range items {
			p.Reject(bpe)
		}
		return
	}

	unsettled := 0
	for _, p := range items {
		if p.Reject(&BatchProcessingError{Size: len(items), Err: ErrUnsettled}) {
			unsettled++
		}
	}
	if unsettled > 0 {
		q.logger.Warn().Int("unsettled", unsettled).Msg("batch processor left requests unsettled")
	}
}

func (q *Queue[Req, Resp]) safeProcess(ctx context.Context, items []*Pending[Req, Resp]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch processor panic: %v", r)
		}
	}()
	return q.process(ctx, items)
}

// chunk splits items into slices of at most size entries. Zero size means one chunk.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
