package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoProcessor(calls *atomic.Int32, sizes chan<- int) ProcessFunc[int, int] {
	return func(ctx context.Context, batch []*Pending[int, int]) error {
		calls.Add(1)
		if sizes != nil {
			sizes <- len(batch)
		}
		for _, p := range batch {
			p.Resolve(p.Request * 10)
		}
		return nil
	}
}

func submitAll(t *testing.T, q *Queue[int, int], n int) []int {
	t.Helper()
	results := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = q.Submit(context.Background(), i)
		}(i)
	}
	require.Eventually(t, func() bool { return q.Len() == n }, time.Second, time.Millisecond)
	q.Flush()
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return results
}

func TestQueue_CoalescesWindow(t *testing.T) {
	var calls atomic.Int32
	q := New(echoProcessor(&calls, nil), Options{Window: time.Hour, Logger: zerolog.Nop()})

	results := submitAll(t, q, 5)

	assert.Equal(t, []int{0, 10, 20, 30, 40}, results)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_TimerFlushes(t *testing.T) {
	var calls atomic.Int32
	q := New(echoProcessor(&calls, nil), Options{Logger: zerolog.Nop()})

	resp, err := q.Submit(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 70, resp)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_ChunksByMaxBatchSize(t *testing.T) {
	var calls atomic.Int32
	sizes := make(chan int, 10)
	q := New(echoProcessor(&calls, sizes), Options{MaxBatchSize: 2, Window: time.Hour, Logger: zerolog.Nop()})

	results := submitAll(t, q, 5)
	close(sizes)

	assert.Equal(t, []int{0, 10, 20, 30, 40}, results)
	assert.Equal(t, int32(3), calls.Load())
	var got []int
	for s := range sizes {
		got = append(got, s)
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, got)
}

func TestQueue_ProcessorErrorRejectsSubBatch(t *testing.T) {
	boom := errors.New("network down")
	q := New(func(ctx context.Context, batch []*Pending[int, int]) error {
		return boom
	}, Options{Logger: zerolog.Nop()})

	_, err := q.Submit(context.Background(), 1)

	var bpe *BatchProcessingError
	require.ErrorAs(t, err, &bpe)
	assert.Equal(t, 1, bpe.Size)
	assert.ErrorIs(t, err, boom)
}

func TestQueue_ErrorKeepsSettledEntries(t *testing.T) {
	boom := errors.New("partial")
	q := New(func(ctx context.Context, batch []*Pending[int, int]) error {
		batch[0].Resolve(1)
		return boom
	}, Options{Window: time.Hour, Logger: zerolog.Nop()})

	first := q.Enqueue(context.Background(), 0)
	second := q.Enqueue(context.Background(), 1)
	q.Close()

	resp, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resp)
	_, err = second.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestQueue_UnsettledEntriesRejected(t *testing.T) {
	q := New(func(ctx context.Context, batch []*Pending[int, int]) error {
		return nil
	}, Options{Logger: zerolog.Nop()})

	_, err := q.Submit(context.Background(), 1)

	assert.ErrorIs(t, err, ErrUnsettled)
}

func TestQueue_PanicRejects(t *testing.T) {
	q := New(func(ctx context.Context, batch []*Pending[int, int]) error {
		panic("bad batch")
	}, Options{Logger: zerolog.Nop()})

	_, err := q.Submit(context.Background(), 1)

	var bpe *BatchProcessingError
	require.ErrorAs(t, err, &bpe)
	assert.Contains(t, err.Error(), "bad batch")
}

func TestQueue_SubmitDuringFlushStartsNewBatch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	q := New(func(ctx context.Context, batch []*Pending[int, int]) error {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		for _, p := range batch {
			p.Resolve(len(batch))
		}
		return nil
	}, Options{Window: time.Hour, Logger: zerolog.Nop()})

	first := q.Enqueue(context.Background(), 1)
	q.Flush()
	<-started

	second := q.Enqueue(context.Background(), 2)
	assert.Equal(t, 1, q.Len())
	q.Flush()

	resp, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resp)

	close(release)
	resp, err = first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resp)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_CancelledWaitDoesNotWithdraw(t *testing.T) {
	var calls atomic.Int32
	q := New(echoProcessor(&calls, nil), Options{Window: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	p := q.Enqueue(ctx, 3)
	cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	q.Close()
	resp, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, resp)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPending_FirstSettleWins(t *testing.T) {
	p := newPending[int, string](1)

	assert.False(t, p.Settled())
	assert.True(t, p.Resolve("a"))
	assert.False(t, p.Reject(errors.New("late")))
	assert.True(t, p.Settled())

	resp, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", resp)
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, chunk(items, 0))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, chunk(items, 5))
}
