package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SequentialOrder(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	var log []int

	r.On("tick", func(ctx context.Context, payload any) error {
		done := make(chan struct{})
		go func() {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			log = append(log, 1)
			mu.Unlock()
			close(done)
		}()
		<-done
		return nil
	})
	r.On("tick", func(ctx context.Context, payload any) error {
		mu.Lock()
		log = append(log, 2)
		mu.Unlock()
		return nil
	})

	require.NoError(t, r.Call(context.Background(), "tick", nil))
	assert.Equal(t, []int{1, 2}, log)
}

func TestRegistry_ErrorStopsChain(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	var second bool

	r.On("e", func(ctx context.Context, payload any) error { return boom })
	r.On("e", func(ctx context.Context, payload any) error {
		second = true
		return nil
	})

	assert.ErrorIs(t, r.Call(context.Background(), "e", nil), boom)
	assert.False(t, second)
}

func TestRegistry_Off(t *testing.T) {
	r := NewRegistry()
	var calls int
	id := r.On("e", func(ctx context.Context, payload any) error {
		calls++
		return nil
	})

	assert.Equal(t, 1, r.Count("e"))
	assert.True(t, r.Off("e", id))
	assert.False(t, r.Off("e", id))
	assert.False(t, r.Off("other", id))
	assert.Equal(t, 0, r.Count("e"))

	require.NoError(t, r.Call(context.Background(), "e", nil))
	assert.Equal(t, 0, calls)
}

func TestRegistry_OnceRunsOnceUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	r.Once("e", func(ctx context.Context, payload any) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Call(context.Background(), "e", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, r.Count("e"))
}

func TestRegistry_OnceCanBeRemovedBeforeRunning(t *testing.T) {
	r := NewRegistry()
	var ran bool
	id := r.Once("e", func(ctx context.Context, payload any) error {
		ran = true
		return nil
	})

	assert.True(t, r.Off("e", id))
	require.NoError(t, r.Call(context.Background(), "e", nil))
	assert.False(t, ran)
}

func TestRegistry_PayloadPassedThrough(t *testing.T) {
	r := NewRegistry()
	var got any
	r.On("e", func(ctx context.Context, payload any) error {
		got = payload
		return nil
	})

	require.NoError(t, r.Call(context.Background(), "e", 42))
	assert.Equal(t, 42, got)
}
