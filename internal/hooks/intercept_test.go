package hooks

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sumArgs struct {
	A, B int
}

func sum(ctx context.Context, args sumArgs) (int, error) {
	return args.A + args.B, nil
}

func TestIntercept_NoHandlers(t *testing.T) {
	got, err := Intercept(context.Background(), NewRegistry(), "sum", sumArgs{1, 2}, sum)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestIntercept_NilRegistry(t *testing.T) {
	got, err := Intercept(context.Background(), nil, "sum", sumArgs{1, 2}, sum)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestIntercept_ResolveShortCircuits(t *testing.T) {
	r := NewRegistry()
	OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error {
		call.Resolve(42)
		return nil
	})

	var invoked bool
	got, err := Intercept(context.Background(), r, "sum", sumArgs{1, 2}, func(ctx context.Context, args sumArgs) (int, error) {
		invoked = true
		return sum(ctx, args)
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.False(t, invoked)
}

func TestIntercept_SetArgs(t *testing.T) {
	r := NewRegistry()
	OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error {
		args := call.Args()
		args.B = 10
		call.SetArgs(args)
		return nil
	})
	var seen sumArgs
	OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error {
		seen = call.Args()
		return nil
	})

	got, err := Intercept(context.Background(), r, "sum", sumArgs{1, 2}, sum)

	require.NoError(t, err)
	assert.Equal(t, 11, got)
	assert.Equal(t, sumArgs{1, 10}, seen)
}

func TestIntercept_SetResult(t *testing.T) {
	r := NewRegistry()
	OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error {
		call.SetResult(call.Result() * 2)
		return nil
	})
	OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error {
		call.SetResult(call.Result() + 1)
		return nil
	})

	got, err := Intercept(context.Background(), r, "sum", sumArgs{1, 2}, sum)

	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestIntercept_AfterSeesResolvedValue(t *testing.T) {
	r := NewRegistry()
	OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error {
		call.Resolve(5)
		return nil
	})
	var seen int
	OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error {
		seen = call.Result()
		return nil
	})

	_, err := Intercept(context.Background(), r, "sum", sumArgs{}, sum)

	require.NoError(t, err)
	assert.Equal(t, 5, seen)
}

func TestIntercept_AsyncBeforeHandlerAwaited(t *testing.T) {
	r := NewRegistry()
	OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error {
		done := make(chan struct{})
		time.AfterFunc(20*time.Millisecond, func() {
			call.SetArgs(sumArgs{A: 100, B: 1})
			close(done)
		})
		<-done
		return nil
	})

	got, err := Intercept(context.Background(), r, "sum", sumArgs{1, 2}, sum)

	require.NoError(t, err)
	assert.Equal(t, 101, got)
}

func TestIntercept_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("before", func(t *testing.T) {
		r := NewRegistry()
		OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error { return boom })
		_, err := Intercept(context.Background(), r, "sum", sumArgs{}, sum)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("method", func(t *testing.T) {
		r := NewRegistry()
		var afterRan bool
		OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error {
			afterRan = true
			return nil
		})
		_, err := Intercept(context.Background(), r, "sum", sumArgs{}, func(ctx context.Context, args sumArgs) (int, error) {
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, afterRan)
	})

	t.Run("after", func(t *testing.T) {
		r := NewRegistry()
		OnAfter(r, "sum", func(ctx context.Context, call *AfterCall[sumArgs, int]) error { return boom })
		_, err := Intercept(context.Background(), r, "sum", sumArgs{}, sum)
		assert.ErrorIs(t, err, boom)
	})
}

func TestIntercept_OnceBefore(t *testing.T) {
	r := NewRegistry()
	OnceBefore(r, "sum", func(ctx context.Context, call *BeforeCall[sumArgs, int]) error {
		call.Resolve(-1)
		return nil
	})

	first, err := Intercept(context.Background(), r, "sum", sumArgs{1, 1}, sum)
	require.NoError(t, err)
	second, err := Intercept(context.Background(), r, "sum", sumArgs{1, 1}, sum)
	require.NoError(t, err)

	assert.Equal(t, -1, first)
	assert.Equal(t, 2, second)
}

func TestIntercept_WrongPayloadType(t *testing.T) {
	r := NewRegistry()
	OnBefore(r, "sum", func(ctx context.Context, call *BeforeCall[string, int]) error { return nil })

	_, err := Intercept(context.Background(), r, "sum", sumArgs{}, sum)
	assert.Error(t, err)
}

func TestBeforeCall_RawAccess(t *testing.T) {
	call := &BeforeCall[sumArgs, int]{method: "sum", args: sumArgs{1, 2}}
	var payload BeforePayload = call

	assert.Equal(t, "sum", payload.Method())
	assert.Equal(t, reflect.TypeFor[sumArgs](), payload.ArgsType())
	assert.Equal(t, reflect.TypeFor[int](), payload.ResultType())
	assert.Equal(t, sumArgs{1, 2}, payload.RawArgs())
	assert.Error(t, payload.SetRawArgs("nope"))
	require.NoError(t, payload.SetRawArgs(sumArgs{3, 4}))
	assert.Error(t, payload.ResolveRaw("nope"))
	require.NoError(t, payload.ResolveRaw(9))

	v, ok := call.Resolved()
	assert.True(t, ok)
	assert.Equal(t, 9, v)
	assert.Equal(t, sumArgs{3, 4}, call.Args())
}
