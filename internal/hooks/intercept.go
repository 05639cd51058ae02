package hooks

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// BeforeEvent returns the event name run before method
func BeforeEvent(method string) string {
	return "before:" + method
}

// AfterEvent returns the event name run after method
func AfterEvent(method string) string {
	return "after:" + method
}

// BeforeCall is the payload of a before chain
type BeforeCall[A, R any] struct {
	method   string
	mu       sync.Mutex
	args     A
	result   R
	resolved bool
}

// Method returns the intercepted method name
func (c *BeforeCall[A, R]) Method() string { return c.method }

// Args returns the current arguments
func (c *BeforeCall[A, R]) Args() A {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args
}

// SetArgs replaces the arguments passed to the method and later handlers
func (c *BeforeCall[A, R]) SetArgs(args A) {
	c.mu.Lock()
	c.args = args
	c.mu.Unlock()
}

// Resolve short-circuits the call: the method is not invoked and value becomes its result
func (c *BeforeCall[A, R]) Resolve(value R) {
	c.mu.Lock()
	c.result = value
	c.resolved = true
	c.mu.Unlock()
}

// Resolved returns the short-circuit value, if any
func (c *BeforeCall[A, R]) Resolved() (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.resolved
}

// RawArgs returns the arguments as an untyped value
func (c *BeforeCall[A, R]) RawArgs() any {
	return c.Args()
}

// SetRawArgs replaces the arguments from an untyped value of the right type
func (c *BeforeCall[A, R]) SetRawArgs(v any) error {
	args, ok := v.(A)
	if !ok {
		return fmt.Errorf("%s: cannot use %T as arguments", c.method, v)
	}
	c.SetArgs(args)
	return nil
}

// ResolveRaw short-circuits the call with an untyped value of the right type
func (c *BeforeCall[A, R]) ResolveRaw(v any) error {
	value, ok := v.(R)
	if !ok {
		return fmt.Errorf("%s: cannot use %T as result", c.method, v)
	}
	c.Resolve(value)
	return nil
}

// AfterCall is the payload of an after chain
type AfterCall[A, R any] struct {
	method string
	args   A
	mu     sync.Mutex
	result R
}

// Method returns the intercepted method name
func (c *AfterCall[A, R]) Method() string { return c.method }

// Args returns the arguments the method was called with
func (c *AfterCall[A, R]) Args() A { return c.args }

// Result returns the current result
func (c *AfterCall[A, R]) Result() R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// SetResult replaces the result returned to the caller
func (c *AfterCall[A, R]) SetResult(value R) {
	c.mu.Lock()
	c.result = value
	c.mu.Unlock()
}

// RawArgs returns the arguments as an untyped value
func (c *AfterCall[A, R]) RawArgs() any { return c.args }

// RawResult returns the result as an untyped value
func (c *AfterCall[A, R]) RawResult() any { return c.Result() }

// SetRawResult replaces the result from an untyped value of the right type
func (c *AfterCall[A, R]) SetRawResult(v any) error {
	value, ok := v.(R)
	if !ok {
		return fmt.Errorf("%s: cannot use %T as result", c.method, v)
	}
	c.SetResult(value)
	return nil
}

// ArgsType returns the static type of the arguments
func (c *BeforeCall[A, R]) ArgsType() reflect.Type { return reflect.TypeFor[A]() }

// ResultType returns the static type of the result
func (c *BeforeCall[A, R]) ResultType() reflect.Type { return reflect.TypeFor[R]() }

// ArgsType returns the static type of the arguments
func (c *AfterCall[A, R]) ArgsType() reflect.Type { return reflect.TypeFor[A]() }

// ResultType returns the static type of the result
func (c *AfterCall[A, R]) ResultType() reflect.Type { return reflect.TypeFor[R]() }

// BeforePayload is the untyped view of any *BeforeCall
type BeforePayload interface {
	Method() string
	ArgsType() reflect.Type
	ResultType() reflect.Type
	RawArgs() any
	SetRawArgs(v any) error
	ResolveRaw(v any) error
}

// AfterPayload is the untyped view of any *AfterCall
type AfterPayload interface {
	Method() string
	ArgsType() reflect.Type
	ResultType() reflect.Type
	RawArgs() any
	RawResult() any
	SetRawResult(v any) error
}

// OnBefore registers a typed before handler for method
func OnBefore[A, R any](r *Registry, method string, fn func(ctx context.Context, call *BeforeCall[A, R]) error) HandlerID {
	return r.On(BeforeEvent(method), beforeHandler(method, fn))
}

// OnceBefore registers a typed before handler that runs once
func OnceBefore[A, R any](r *Registry, method string, fn func(ctx context.Context, call *BeforeCall[A, R]) error) HandlerID {
	return r.Once(BeforeEvent(method), beforeHandler(method, fn))
}

// OnAfter registers a typed after handler for method
func OnAfter[A, R any](r *Registry, method string, fn func(ctx context.Context, call *AfterCall[A, R]) error) HandlerID {
	return r.On(AfterEvent(method), afterHandler(method, fn))
}

// OnceAfter registers a typed after handler that runs once
func OnceAfter[A, R any](r *Registry, method string, fn func(ctx context.Context, call *AfterCall[A, R]) error) HandlerID {
	return r.Once(AfterEvent(method), afterHandler(method, fn))
}

func beforeHandler[A, R any](method string, fn func(context.Context, *BeforeCall[A, R]) error) Handler {
	return func(ctx context.Context, payload any) error {
		call, ok := payload.(*BeforeCall[A, R])
		if !ok {
			return fmt.Errorf("before:%s handler got payload %T", method, payload)
		}
		return fn(ctx, call)
	}
}

func afterHandler[A, R any](method string, fn func(context.Context, *AfterCall[A, R]) error) Handler {
	return func(ctx context.Context, payload any) error {
		call, ok := payload.(*AfterCall[A, R])
		if !ok {
			return fmt.Errorf("after:%s handler got payload %T", method, payload)
		}
		return fn(ctx, call)
	}
}

// Intercept runs fn wrapped by the before and after chains of method.
// Before handlers may rewrite args or resolve the call early, in which case fn
// is never invoked; after handlers may replace the result. A nil registry
// calls fn directly.
func Intercept[A, R any](ctx context.Context, r *Registry, method string, args A, fn func(ctx context.Context, args A) (R, error)) (R, error) {
	if r == nil {
		return fn(ctx, args)
	}

	var zero R

	before := &BeforeCall[A, R]{method: method, args: args}
	if err := r.Call(ctx, BeforeEvent(method), before); err != nil {
		return zero, err
	}

	callArgs := before.Args()
	result, resolved := before.Resolved()
	if !resolved {
		var err error
		result, err = fn(ctx, callArgs)
		if err != nil {
			return zero, err
		}
	}

	after := &AfterCall[A, R]{method: method, args: callArgs, result: result}
	if err := r.Call(ctx, AfterEvent(method), after); err != nil {
		return zero, err
	}
	return after.Result(), nil
}
