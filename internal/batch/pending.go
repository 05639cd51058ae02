package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnsettled is the cause reported for entries the processing function
// returned without resolving or rejecting
var ErrUnsettled = errors.New("request was not settled by batch processor")

// BatchProcessingError is delivered to every entry of a sub-batch whose
// processing failed as a whole
type BatchProcessingError struct {
	Size int
	Err  error
}

func (e *BatchProcessingError) Error() string {
	return fmt.Sprintf("batch of %d requests failed: %v", e.Size, e.Err)
}

func (e *BatchProcessingError) Unwrap() error {
	return e.Err
}

// Pending is a request held by the queue until it is settled.
// Only the first Resolve or Reject takes effect.
type Pending[Req, Resp any] struct {
	Request Req

	once sync.Once
	done chan struct{}
	resp Resp
	err  error
}

func newPending[Req, Resp any](req Req) *Pending[Req, Resp] {
	return &Pending[Req, Resp]{
		Request: req,
		done:    make(chan struct{}),
	}
}

// Resolve settles the request with a response
func (p *Pending[Req, Resp]) Resolve(resp Resp) bool {
	settled := false
	p.once.Do(func() {
		p.resp = resp
		settled = true
		close(p.done)
	})
	return settled
}

// Reject settles the request with an error
func (p *Pending[Req, Resp]) Reject(err error) bool {
	settled := false
	p.once.Do(func() {
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

// Settled returns true once Resolve or Reject has been called
func (p *Pending[Req, Resp]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed when the request is settled
func (p *Pending[Req, Resp]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request is settled or ctx is done.
// Giving up on ctx does not withdraw the request from its batch.
func (p *Pending[Req, Resp]) Wait(ctx context.Context) (Resp, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}
}
